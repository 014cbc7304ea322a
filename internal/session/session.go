// Package session implements the per-adapter session: the capability
// vector through which an adapter interacts with the core (emit, report,
// tag/rule lookup and mutation) and the registry that owns session
// lifecycle.
//
// The source modeled a session's capability vector as two C function-
// pointer tables (adapter-supplied ops, core-supplied ops). Per §9, the
// adapter-supplied side is re-expressed as Go interfaces — a required
// Adapter.Handle plus a family of optional single-method interfaces that
// the registry type-asserts for at each of the "core → adapter,
// fallible-to-null" notification points. The core-supplied side is a
// plain borrowed handle: methods on *Session itself.
package session

import (
	"fmt"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/tags"
	"github.com/hackerspacekrk/iotm/internal/targetlayer"
)

// Adapter is the one capability every adapter must supply: its command
// entry point, called by the router for every Command routed to this
// session's name.
type Adapter interface {
	Handle(s *Session, cmd *event.Command)
}

// Updater is fired after a config modify. Optional.
type Updater interface {
	Update(s *Session)
}

// TagUpdater is fired after any tag-store mutation. Optional.
type TagUpdater interface {
	TagUpdate(s *Session)
}

// RuleChangeKind enumerates the rule-table mutation kinds reported to
// RuleUpdater.
type RuleChangeKind int

const (
	RuleInserted RuleChangeKind = iota
	RuleModified
	RuleDeleted
)

// RuleUpdater is fired on every rule insert/modify/delete. Optional.
type RuleUpdater interface {
	RuleUpdate(s *Session, kind RuleChangeKind, rule *rules.Rule)
}

// PeriodicHandler is fired at the core's periodic cadence (~5s). Optional.
type PeriodicHandler interface {
	Periodic(s *Session)
}

// Exiter is fired during session teardown. Optional.
type Exiter interface {
	Exit(s *Session)
}

// ReportSink is the external MQTT report transport collaborator (§6); the
// core takes ownership of json strings passed to SendReport and frees
// them, and never retains the bytes passed to SendPBReport.
type ReportSink interface {
	SendReport(topic, json string) error
	SendPBReport(topic string, payload []byte) error
}

// ConfigWriter is the configuration-store write-back collaborator (§6):
// ovsdb_upsert_tag / ovsdb_upsert_rules / ovsdb_remove_rules.
type ConfigWriter interface {
	UpsertTag(name string, deviceValues, cloudValues []string) error
	UpsertRules(rows []rules.Row) error
	RemoveRules(names []string) error
}

// Emitter routes a PluginEvent built by session s through the router. It is
// satisfied by *router.Router; the session package cannot import router
// directly (router imports session to dispatch Commands), so the registry
// is wired with this function after both are constructed.
type Emitter func(s *Session, pe *event.PluginEvent)

// Session is a session's config-and-capability-vector bundle: the routing
// key into rule actions, the adapter's callback surface, and borrowed
// references to the shared core state.
type Session struct {
	Name string

	Adapter Adapter

	OtherConfig map[string]string
	DSOPath     string
	ReportTopic string
	ReportCount int

	// LocationID/NodeID are the AWLAN_Node-sourced MQTT header strings
	// (§6), borrowed and replaced atomically on refresh by the manager
	// resetting every session's pointer.
	LocationID string
	NodeID     string

	events      *rules.Index
	tagStore    *tags.Store
	targetLayer *targetlayer.Registry
	report      ReportSink
	writer      ConfigWriter
	emit        Emitter
}

// Emit hands a built PluginEvent to the router; the router consumes
// pe.Params but never retains it past the call — the adapter must not
// reuse pe afterward.
func (s *Session) Emit(pe *event.PluginEvent) {
	if s.emit == nil {
		return
	}
	s.emit(s, pe)
}

// SendReport forwards textual JSON to the MQTT transport on this session's
// configured topic, incrementing the per-session report counter.
func (s *Session) SendReport(json string) error {
	if s.report == nil {
		return fmt.Errorf("session %s: no report sink configured", s.Name)
	}
	s.ReportCount++
	return s.report.SendReport(s.ReportTopic, json)
}

// SendPBReport forwards a binary payload to topic, incrementing the
// per-session report counter. The caller retains ownership of payload.
func (s *Session) SendPBReport(topic string, payload []byte) error {
	if s.report == nil {
		return fmt.Errorf("session %s: no report sink configured", s.Name)
	}
	s.ReportCount++
	return s.report.SendPBReport(topic, payload)
}

// GetEvent returns a borrowed reference to the Event node for name, or nil.
func (s *Session) GetEvent(name string) *rules.Event {
	return s.events.GetEvent(name)
}

// GetConfig returns a borrowed reference to an other_config value, or
// ("", false) if unset.
func (s *Session) GetConfig(key string) (string, bool) {
	v, ok := s.OtherConfig[key]
	return v, ok
}

// PluginEventNew allocates an empty PluginEvent bound to name; the caller
// owns the result.
func (s *Session) PluginEventNew(name string) *event.PluginEvent {
	return event.New(name)
}

// ForEachTag iterates every value of name, or — if name is empty — every
// (tag-name, value) pair currently stored.
func (s *Session) ForEachTag(name string, cb func(tagName, value string)) {
	s.tagStore.ForEachTag(name, cb)
}

// UpdateTag upserts a tag row in the external configuration store.
func (s *Session) UpdateTag(name string, deviceValues, cloudValues []string) error {
	if s.writer == nil {
		return fmt.Errorf("session %s: no config writer configured", s.Name)
	}
	return s.writer.UpsertTag(name, deviceValues, cloudValues)
}

// UpdateRules upserts n rule rows in the external configuration store.
func (s *Session) UpdateRules(rows []rules.Row) error {
	if s.writer == nil {
		return fmt.Errorf("session %s: no config writer configured", s.Name)
	}
	return s.writer.UpsertRules(rows)
}

// RemoveRules deletes n rule rows (by name) from the external configuration
// store.
func (s *Session) RemoveRules(names []string) error {
	if s.writer == nil {
		return fmt.Errorf("session %s: no config writer configured", s.Name)
	}
	return s.writer.RemoveRules(names)
}

// TargetLayerContext returns the shared opaque state for family, and
// whether one is currently installed.
func (s *Session) TargetLayerContext(family string) (any, bool) {
	return s.targetLayer.Get(family)
}

// SetTargetLayerContext installs state as family's shared target-layer
// context.
func (s *Session) SetTargetLayerContext(family string, state any) {
	s.targetLayer.Set(family, state)
}

// notifyUpdate fires Update if the adapter supplied one.
func (s *Session) notifyUpdate() {
	if u, ok := s.Adapter.(Updater); ok {
		u.Update(s)
	}
}

// notifyTagUpdate fires TagUpdate if the adapter supplied one.
func (s *Session) notifyTagUpdate() {
	if u, ok := s.Adapter.(TagUpdater); ok {
		u.TagUpdate(s)
	}
}

// notifyRuleUpdate fires RuleUpdate if the adapter supplied one.
func (s *Session) notifyRuleUpdate(kind RuleChangeKind, rule *rules.Rule) {
	if u, ok := s.Adapter.(RuleUpdater); ok {
		u.RuleUpdate(s, kind, rule)
	}
}

// notifyPeriodic fires Periodic if the adapter supplied one.
func (s *Session) notifyPeriodic() {
	if p, ok := s.Adapter.(PeriodicHandler); ok {
		p.Periodic(s)
	}
}

// notifyExit fires Exit if the adapter supplied one.
func (s *Session) notifyExit() {
	if e, ok := s.Adapter.(Exiter); ok {
		e.Exit(s)
	}
}
