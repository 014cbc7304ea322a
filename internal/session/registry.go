package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/tags"
	"github.com/hackerspacekrk/iotm/internal/targetlayer"
)

// Constructor builds an Adapter for a newly-created session, given its
// other_config map. It stands in for the source's dlopen+symbol-resolution
// step (§4.5 step 5); per §9, a statically-linked registry of constructors
// keyed by session name (or family) replaces dynamic loading entirely.
type Constructor func(s *Session, otherConfig map[string]string) (Adapter, error)

var (
	constructorsMu sync.Mutex
	constructors   = map[string]Constructor{}
)

// RegisterAdapter registers ctor under family, called from each adapter
// package's init(). Re-registering the same family replaces the previous
// constructor (useful for tests that stub a family's adapter).
func RegisterAdapter(family string, ctor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[family] = ctor
}

func lookupConstructor(family string) (Constructor, bool) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	ctor, ok := constructors[family]
	return ctor, ok
}

// ManagerConfigRow is the plain-struct shape of an IOT_Manager_Config row
// (§6): handler (session name), plugin (dso path, optional — reinterpreted
// as the adapter family/registry key), and the other_config columns.
type ManagerConfigRow struct {
	Handler         string
	Plugin          string
	OtherConfigKeys []string
	OtherConfigVals []string
}

// Registry owns every Session's lifecycle: create on manager-config
// insert, re-initialise on modify, destroy (calling Exit) on delete.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	events      *rules.Index
	tagStore    *tags.Store
	targetLayer *targetlayer.Registry
	report      ReportSink
	writer      ConfigWriter
	emit        Emitter
}

// NewRegistry creates an empty session registry bound to the shared core
// collaborators every session receives a borrowed reference to.
func NewRegistry(events *rules.Index, tagStore *tags.Store, targetLayer *targetlayer.Registry, report ReportSink, writer ConfigWriter) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		events:      events,
		tagStore:    tagStore,
		targetLayer: targetLayer,
		report:      report,
		writer:      writer,
	}
}

// SetEmitter wires the router's Emit method in after both the registry and
// the router have been constructed, breaking the session/router import
// cycle. Sessions already registered are rewired as well.
func (r *Registry) SetEmitter(emit Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit = emit
	for _, s := range r.sessions {
		s.emit = emit
	}
}

// Get returns the session named name, or nil if none is registered — used
// by the router to resolve an action's target adapter.
func (r *Registry) Get(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[name]
}

// ForEach calls cb once per currently-registered session. Used for
// rule_update/tag_update broadcast and the periodic tick.
func (r *Registry) ForEach(cb func(s *Session)) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()
	for _, s := range snapshot {
		cb(s)
	}
}

func otherConfigMap(keys, vals []string) map[string]string {
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		if i >= len(vals) {
			break
		}
		m[k] = vals[i]
	}
	return m
}

func dsoInitSymbol(name string, otherConfig map[string]string) string {
	if v, ok := otherConfig["dso_init"]; ok && v != "" {
		return v
	}
	return name + "_plugin_init"
}

// defaultDSOPath synthesizes "<default_dir>/libiotm_<name>.so" when the
// row's plugin column is empty.
func defaultDSOPath(name, defaultDir string) string {
	return fmt.Sprintf("%s/libiotm_%s.so", defaultDir, name)
}

// Create allocates a Session from row, resolves its adapter constructor
// (from row.Plugin if set, else the session name) via the static registry,
// and calls it to obtain the adapter instance — replacing the source's
// dlopen + dso_init symbol call.
func (r *Registry) Create(row ManagerConfigRow, defaultDir string) (*Session, error) {
	otherConfig := otherConfigMap(row.OtherConfigKeys, row.OtherConfigVals)

	dsoPath := row.Plugin
	if dsoPath == "" {
		dsoPath = defaultDSOPath(row.Handler, defaultDir)
	}

	family := row.Plugin
	if family == "" {
		family = row.Handler
	}
	ctor, ok := lookupConstructor(family)
	if !ok {
		return nil, fmt.Errorf("session %s: no adapter registered for family %q (init symbol %s)",
			row.Handler, family, dsoInitSymbol(row.Handler, otherConfig))
	}

	s := &Session{
		Name:        row.Handler,
		OtherConfig: otherConfig,
		DSOPath:     dsoPath,
		ReportTopic: otherConfig["mqtt_v"],
		events:      r.events,
		tagStore:    r.tagStore,
		targetLayer: r.targetLayer,
		report:      r.report,
		writer:      r.writer,
	}

	r.mu.Lock()
	s.emit = r.emit
	r.mu.Unlock()

	adapter, err := ctor(s, otherConfig)
	if err != nil {
		return nil, fmt.Errorf("session %s: adapter init failed: %w", row.Handler, err)
	}
	s.Adapter = adapter

	r.mu.Lock()
	r.sessions[s.Name] = s
	r.mu.Unlock()

	return s, nil
}

// Modify re-marshals row's other_config onto the existing session and
// fires its optional Update capability.
func (r *Registry) Modify(row ManagerConfigRow) {
	r.mu.Lock()
	s, ok := r.sessions[row.Handler]
	r.mu.Unlock()
	if !ok {
		log.Printf("[session] modify: no session named %q", row.Handler)
		return
	}
	s.OtherConfig = otherConfigMap(row.OtherConfigKeys, row.OtherConfigVals)
	s.ReportTopic = s.OtherConfig["mqtt_v"]
	s.notifyUpdate()
}

// Delete fires the session's optional Exit capability and removes it from
// the registry.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.notifyExit()
}

// BroadcastTagUpdate fires TagUpdate on every session, after the tag store
// has been updated (§5 ordering guarantee).
func (r *Registry) BroadcastTagUpdate() {
	r.ForEach(func(s *Session) { s.notifyTagUpdate() })
}

// BroadcastRuleUpdate fires RuleUpdate on every session for the given
// change. §5 requires this dispatch to complete before the next loop
// iteration; ForEach's synchronous snapshot-then-call satisfies that.
func (r *Registry) BroadcastRuleUpdate(kind RuleChangeKind, rule *rules.Rule) {
	r.ForEach(func(s *Session) { s.notifyRuleUpdate(kind, rule) })
}

// Periodic fires Periodic on every session, serially, driven by the loop
// substrate's ~5s ticker.
func (r *Registry) Periodic() {
	r.ForEach(func(s *Session) { s.notifyPeriodic() })
}

// RefreshMQTTHeaders replaces every session's LocationID/NodeID borrowed
// strings atomically, mirroring an AWLAN_Node row refresh (§5's
// shared-resource policy).
func (r *Registry) RefreshMQTTHeaders(locationID, nodeID string) {
	r.ForEach(func(s *Session) {
		s.LocationID = locationID
		s.NodeID = nodeID
	})
}
