package store

import (
	"log"

	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

// Watcher replays configuration-store rows into the live core state at
// boot, and offers the same per-row entry points for whatever change feed
// drives the store afterward (admin HTTP write-back, a cloud-config
// puller — neither is this package's concern). Row delivery order within
// each table is preserved; §5 only guarantees ordering within a table, not
// across tables, so Load applies tags before sessions before rules: a rule
// referencing a tag template should see that tag already populated, and
// catch-up routing (rules.Index.Insert) should see the connect-tag state
// it depends on and the sessions it dispatches to.
type Watcher struct {
	store    *Store
	tagStore *tags.Store
	rules    *rules.Index
	sessions *session.Registry

	defaultAdapterDir string
}

// NewWatcher binds a Watcher to the live core collaborators it replays
// into and writes back from.
func NewWatcher(store *Store, tagStore *tags.Store, ruleIndex *rules.Index, sessions *session.Registry, defaultAdapterDir string) *Watcher {
	return &Watcher{
		store:             store,
		tagStore:          tagStore,
		rules:             ruleIndex,
		sessions:          sessions,
		defaultAdapterDir: defaultAdapterDir,
	}
}

// Load replays every persisted row into the core at boot, in tag →
// manager-config (session) → rule order, then applies the cached
// AWLAN_Node row (if any) to every session just created.
func (w *Watcher) Load() error {
	if err := w.loadTags(); err != nil {
		return err
	}
	if err := w.loadSessions(); err != nil {
		return err
	}
	if err := w.loadRules(); err != nil {
		return err
	}
	w.loadAWLANNode()
	return nil
}

func (w *Watcher) loadTags() error {
	rows, err := w.store.LoadTagRows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		w.tagStore.Add(row.Name, row.DeviceValues)
		w.tagStore.Add(row.Name, row.CloudValues)
	}
	return nil
}

func (w *Watcher) loadSessions() error {
	rows, err := w.store.LoadManagerConfigRows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := w.sessions.Create(row, w.defaultAdapterDir); err != nil {
			log.Printf("[store] watcher: session %q not started: %v", row.Handler, err)
		}
	}
	return nil
}

func (w *Watcher) loadRules() error {
	rows, err := w.store.LoadRuleRows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		w.rules.Insert(row)
	}
	return nil
}

func (w *Watcher) loadAWLANNode() {
	locationID, nodeID, ok := w.store.LoadAWLANNode()
	if !ok {
		return
	}
	w.sessions.RefreshMQTTHeaders(locationID, nodeID)
}

// OnTagInsert applies a newly-observed Openflow_Tag row: persist, update
// the live tag store, then broadcast TagUpdate to every session (§5
// ordering: store mutation completes before notification).
func (w *Watcher) OnTagInsert(name string, deviceValues, cloudValues []string) error {
	if err := w.store.UpsertTag(name, deviceValues, cloudValues); err != nil {
		return err
	}
	w.tagStore.Update(name, append(append([]string{}, deviceValues...), cloudValues...))
	w.sessions.BroadcastTagUpdate()
	return nil
}

// OnTagDelete applies a removed Openflow_Tag row.
func (w *Watcher) OnTagDelete(name string) error {
	if err := w.store.DeleteTag(name); err != nil {
		return err
	}
	w.tagStore.Remove(name)
	w.sessions.BroadcastTagUpdate()
	return nil
}

// OnTagGroupInsert persists an Openflow_Tag_Group row. Per §9's open
// question this has no effect on rule matching or routing today; the row
// is stored for whenever that behaviour gets defined upstream.
func (w *Watcher) OnTagGroupInsert(name string, tagNames []string) error {
	return w.store.UpsertTagGroup(name, tagNames)
}

// OnRuleInsert applies a newly-observed IOT_Rule_Config row: persist, then
// insert into the live rule index (which may trigger catch-up routing),
// then broadcast RuleUpdate.
func (w *Watcher) OnRuleInsert(row rules.Row) error {
	if err := w.store.UpsertRuleConfig(row); err != nil {
		return err
	}
	w.rules.Insert(row)
	w.sessions.BroadcastRuleUpdate(session.RuleInserted, w.rules.GetRule(row.Name, row.EventName))
	return nil
}

// OnRuleModify applies a changed IOT_Rule_Config row.
func (w *Watcher) OnRuleModify(row rules.Row) error {
	if err := w.store.UpsertRuleConfig(row); err != nil {
		return err
	}
	w.rules.Update(row)
	w.sessions.BroadcastRuleUpdate(session.RuleModified, w.rules.GetRule(row.Name, row.EventName))
	return nil
}

// OnRuleDelete applies a removed IOT_Rule_Config row. The rule is gone from
// the index by the time RuleDeleted fires, so rule is passed for context
// only and must not be mutated by handlers.
func (w *Watcher) OnRuleDelete(name, eventName string) error {
	rule := w.rules.GetRule(name, eventName)
	if err := w.store.RemoveRules([]string{name}); err != nil {
		return err
	}
	w.rules.Delete(name, eventName)
	w.sessions.BroadcastRuleUpdate(session.RuleDeleted, rule)
	return nil
}

// OnManagerConfigInsert applies a newly-observed IOT_Manager_Config row,
// starting the session.
func (w *Watcher) OnManagerConfigInsert(row session.ManagerConfigRow) error {
	if err := w.store.UpsertManagerConfig(row); err != nil {
		return err
	}
	_, err := w.sessions.Create(row, w.defaultAdapterDir)
	return err
}

// OnManagerConfigModify applies a changed IOT_Manager_Config row.
func (w *Watcher) OnManagerConfigModify(row session.ManagerConfigRow) error {
	if err := w.store.UpsertManagerConfig(row); err != nil {
		return err
	}
	w.sessions.Modify(row)
	return nil
}

// OnManagerConfigDelete applies a removed IOT_Manager_Config row, tearing
// down the session.
func (w *Watcher) OnManagerConfigDelete(handler string) error {
	if err := w.store.DeleteManagerConfig(handler); err != nil {
		return err
	}
	w.sessions.Delete(handler)
	return nil
}

// OnAWLANNodeUpdate applies a changed AWLAN_Node row, refreshing every
// session's cached MQTT header strings.
func (w *Watcher) OnAWLANNodeUpdate(locationID, nodeID string) error {
	if err := w.store.UpsertAWLANNode(locationID, nodeID); err != nil {
		return err
	}
	w.sessions.RefreshMQTTHeaders(locationID, nodeID)
	return nil
}
