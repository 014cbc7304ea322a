package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hackerspacekrk/iotm/internal/multimap"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/tags"
	"github.com/hackerspacekrk/iotm/internal/targetlayer"
)

func newTestRig(t *testing.T) (*Watcher, *Store, *tags.Store, *rules.Index, *session.Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := Open(db)
	require.NoError(t, err)

	tagStore := tags.New()
	ruleIdx := rules.NewIndex(tagStore)
	registry := session.NewRegistry(ruleIdx, tagStore, targetlayer.New(), nil, nil)
	w := NewWatcher(s, tagStore, ruleIdx, registry, "")
	return w, s, tagStore, ruleIdx, registry
}

func TestWatcherLoadAppliesTagsBeforeRules(t *testing.T) {
	w, s, tagStore, ruleIdx, _ := newTestRig(t)
	require.NoError(t, s.UpsertTag("known_macs", []string{"AA:BB"}, nil))
	require.NoError(t, s.UpsertRuleConfig(rules.Row{
		Name: "r1", EventName: "ble_advertised",
		FilterKeys: []string{"mac"}, FilterVals: []string{"${known_macs}"},
		ActionsKeys: []string{"ble"}, ActionsVals: []string{"ble_connect_device"},
	}))

	require.NoError(t, w.Load())

	assert.Contains(t, tagStore.Values("known_macs"), "AA:BB")
	ev := ruleIdx.GetEvent("ble_advertised")
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.NumRules)
}

func TestWatcherLoadStartsSessions(t *testing.T) {
	w, s, _, _, registry := newTestRig(t)
	family := "watcher-test-family"
	session.RegisterAdapter(family, func(sess *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return nil, nil
	})
	require.NoError(t, s.UpsertManagerConfig(session.ManagerConfigRow{Handler: "h1", Plugin: family}))

	require.NoError(t, w.Load())
	assert.NotNil(t, registry.Get("h1"))
}

func TestWatcherLoadAppliesCachedAWLANNode(t *testing.T) {
	w, s, _, _, registry := newTestRig(t)
	require.NoError(t, s.UpsertAWLANNode("loc-1", "node-1"))
	family := "watcher-awlan-family"
	session.RegisterAdapter(family, func(sess *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return nil, nil
	})
	require.NoError(t, s.UpsertManagerConfig(session.ManagerConfigRow{Handler: "h1", Plugin: family}))

	require.NoError(t, w.Load())

	sess := registry.Get("h1")
	require.NotNil(t, sess)
	assert.Equal(t, "loc-1", sess.LocationID)
	assert.Equal(t, "node-1", sess.NodeID)
}

func TestOnTagInsertPersistsAndUpdatesLiveStore(t *testing.T) {
	w, s, tagStore, _, _ := newTestRig(t)
	require.NoError(t, w.OnTagInsert("known_macs", []string{"AA:BB"}, []string{"CC:DD"}))

	assert.Contains(t, tagStore.Values("known_macs"), "AA:BB")
	assert.Contains(t, tagStore.Values("known_macs"), "CC:DD")

	rows, err := s.LoadTagRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestOnTagDeleteRemovesPersistedAndLiveValue(t *testing.T) {
	w, s, tagStore, _, _ := newTestRig(t)
	require.NoError(t, w.OnTagInsert("known_macs", []string{"AA:BB"}, nil))
	require.NoError(t, w.OnTagDelete("known_macs"))

	assert.NotContains(t, tagStore.Values("known_macs"), "AA:BB")
	rows, err := s.LoadTagRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOnRuleInsertTriggersCatchUpRouting(t *testing.T) {
	w, _, tagStore, ruleIdx, _ := newTestRig(t)
	tagStore.Add(tags.ConnectTag, []string{"AA:BB"})

	var routed bool
	ruleIdx.Route = func(rule *rules.Rule, params *multimap.KeyedMultimap) { routed = true }

	require.NoError(t, w.OnRuleInsert(rules.Row{
		Name: "r1", EventName: "ble_advertised",
		FilterKeys: []string{"mac"}, FilterVals: []string{"AA:BB"},
		ActionsKeys: []string{"ble"}, ActionsVals: []string{"ble_connect_device"},
	}))
	assert.True(t, routed)
}

func TestOnRuleDeleteRemovesFromIndexAndStore(t *testing.T) {
	w, s, _, ruleIdx, _ := newTestRig(t)
	require.NoError(t, w.OnRuleInsert(rules.Row{
		Name: "r1", EventName: "ble_advertised",
		FilterKeys: []string{"mac"}, FilterVals: []string{"AA:BB"},
		ActionsKeys: []string{"ble"}, ActionsVals: []string{"ble_connect_device"},
	}))

	require.NoError(t, w.OnRuleDelete("r1", "ble_advertised"))
	assert.Nil(t, ruleIdx.GetRule("r1", "ble_advertised"))

	rows, err := s.LoadRuleRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOnManagerConfigDeleteTearsDownSession(t *testing.T) {
	w, s, _, _, registry := newTestRig(t)
	family := "watcher-delete-family"
	session.RegisterAdapter(family, func(sess *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return nil, nil
	})
	require.NoError(t, w.OnManagerConfigInsert(session.ManagerConfigRow{Handler: "h1", Plugin: family}))
	require.NotNil(t, registry.Get("h1"))

	require.NoError(t, w.OnManagerConfigDelete("h1"))
	assert.Nil(t, registry.Get("h1"))

	rows, err := s.LoadManagerConfigRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOnAWLANNodeUpdateRefreshesSessions(t *testing.T) {
	w, _, _, _, registry := newTestRig(t)
	family := "watcher-mqtt-headers-family"
	session.RegisterAdapter(family, func(sess *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return nil, nil
	})
	require.NoError(t, w.OnManagerConfigInsert(session.ManagerConfigRow{Handler: "h1", Plugin: family}))

	require.NoError(t, w.OnAWLANNodeUpdate("loc-2", "node-2"))

	sess := registry.Get("h1")
	require.NotNil(t, sess)
	assert.Equal(t, "loc-2", sess.LocationID)
	assert.Equal(t, "node-2", sess.NodeID)
}
