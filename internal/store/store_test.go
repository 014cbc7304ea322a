package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := Open(db)
	require.NoError(t, err)
	return s
}

func sampleRule(name string) rules.Row {
	return rules.Row{
		Name:        name,
		EventName:   "ble_advertised",
		FilterKeys:  []string{"mac"},
		FilterVals:  []string{"AA:BB"},
		ActionsKeys: []string{"ble"},
		ActionsVals: []string{"ble_connect_device"},
	}
}

func TestUpsertAndLoadRuleRowsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertRuleConfig(sampleRule("r1")))

	rows, err := s.LoadRuleRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].Name)
	assert.Equal(t, []string{"mac"}, rows[0].FilterKeys)
	assert.Equal(t, []string{"AA:BB"}, rows[0].FilterVals)
}

func TestUpsertRuleConfigOverwritesByName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertRuleConfig(sampleRule("r1")))

	updated := sampleRule("r1")
	updated.FilterVals = []string{"CC:DD"}
	require.NoError(t, s.UpsertRuleConfig(updated))

	rows, err := s.LoadRuleRows()
	require.NoError(t, err)
	require.Len(t, rows, 1, "Save must upsert by primary key, not insert a duplicate row")
	assert.Equal(t, []string{"CC:DD"}, rows[0].FilterVals)
}

func TestRemoveRulesDeletesByName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertRules([]rules.Row{sampleRule("r1"), sampleRule("r2")}))

	require.NoError(t, s.RemoveRules([]string{"r1"}))

	rows, err := s.LoadRuleRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r2", rows[0].Name)
}

func TestRemoveRulesEmptyListIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertRuleConfig(sampleRule("r1")))
	require.NoError(t, s.RemoveRules(nil))

	rows, err := s.LoadRuleRows()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpsertTagRoundTripAndDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertTag("known_macs", []string{"AA:BB"}, []string{"CC:DD"}))

	rows, err := s.LoadTagRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "known_macs", rows[0].Name)
	assert.Equal(t, []string{"AA:BB"}, rows[0].DeviceValues)
	assert.Equal(t, []string{"CC:DD"}, rows[0].CloudValues)

	require.NoError(t, s.DeleteTag("known_macs"))
	rows, err = s.LoadTagRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpsertManagerConfigRoundTripAndDelete(t *testing.T) {
	s := newTestStore(t)
	row := session.ManagerConfigRow{
		Handler:         "ble0",
		Plugin:          "ble",
		OtherConfigKeys: []string{"scan_interval"},
		OtherConfigVals: []string{"5000"},
	}
	require.NoError(t, s.UpsertManagerConfig(row))

	rows, err := s.LoadManagerConfigRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ble0", rows[0].Handler)
	assert.Equal(t, []string{"scan_interval"}, rows[0].OtherConfigKeys)

	require.NoError(t, s.DeleteManagerConfig("ble0"))
	rows, err = s.LoadManagerConfigRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpsertAWLANNodeReturnsMostRecent(t *testing.T) {
	s := newTestStore(t)
	_, _, ok := s.LoadAWLANNode()
	assert.False(t, ok, "no row persisted yet")

	require.NoError(t, s.UpsertAWLANNode("loc-1", "node-1"))
	locationID, nodeID, ok := s.LoadAWLANNode()
	require.True(t, ok)
	assert.Equal(t, "loc-1", locationID)
	assert.Equal(t, "node-1", nodeID)

	require.NoError(t, s.UpsertAWLANNode("loc-2", "node-2"))
	locationID, nodeID, ok = s.LoadAWLANNode()
	require.True(t, ok)
	assert.Equal(t, "loc-2", locationID)
	assert.Equal(t, "node-2", nodeID)
}

func TestUpsertTagGroupPersists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertTagGroup("group1", []string{"a", "b"}))

	var m TagGroupModel
	require.NoError(t, s.db.First(&m, "name = ?", "group1").Error)
	assert.Equal(t, "a\nb", m.TagNames)
}

func TestSplitColumnOnEmptyStringYieldsNil(t *testing.T) {
	assert.Nil(t, splitColumn(""))
	assert.Equal(t, []string{"a", "b"}, splitColumn(joinColumn([]string{"a", "b"})))
}
