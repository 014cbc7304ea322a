package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackerspacekrk/iotm/internal/multimap"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

func simpleRow(name, eventName, filterKey, filterVal string) Row {
	return Row{
		Name:        name,
		EventName:   eventName,
		FilterKeys:  []string{filterKey},
		FilterVals:  []string{filterVal},
		ActionsKeys: []string{"ble"},
		ActionsVals: []string{"ble_connect_device"},
	}
}

func TestInsertCreatesEventAndRule(t *testing.T) {
	idx := NewIndex(tags.New())
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))

	ev := idx.GetEvent("ble_advertised")
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.NumRules)
	assert.NotNil(t, idx.GetRule("r1", "ble_advertised"))
}

func TestInsertIsIdempotentOnName(t *testing.T) {
	idx := NewIndex(tags.New())
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "CC:DD"))

	rule := idx.GetRule("r1", "ble_advertised")
	require.NotNil(t, rule)
	v, _ := rule.Filter.GetSingle("mac")
	assert.Equal(t, "AA:BB", v, "second insert of the same name must not overwrite")
}

func TestDeleteRemovesEmptyEvent(t *testing.T) {
	idx := NewIndex(tags.New())
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))
	idx.Delete("r1", "ble_advertised")

	assert.Nil(t, idx.GetEvent("ble_advertised"))
}

func TestUpdateIsDeleteThenInsert(t *testing.T) {
	idx := NewIndex(tags.New())
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))
	idx.Update(simpleRow("r1", "ble_advertised", "mac", "CC:DD"))

	rule := idx.GetRule("r1", "ble_advertised")
	require.NotNil(t, rule)
	v, _ := rule.Filter.GetSingle("mac")
	assert.Equal(t, "CC:DD", v)
}

func TestForEachUniqueFilterValueDedupesAcrossRules(t *testing.T) {
	idx := NewIndex(tags.New())
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))
	idx.Insert(simpleRow("r2", "ble_advertised", "mac", "AA:BB"))
	idx.Insert(simpleRow("r3", "ble_advertised", "mac", "CC:DD"))

	var seen []string
	idx.GetEvent("ble_advertised").ForEachUniqueFilterValue(idx.Tags, func(key, value string) {
		assert.Equal(t, "mac", key)
		seen = append(seen, value)
	})
	assert.ElementsMatch(t, []string{"AA:BB", "CC:DD"}, seen)
}

func TestForEachUniqueFilterValueExpandsTagTemplates(t *testing.T) {
	store := tags.New()
	store.Add("known_macs", []string{"AA:BB", "CC:DD"})
	idx := NewIndex(store)
	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "${known_macs}"))

	var seen []string
	idx.GetEvent("ble_advertised").ForEachUniqueFilterValue(idx.Tags, func(key, value string) {
		seen = append(seen, value)
	})
	assert.ElementsMatch(t, []string{"AA:BB", "CC:DD"}, seen)
}

func TestInsertRoutesCatchUpWhenMacAlreadyConnected(t *testing.T) {
	store := tags.New()
	store.Add(tags.ConnectTag, []string{"AA:BB"})
	idx := NewIndex(store)

	var routedRule *Rule
	var routedParams *multimap.KeyedMultimap
	idx.Route = func(rule *Rule, params *multimap.KeyedMultimap) {
		routedRule = rule
		routedParams = params
	}

	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))

	require.NotNil(t, routedRule)
	assert.Equal(t, "r1", routedRule.Name)
	v, _ := routedParams.GetSingle("mac")
	assert.Equal(t, "AA:BB", v)
}

func TestInsertDoesNotRouteWhenMacNotConnected(t *testing.T) {
	idx := NewIndex(tags.New())
	routed := false
	idx.Route = func(rule *Rule, params *multimap.KeyedMultimap) { routed = true }

	idx.Insert(simpleRow("r1", "ble_advertised", "mac", "AA:BB"))
	assert.False(t, routed)
}
