// Package rules implements the in-memory rule/event index: rules grouped
// by the event name each one binds to, insert/update/delete against that
// index, and the uniqueness iterator adapters use to program hardware
// filters.
package rules

import (
	"log"
	"sync"

	"github.com/hackerspacekrk/iotm/internal/multimap"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

// mac is the reserved filter key consulted by catch-up routing (§9: this
// coupling is intentionally narrow — only "mac" is checked, not
// generalised to other key names).
const mac = "mac"

// Rule is the in-memory representation of one IOT_Rule_Config row.
type Rule struct {
	Name      string
	EventName string
	Filter    *multimap.KeyedMultimap
	Params    *multimap.KeyedMultimap
	Actions   *multimap.KeyedMultimap
}

// Row is the plain-struct shape the configuration-store binding hands to
// Insert/Delete; it mirrors schema_IOT_Rule_Config's flattened key/value
// column triples (§6).
type Row struct {
	Name        string
	EventName   string
	FilterKeys  []string
	FilterVals  []string
	ParamsKeys  []string
	ParamsVals  []string
	ActionsKeys []string
	ActionsVals []string
}

// Event is the grouping node in the rule index, keyed by the event name
// rules bind to. It exists iff it has at least one rule.
type Event struct {
	Name     string
	rules    map[string]*Rule
	NumRules int
}

// ForEachRule calls cb once per rule registered under this event.
func (e *Event) ForEachRule(cb func(r *Rule)) {
	for _, r := range e.rules {
		cb(r)
	}
}

// ForEachUniqueFilterValue walks every rule's filter, expands templates on
// the fly, and calls cb exactly once per distinct (key, value) pair
// observed across the whole event — the primitive adapters use to program
// hardware filters (e.g. "the unique set of MACs anyone currently cares
// about").
func (e *Event) ForEachUniqueFilterValue(store *tags.Store, cb func(key, value string)) {
	seen := make(map[[2]string]struct{})
	for _, r := range e.rules {
		r.Filter.ForEachList(func(key string, list *multimap.ValueList) {
			list.ForEach(func(v *multimap.Value) {
				for _, c := range tags.Expand(key, v.Value, store) {
					pair := [2]string{c.Key, c.Value}
					if _, dup := seen[pair]; dup {
						continue
					}
					seen[pair] = struct{}{}
					cb(c.Key, c.Value)
				}
			})
		})
	}
}

// RouteFunc dispatches one Command per action on rule directly, using
// params as the synthetic event parameters. It deliberately bypasses full
// event matching: catch-up routing (Insert) has already established that
// rule's relevant filter key matches, and the source's
// iotm_get_connected_routable_actions only ever walks the one rule being
// inserted, never re-evaluates sibling rules on the same event. The rule
// index never imports the router package directly (that would cycle
// through session→router→rules); instead the manager wires
// router.Router.RouteRuleActions into this hook after both are
// constructed.
type RouteFunc func(rule *Rule, params *multimap.KeyedMultimap)

// Index is the in-memory Event/Rule index. Rule-table changes are applied
// in the order the configuration-store binding delivers them.
type Index struct {
	mu     sync.Mutex
	events map[string]*Event

	// Route is consulted by Insert for catch-up routing (see Insert). It
	// may be nil in tests that only exercise index bookkeeping.
	Route RouteFunc

	// Tags backs catch-up routing's connected-device check and the
	// per-event unique-filter-value iterator.
	Tags *tags.Store
}

// NewIndex creates an empty rule/event index bound to the given tag store.
func NewIndex(tagStore *tags.Store) *Index {
	return &Index{events: make(map[string]*Event), Tags: tagStore}
}

// GetEvent returns the Event node for name, or nil if none exists.
func (idx *Index) GetEvent(name string) *Event {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.events[name]
}

// GetRule returns the rule named ruleName under eventName, or nil.
func (idx *Index) GetRule(ruleName, eventName string) *Rule {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ev, ok := idx.events[eventName]
	if !ok {
		return nil
	}
	return ev.rules[ruleName]
}

// Insert builds a Rule from row and links it into the Event keyed by
// row.EventName, creating that Event if needed. Inserts are idempotent on
// name: if a rule with the same name already exists under that event,
// Insert returns without change.
//
// If the rule's filter contains the reserved "mac" key and that value is
// currently present in the tag store's connect-tag list, Insert
// synthesizes a PluginEvent carrying just that mac and routes it
// immediately — catch-up routing for a device that is already connected at
// the moment the rule arrives. This is a single narrow branch, not a
// general mechanism; only "mac" triggers it.
func (idx *Index) Insert(row Row) {
	idx.mu.Lock()

	ev, ok := idx.events[row.EventName]
	if !ok {
		ev = &Event{Name: row.EventName, rules: make(map[string]*Rule)}
		idx.events[row.EventName] = ev
	}

	if _, exists := ev.rules[row.Name]; exists {
		idx.mu.Unlock()
		return
	}

	rule := &Rule{
		Name:      row.Name,
		EventName: row.EventName,
		Filter:    multimap.FromSchemaRow(row.FilterKeys, row.FilterVals),
		Params:    multimap.FromSchemaRow(row.ParamsKeys, row.ParamsVals),
		Actions:   multimap.FromSchemaRow(row.ActionsKeys, row.ActionsVals),
	}
	if rule.Filter == nil {
		rule.Filter = multimap.New()
	}
	if rule.Params == nil {
		rule.Params = multimap.New()
	}
	if rule.Actions == nil {
		rule.Actions = multimap.New()
	}

	ev.rules[rule.Name] = rule
	ev.NumRules++

	route := idx.Route
	tagStore := idx.Tags
	idx.mu.Unlock()

	if route == nil || tagStore == nil {
		return
	}
	connectedMac, ok := rule.Filter.GetSingle(mac)
	if !ok || !tagStore.IsConnected(connectedMac) {
		return
	}
	log.Printf("[rules] catch-up routing rule %q: mac %q already connected", rule.Name, connectedMac)
	params := multimap.New()
	params.Append(mac, connectedMac)
	route(rule, params)
}

// Update is implemented as delete-then-insert to avoid partial-mutation
// states.
func (idx *Index) Update(row Row) {
	idx.Delete(row.Name, row.EventName)
	idx.Insert(row)
}

// Delete removes the named rule from its event, decrementing NumRules; if
// it reaches zero the Event node itself is removed.
func (idx *Index) Delete(ruleName, eventName string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ev, ok := idx.events[eventName]
	if !ok {
		return
	}
	if _, ok := ev.rules[ruleName]; !ok {
		return
	}
	delete(ev.rules, ruleName)
	ev.NumRules--
	if ev.NumRules <= 0 {
		delete(idx.events, eventName)
	}
}
