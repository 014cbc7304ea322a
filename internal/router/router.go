// Package router implements emit-time matching: given a PluginEvent, walk
// every rule bound to its event name, expand tag templates on the fly,
// and for every rule whose filter matches produce one Command per
// rule-action, then dispatch each Command to the session named by the
// action's key.
package router

import (
	"log"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/multimap"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

// wildcard is the literal event-param value that matches any filter
// candidate. A filter value of "*" is a literal string, not a wildcard —
// the asymmetry is intentional (§4.6 tie-breaks).
const wildcard = "*"

// SessionLookup resolves an adapter name to its live Session, or nil.
// Satisfied by *session.Registry; kept as an interface so the router can
// be unit-tested against a fake registry.
type SessionLookup interface {
	Get(name string) *session.Session
}

// Router matches PluginEvents against the rule/event index and dispatches
// the resulting Commands to sessions.
type Router struct {
	Events   *rules.Index
	Tags     *tags.Store
	Sessions SessionLookup

	// OnDispatch, if set, is called for every (adapter, action, command)
	// pair just before Handle is invoked — the admin HTTP/WS surface hooks
	// this to stream live routing activity without the router depending on
	// it.
	OnDispatch func(adapterName string, cmd *event.Command)
}

// New constructs a Router bound to the given event index, tag store, and
// session lookup.
func New(events *rules.Index, tagStore *tags.Store, sessions SessionLookup) *Router {
	return &Router{Events: events, Tags: tagStore, Sessions: sessions}
}

// Emit is the router's event entry point, matching session.Emitter so it
// can be wired into the session registry without that package importing
// this one (RouteRuleActions plays the same role for rules.RouteFunc). If
// no Event is registered for pe.Name, emit is a no-op.
func (r *Router) Emit(_ *session.Session, pe *event.PluginEvent) {
	if pe == nil {
		return
	}
	ev := r.Events.GetEvent(pe.Name)
	if ev == nil {
		log.Printf("[router] debug: no rules for event %q", pe.Name)
		return
	}
	r.routeEvent(pe.Name, pe.Params)
}

// RouteRuleActions dispatches one Command per action on rule, using params
// as the synthetic event parameters, without re-evaluating rule's filter
// or any sibling rule on the same event. It matches rules.RouteFunc and is
// wired into the rule index's catch-up-routing hook (Insert): a rule whose
// "mac" filter already points at a connected device is routed once,
// immediately, using just that rule's own actions — mirroring the
// source's iotm_get_connected_routable_actions, which never re-runs full
// event matching.
func (r *Router) RouteRuleActions(rule *rules.Rule, params *multimap.KeyedMultimap) {
	actions := multimap.New()
	r.collectActions(rule, params, actions)
	r.dispatchActions(actions)
}

func (r *Router) routeEvent(eventName string, params *multimap.KeyedMultimap) {
	ev := r.Events.GetEvent(eventName)
	if ev == nil {
		return
	}

	actions := multimap.New()
	ev.ForEachRule(func(rule *rules.Rule) {
		if !r.ruleMatches(rule, params) {
			return
		}
		r.collectActions(rule, params, actions)
	})

	r.dispatchActions(actions)
}

// dispatchActions walks an output action set built by collectActions and
// hands each Command to the session named by its key, then frees the set
// (cascading into every Command payload's Release, matching §4.6 step 5 /
// §3's Command ownership rule).
func (r *Router) dispatchActions(actions *multimap.KeyedMultimap) {
	if actions.Len() == 0 {
		return
	}
	actions.ForEachValue(func(v *multimap.Value) {
		cmd, ok := v.Payload.(*event.Command)
		if !ok || cmd == nil {
			return
		}
		r.dispatch(v.Key, cmd)
	})

	var keys []string
	actions.ForEachList(func(k string, _ *multimap.ValueList) { keys = append(keys, k) })
	for _, k := range keys {
		actions.RemoveList(k)
	}
}

// ruleMatches implements §4.6 step 3: a rule with zero filter keys never
// matches (the "filter.len > 0" guard from the source; treating an empty
// filter as always-match is an explicit non-goal). Every filter key must
// have at least one matching candidate in params for the rule to match.
func (r *Router) ruleMatches(rule *rules.Rule, params *multimap.KeyedMultimap) bool {
	if rule.Filter.Len() == 0 {
		return false
	}

	match := true
	rule.Filter.ForEachList(func(filterKey string, filterValues *multimap.ValueList) {
		if !match {
			return
		}
		match = r.filterKeyMatches(filterKey, filterValues, params)
	})
	return match
}

// filterKeyMatches expands every raw filter value under filterKey through
// tag templates, then checks whether any candidate is present (by string
// equality, or via the event-side wildcard) in params[filterKey].
func (r *Router) filterKeyMatches(filterKey string, filterValues *multimap.ValueList, params *multimap.KeyedMultimap) bool {
	eventValues, ok := params.FindList(filterKey)
	if !ok {
		return false
	}

	matched := false
	filterValues.ForEach(func(raw *multimap.Value) {
		if matched {
			return
		}
		for _, candidate := range tags.Expand(filterKey, raw.Value, r.Tags) {
			if eventValues.Contains(filterKey, candidate.Value) || eventValues.ContainsValue(wildcard) {
				matched = true
				break
			}
		}
	})
	return matched
}

// collectActions builds one Command per (adapter_name, action_name) pair
// in rule.Actions and inserts it into actions under adapter_name with set
// semantics: the same (adapter, action) pair produced by two matching
// rules yields a single Command, first rule's params win (later
// duplicates are discarded, their Commands released). This is an
// explicitly preserved open question from §4.6/§9 — not changed here.
func (r *Router) collectActions(rule *rules.Rule, eventParams *multimap.KeyedMultimap, actions *multimap.KeyedMultimap) {
	rule.Actions.ForEachValue(func(actionEntry *multimap.Value) {
		adapterName := actionEntry.Key
		actionName := actionEntry.Value

		cmdParams := multimap.New()
		cmdParams.Concat(eventParams)
		cmdParams.Concat(rule.Params)

		cmd := &event.Command{Action: actionName, Params: cmdParams}
		actions.AppendValue(adapterName, &multimap.Value{
			Key:     adapterName,
			Value:   actionName,
			Payload: cmd,
		})
	})
}

func (r *Router) dispatch(adapterName string, cmd *event.Command) {
	s := r.Sessions.Get(adapterName)
	if s == nil {
		log.Printf("[router] error: no session named %q to route action %q", adapterName, cmd.Action)
		return
	}
	if r.OnDispatch != nil {
		r.OnDispatch(adapterName, cmd)
	}
	s.Adapter.Handle(s, cmd)
}
