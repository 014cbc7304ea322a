// Package event defines the two value types that cross the adapter/core
// boundary at emit time: PluginEvent (adapter → core) and Command
// (core → adapter).
package event

import "github.com/hackerspacekrk/iotm/internal/multimap"

// PluginEvent is the runtime value an adapter builds and hands to a
// session's Emit capability: an event name plus a keyed multimap of
// parameters. It is owned by the emitter and freed (here: left for the GC)
// once the router has consumed it; the router must not retain Params past
// the call.
type PluginEvent struct {
	Name   string
	Params *multimap.KeyedMultimap
}

// New allocates an empty PluginEvent, mirroring the session capability
// plugin_event_new(): the caller owns the result.
func New(name string) *PluginEvent {
	return &PluginEvent{Name: name, Params: multimap.New()}
}

// Command is constructed by the router for exactly one matching
// (adapter, action) pair and handed to exactly one adapter. The adapter
// must treat it as borrowed: read-only during the call, not retained past
// it.
type Command struct {
	Action string
	Params *multimap.KeyedMultimap
}

// Release satisfies multimap.Payload: when the output Value embedding this
// Command as a payload is dropped (duplicate discarded by set-append, or
// the whole output set torn down after dispatch), the Command itself is
// released. Params currently holds no further owned payloads, so there is
// nothing else to cascade into.
func (c *Command) Release() {
	c.Params = nil
}
