// Package multimap implements the core's value-list and keyed-multimap
// primitives: an ordered (key, value) pair type with an optional owned
// payload, a set-semantics ordered list of such pairs sharing a key, and a
// map from key to list. Rules, filters, params, and actions are all built
// on top of a KeyedMultimap.
package multimap

// Payload is the sum-type replacement for the source's void* "other"
// pointer on a Value. A Value either carries no payload (nil), or owns
// exactly one value implementing this interface (the router stores an
// *event.Command here). Release is called by the owning ValueList
// when the Value is dropped (set-append discard, list removal, output-set
// teardown), cascading frees the way the source's free_other callback did.
type Payload interface {
	Release()
}

// Value is a (key, value) string pair that may carry an auxiliary owned
// payload. Key and Value are always non-empty-capable strings (never a
// language-level null); Payload is optional.
type Value struct {
	Key     string
	Value   string
	Payload Payload
}

func (v *Value) release() {
	if v.Payload != nil {
		v.Payload.Release()
		v.Payload = nil
	}
}
