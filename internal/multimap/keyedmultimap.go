package multimap

import "github.com/hackerspacekrk/iotm/internal/codec"

// KeyedMultimap maps a key to a ValueList. The aggregate Len equals the sum
// of contained ValueList lengths. The map preserves no ordering guarantee
// between lists; within a list, insertion order is preserved.
type KeyedMultimap struct {
	lists map[string]*ValueList
	// order records the key-insertion order so ForEachList is deterministic
	// in tests, even though the source's ds_tree gave no such guarantee.
	order []string
}

// New creates an empty KeyedMultimap.
func New() *KeyedMultimap {
	return &KeyedMultimap{lists: make(map[string]*ValueList)}
}

// Len returns the aggregate value count across every list.
func (m *KeyedMultimap) Len() int {
	total := 0
	for _, l := range m.lists {
		total += l.Len()
	}
	return total
}

// GetOrCreateList returns the list for k, creating an empty one if absent.
func (m *KeyedMultimap) GetOrCreateList(k string) *ValueList {
	if l, ok := m.lists[k]; ok {
		return l
	}
	l := NewValueList(k)
	m.lists[k] = l
	m.order = append(m.order, k)
	return l
}

// FindList returns the list for k without creating one.
func (m *KeyedMultimap) FindList(k string) (*ValueList, bool) {
	l, ok := m.lists[k]
	return l, ok
}

// Append adds (k, v) unconditionally to k's list, creating the list if
// needed.
func (m *KeyedMultimap) Append(k, v string) {
	m.GetOrCreateList(k).Append(&Value{Key: k, Value: v})
}

// SetAppend adds (k, v) only if it is not already present under k (set
// semantics on (key, value)).
func (m *KeyedMultimap) SetAppend(k, v string) {
	m.GetOrCreateList(k).AppendIfAbsent(&Value{Key: k, Value: v})
}

// AppendTyped encodes raw through codec.Encode(t) and appends the result
// under k. A codec failure is returned to the caller unchanged.
func (m *KeyedMultimap) AppendTyped(k string, t codec.Type, raw any) error {
	encoded, err := codec.Encode(raw, t)
	if err != nil {
		return err
	}
	m.Append(k, encoded)
	return nil
}

// AppendValue inserts a fully-built Value (used by the router to attach a
// Command payload) under key k, applying set semantics on (key, value).
func (m *KeyedMultimap) AppendValue(k string, v *Value) bool {
	return m.GetOrCreateList(k).AppendIfAbsent(v)
}

// ForEachList calls cb once per key/list pair.
func (m *KeyedMultimap) ForEachList(cb func(key string, list *ValueList)) {
	for _, k := range m.order {
		l, ok := m.lists[k]
		if !ok {
			continue
		}
		cb(k, l)
	}
}

// ForEachValue calls cb once per (key, value) pair across every list.
func (m *KeyedMultimap) ForEachValue(cb func(v *Value)) {
	m.ForEachList(func(_ string, l *ValueList) {
		l.ForEach(cb)
	})
}

// ForEachTyped filters to one key, decodes each value through codec, and
// calls back with the typed result. Decode failures are reported via
// onError (may be nil) and skipped.
func (m *KeyedMultimap) ForEachTyped(key string, t codec.Type, cb func(v any), onError func(raw string, err error)) {
	l, ok := m.lists[key]
	if !ok {
		return
	}
	l.ForEachTyped(t, cb, onError)
}

// RemoveList deletes the list keyed by k, releasing its values' payloads,
// and decrements the aggregate length implicitly (Len recomputes from the
// remaining lists).
func (m *KeyedMultimap) RemoveList(k string) {
	l, ok := m.lists[k]
	if !ok {
		return
	}
	l.release()
	delete(m.lists, k)
	for i, key := range m.order {
		if key == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// GetSingle returns the head text value for key k, mirroring ValueList.Head.
func (m *KeyedMultimap) GetSingle(k string) (string, bool) {
	l, ok := m.lists[k]
	if !ok {
		return "", false
	}
	return l.Head()
}

// GetSingleTyped returns the head value for key k decoded as type t.
func (m *KeyedMultimap) GetSingleTyped(k string, t codec.Type) (any, error) {
	raw, ok := m.GetSingle(k)
	if !ok {
		return nil, codec.ErrBadFormat
	}
	return codec.Decode(raw, t)
}

// Concat performs a per-value shallow copy of (key, text) from src into m,
// ignoring payloads — the same policy as the source's iotm_tree_concat_str.
func (m *KeyedMultimap) Concat(src *KeyedMultimap) {
	if src == nil {
		return
	}
	src.ForEachValue(func(v *Value) {
		m.Append(v.Key, v.Value)
	})
}

// FromSchemaRow constructs a multimap where each (key, value) pair from
// parallel keys/values slices becomes a single-element list, mirroring
// schema_to_multimap's ingest of filter/param/action columns. Returns nil
// if keys is empty, matching the source's n==0 contract.
func FromSchemaRow(keys, values []string) *KeyedMultimap {
	if len(keys) == 0 {
		return nil
	}
	m := New()
	for i, k := range keys {
		if i >= len(values) {
			break
		}
		m.Append(k, values[i])
	}
	return m
}
