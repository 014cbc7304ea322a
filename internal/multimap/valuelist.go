package multimap

import "github.com/hackerspacekrk/iotm/internal/codec"

// ValueList is an ordered sequence of Values sharing a common Key. Len
// always equals the observable iteration count (it is not cached
// separately from len(values); the Len method exists so callers mirroring
// the source's struct shape can read cardinality without iterating).
type ValueList struct {
	Key    string
	values []*Value
}

// NewValueList creates an empty list for the given key.
func NewValueList(key string) *ValueList {
	return &ValueList{Key: key}
}

// Len reports the number of values currently held.
func (l *ValueList) Len() int {
	return len(l.values)
}

// Append adds v unconditionally, in insertion order.
func (l *ValueList) Append(v *Value) {
	l.values = append(l.values, v)
}

// AppendIfAbsent adds v only if no existing value matches both key and
// value by string equality (set semantics on (key, value)). If v is a
// duplicate, its payload is released and it is discarded; AppendIfAbsent
// reports whether v was kept.
func (l *ValueList) AppendIfAbsent(v *Value) bool {
	for _, existing := range l.values {
		if existing.Key == v.Key && existing.Value == v.Value {
			v.release()
			return false
		}
	}
	l.values = append(l.values, v)
	return true
}

// Contains reports whether any value in the list equals (key, value).
func (l *ValueList) Contains(key, value string) bool {
	for _, v := range l.values {
		if v.Key == key && v.Value == value {
			return true
		}
	}
	return false
}

// ContainsValue reports whether any value's text equals value, ignoring key.
func (l *ValueList) ContainsValue(value string) bool {
	for _, v := range l.values {
		if v.Value == value {
			return true
		}
	}
	return false
}

// Head returns the first appended value's text, not the last. This is
// load-bearing: single-valued fields in the routing engine (e.g. a rule
// filter's "mac" key that happens to hold exactly one entry) are read
// through Head, and callers must not assume it tracks the most recent
// Append.
func (l *ValueList) Head() (string, bool) {
	if len(l.values) == 0 {
		return "", false
	}
	return l.values[0].Value, true
}

// Values returns the backing slice. Callers must treat it as read-only;
// it is not copied for iteration performance on the router's hot path.
func (l *ValueList) Values() []*Value {
	return l.values
}

// ForEach calls cb once per value, in insertion order.
func (l *ValueList) ForEach(cb func(v *Value)) {
	for _, v := range l.values {
		cb(v)
	}
}

// ForEachTyped decodes each value through codec.Decode(key's type) and
// invokes cb with the typed result. A decode failure is logged by the
// caller-supplied onError hook (may be nil) and that value is skipped;
// the iteration continues.
func (l *ValueList) ForEachTyped(t codec.Type, cb func(v any), onError func(raw string, err error)) {
	for _, v := range l.values {
		decoded, err := codec.Decode(v.Value, t)
		if err != nil {
			if onError != nil {
				onError(v.Value, err)
			}
			continue
		}
		cb(decoded)
	}
}

// RenameKey rewrites every Value's Key, and the list's own Key, in place.
func (l *ValueList) RenameKey(newKey string) {
	l.Key = newKey
	for _, v := range l.values {
		v.Key = newKey
	}
}

// release cascades Payload.Release() across every value, used when the
// whole list is discarded (KeyedMultimap.RemoveList).
func (l *ValueList) release() {
	for _, v := range l.values {
		v.release()
	}
}
