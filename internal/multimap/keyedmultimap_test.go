package multimap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseTracker struct{ released bool }

func (r *releaseTracker) Release() { r.released = true }

func TestSetAppendDedupes(t *testing.T) {
	m := New()
	m.SetAppend("mac", "AA:BB")
	m.SetAppend("mac", "AA:BB")
	m.SetAppend("mac", "CC:DD")

	l, ok := m.FindList("mac")
	require.True(t, ok)
	assert.Equal(t, 2, l.Len())
}

func TestAppendValueReleasesDuplicatePayload(t *testing.T) {
	m := New()
	first := &releaseTracker{}
	second := &releaseTracker{}

	ok1 := m.AppendValue("ble", &Value{Key: "ble", Value: "connect", Payload: first})
	ok2 := m.AppendValue("ble", &Value{Key: "ble", Value: "connect", Payload: second})

	assert.True(t, ok1)
	assert.False(t, ok2)
	assert.False(t, first.released)
	assert.True(t, second.released)
}

func TestRemoveListCascadesRelease(t *testing.T) {
	m := New()
	tracker := &releaseTracker{}
	m.AppendValue("k", &Value{Key: "k", Value: "v", Payload: tracker})
	m.RemoveList("k")
	assert.True(t, tracker.released)
	_, ok := m.FindList("k")
	assert.False(t, ok)
}

func TestHeadReturnsFirstNotLast(t *testing.T) {
	m := New()
	m.Append("mac", "first")
	m.Append("mac", "second")
	v, ok := m.GetSingle("mac")
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestFromSchemaRowEmptyKeysYieldsNil(t *testing.T) {
	assert.Nil(t, FromSchemaRow(nil, nil))
}

func TestFromSchemaRowPairsUpByIndex(t *testing.T) {
	m := FromSchemaRow([]string{"a", "b"}, []string{"1", "2"})
	require.NotNil(t, m)
	v, _ := m.GetSingle("a")
	assert.Equal(t, "1", v)
	v, _ = m.GetSingle("b")
	assert.Equal(t, "2", v)
}

func TestConcatCopiesTextIgnoringPayload(t *testing.T) {
	src := New()
	src.AppendValue("k", &Value{Key: "k", Value: "v", Payload: &releaseTracker{}})

	dst := New()
	dst.Concat(src)

	v, ok := dst.GetSingle("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	l, _ := dst.FindList("k")
	assert.Nil(t, l.Values()[0].Payload)
}
