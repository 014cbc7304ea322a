package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNamesStripsSigilAndBrackets(t *testing.T) {
	names := ExtractNames("prefix ${@device_macs} and $[#cloud_ids] suffix")
	assert.Contains(t, names, "device_macs")
	assert.Contains(t, names, "cloud_ids")
	assert.Len(t, names, 2)
}

func TestHasTemplate(t *testing.T) {
	assert.True(t, HasTemplate("${tag}"))
	assert.True(t, HasTemplate("$[tag]"))
	assert.False(t, HasTemplate("AA:BB:CC"))
}

func TestStoreUpdateReplacesValues(t *testing.T) {
	s := New()
	s.Add("macs", []string{"AA", "BB"})
	s.Update("macs", []string{"CC"})
	assert.Equal(t, []string{"CC"}, s.Values("macs"))
}

func TestStoreAddIsSetSemantics(t *testing.T) {
	s := New()
	s.Add("macs", []string{"AA", "AA", "BB"})
	assert.ElementsMatch(t, []string{"AA", "BB"}, s.Values("macs"))
}

func TestIsConnected(t *testing.T) {
	s := New()
	s.Add(ConnectTag, []string{"AA:BB"})
	assert.True(t, s.IsConnected("AA:BB"))
	assert.False(t, s.IsConnected("CC:DD"))
}

func TestExpandNoTemplateYieldsVerbatim(t *testing.T) {
	s := New()
	out := Expand("mac", "AA:BB", s)
	assert.Equal(t, []Candidate{{Key: "mac", Value: "AA:BB"}}, out)
}

func TestExpandUnknownTagSkipped(t *testing.T) {
	s := New()
	out := Expand("mac", "${nonexistent}", s)
	assert.Empty(t, out)
}

func TestExpandResolvesTagValues(t *testing.T) {
	s := New()
	s.Add("known_macs", []string{"AA", "BB"})
	out := Expand("mac", "${known_macs}", s)
	assert.Len(t, out, 2)
	for _, c := range out {
		assert.Equal(t, "mac", c.Key)
	}
}
