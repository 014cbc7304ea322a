// Package tags implements the tag store: a keyed multimap specialised to
// the tag namespace, plus the template scanner/extractor/expander used by
// the router to turn "${name}"/"$[name]" references in a rule filter into
// concrete candidate values.
package tags

import (
	"log"
	"regexp"

	"github.com/hackerspacekrk/iotm/internal/multimap"
)

// ConnectTag is the reserved tag name tracking currently-connected
// identifiers, written by the connected-devices adapter and consulted by
// the rule index's catch-up routing path.
const ConnectTag = "iot_connected_devices"

// templatePattern matches both bracket styles, $\{...\} and $[...]. The
// two forms exist upstream for cloud/device provenance distinction that is
// flattened at this layer.
var templatePattern = regexp.MustCompile(`\$(\{[^}]*\}|\[[^\]]*\])`)

// HasTemplate reports whether s contains at least one template reference.
func HasTemplate(s string) bool {
	return templatePattern.MatchString(s)
}

// ExtractNames returns the set of distinct tag names referenced by s's
// templates. An optional single-character sigil ('@' device, '#' cloud)
// immediately inside the brackets is tolerated and discarded; the core
// never surfaces that provenance upward.
func ExtractNames(s string) map[string]struct{} {
	names := make(map[string]struct{})
	for _, match := range templatePattern.FindAllString(s, -1) {
		// match is either "${...}" or "$[...]"; strip the 3 leading/
		// trailing wrapper bytes ($, bracket, bracket).
		inner := match[2 : len(match)-1]
		if len(inner) > 0 && (inner[0] == '@' || inner[0] == '#') {
			inner = inner[1:]
		}
		if inner == "" {
			continue
		}
		names[inner] = struct{}{}
	}
	return names
}

// Store is a KeyedMultimap specialised to the tag namespace: set-append
// semantics per key, so adding the same (tag, value) pair any number of
// times leaves the store in the same state as adding it once.
type Store struct {
	mm *multimap.KeyedMultimap
}

// New creates an empty tag store.
func New() *Store {
	return &Store{mm: multimap.New()}
}

// Add set-appends every element of values into T[name]. Set-append cannot
// fail at this layer, so Add has no failure path and performs no rollback.
func (s *Store) Add(name string, values []string) {
	for _, v := range values {
		s.mm.SetAppend(name, v)
	}
}

// Update replaces tag name's value set: Remove(name) then Add(name, values).
func (s *Store) Update(name string, values []string) {
	s.Remove(name)
	s.Add(name, values)
}

// Remove drops the list keyed by name.
func (s *Store) Remove(name string) {
	s.mm.RemoveList(name)
}

// Values returns the current value set for name, or nil if the tag is
// absent.
func (s *Store) Values(name string) []string {
	l, ok := s.mm.FindList(name)
	if !ok {
		return nil
	}
	out := make([]string, 0, l.Len())
	l.ForEach(func(v *multimap.Value) { out = append(out, v.Value) })
	return out
}

// IsConnected reports whether mac is currently present in ConnectTag's
// value set.
func (s *Store) IsConnected(mac string) bool {
	l, ok := s.mm.FindList(ConnectTag)
	if !ok {
		return false
	}
	return l.ContainsValue(mac)
}

// ForEachTag iterates every (tag-name, value) pair currently stored, or —
// if name is non-empty — only the values of that one tag.
func (s *Store) ForEachTag(name string, cb func(tagName, value string)) {
	if name != "" {
		l, ok := s.mm.FindList(name)
		if !ok {
			return
		}
		l.ForEach(func(v *multimap.Value) { cb(name, v.Value) })
		return
	}
	s.mm.ForEachList(func(key string, l *multimap.ValueList) {
		l.ForEach(func(v *multimap.Value) { cb(key, v.Value) })
	})
}

// Candidate is a (key, value) pair produced by expanding a filter value's
// templates; key is the filter's original key, not the tag's internal key.
type Candidate struct {
	Key   string
	Value string
}

// Expand resolves a template-bearing filter value v (associated with key k)
// against the store: for every tag name referenced in v, every element of
// that tag's value set is yielded as a Candidate carrying k. Unknown tag
// names are skipped with a debug log. A value without a template yields
// itself verbatim.
func Expand(k, v string, s *Store) []Candidate {
	if !HasTemplate(v) {
		return []Candidate{{Key: k, Value: v}}
	}

	names := ExtractNames(v)
	var out []Candidate
	for name := range names {
		l, ok := s.mm.FindList(name)
		if !ok {
			log.Printf("[tags] debug: template references unknown tag %q, skipping", name)
			continue
		}
		l.ForEach(func(val *multimap.Value) {
			out = append(out, Candidate{Key: k, Value: val.Value})
		})
	}
	return out
}
