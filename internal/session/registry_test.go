package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/tags"
	"github.com/hackerspacekrk/iotm/internal/targetlayer"
)

type fakeAdapter struct {
	updates      int
	tagUpdates   int
	ruleUpdates  []session.RuleChangeKind
	periodicHits int
	exited       bool
}

func (a *fakeAdapter) Handle(s *session.Session, cmd *event.Command) {}
func (a *fakeAdapter) Update(s *session.Session)                  { a.updates++ }
func (a *fakeAdapter) TagUpdate(s *session.Session)               { a.tagUpdates++ }
func (a *fakeAdapter) RuleUpdate(s *session.Session, kind session.RuleChangeKind, rule *rules.Rule) {
	a.ruleUpdates = append(a.ruleUpdates, kind)
}
func (a *fakeAdapter) Periodic(s *session.Session) { a.periodicHits++ }
func (a *fakeAdapter) Exit(s *session.Session)     { a.exited = true }

func newRegistry() (*session.Registry, *rules.Index, *tags.Store) {
	tagStore := tags.New()
	ruleIdx := rules.NewIndex(tagStore)
	return session.NewRegistry(ruleIdx, tagStore, targetlayer.New(), nil, nil), ruleIdx, tagStore
}

func TestCreateUnknownFamilyFails(t *testing.T) {
	registry, _, _ := newRegistry()
	_, err := registry.Create(session.ManagerConfigRow{Handler: "nope", Plugin: "no-such-family"}, "/tmp")
	assert.Error(t, err)
}

func TestCreateModifyDeleteLifecycle(t *testing.T) {
	registry, _, _ := newRegistry()
	adapter := &fakeAdapter{}
	family := "fake-lifecycle"
	session.RegisterAdapter(family, func(s *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return adapter, nil
	})

	s, err := registry.Create(session.ManagerConfigRow{
		Handler: "sess1", Plugin: family,
		OtherConfigKeys: []string{"k"}, OtherConfigVals: []string{"v1"},
	}, "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "sess1", s.Name)
	assert.Same(t, s, registry.Get("sess1"))

	registry.Modify(session.ManagerConfigRow{
		Handler: "sess1", Plugin: family,
		OtherConfigKeys: []string{"k"}, OtherConfigVals: []string{"v2"},
	})
	assert.Equal(t, 1, adapter.updates)
	v, _ := s.GetConfig("k")
	assert.Equal(t, "v2", v)

	registry.Delete("sess1")
	assert.True(t, adapter.exited)
	assert.Nil(t, registry.Get("sess1"))
}

func TestBroadcastTagAndRuleUpdates(t *testing.T) {
	registry, _, _ := newRegistry()
	adapter := &fakeAdapter{}
	family := "fake-broadcast"
	session.RegisterAdapter(family, func(s *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return adapter, nil
	})
	_, err := registry.Create(session.ManagerConfigRow{Handler: "sess1", Plugin: family}, "/tmp")
	require.NoError(t, err)

	registry.BroadcastTagUpdate()
	assert.Equal(t, 1, adapter.tagUpdates)

	registry.BroadcastRuleUpdate(session.RuleInserted, nil)
	require.Len(t, adapter.ruleUpdates, 1)
	assert.Equal(t, session.RuleInserted, adapter.ruleUpdates[0])
}

func TestPeriodicFiresOnEverySession(t *testing.T) {
	registry, _, _ := newRegistry()
	adapter := &fakeAdapter{}
	family := "fake-periodic"
	session.RegisterAdapter(family, func(s *session.Session, otherConfig map[string]string) (session.Adapter, error) {
		return adapter, nil
	})
	_, err := registry.Create(session.ManagerConfigRow{Handler: "sess1", Plugin: family}, "/tmp")
	require.NoError(t, err)

	registry.Periodic()
	assert.Equal(t, 1, adapter.periodicHits)
}
