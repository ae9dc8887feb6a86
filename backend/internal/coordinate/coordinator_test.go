package coordinate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kindred/backend/internal/graph"
	"kindred/backend/pkg/errors"
)

// fakeStore is a hand-rolled in-memory Store
type fakeStore struct {
	match *graph.Match

	updateOK    bool
	claimOK     bool
	linked      bool
	updates     []graph.MatchUpdate
	claimCalls  int
	lookupCalls int
}

func newFakeStore(m *graph.Match) *fakeStore {
	return &fakeStore{match: m, updateOK: true, claimOK: true}
}

func (s *fakeStore) LatestActiveMatchForUser(ctx context.Context, userID string) (*graph.Match, bool) {
	s.lookupCalls++
	if s.match == nil || !s.match.Touches(userID) {
		return nil, false
	}
	copied := *s.match
	return &copied, true
}

func (s *fakeStore) UpdateMatch(ctx context.Context, fromID, toID string, upd graph.MatchUpdate) bool {
	if !s.updateOK {
		return false
	}
	s.updates = append(s.updates, upd)
	if upd.Status != nil {
		s.match.Status = *upd.Status
	}
	return true
}

func (s *fakeStore) ClaimLink(ctx context.Context, fromID, toID string) (bool, bool) {
	s.claimCalls++
	if !s.claimOK {
		return false, false
	}
	if s.linked {
		return false, true
	}
	s.linked = true
	return true, true
}

type fakeLinker struct {
	calls int
	err   error
}

func (l *fakeLinker) EstablishConnection(ctx context.Context, userA, userB string) error {
	l.calls++
	return l.err
}

func newTestCoordinator(store Store, linker Linker) *Coordinator {
	c := NewCoordinator(store, linker)
	c.now = func() time.Time { return testNow }
	return c
}

func TestAdvanceMatch_AcceptPersistsAndLinks(t *testing.T) {
	store := newFakeStore(newTestMatch(graph.StatusProposalSent))
	linker := &fakeLinker{}
	c := newTestCoordinator(store, linker)

	result, err := c.AdvanceMatch(context.Background(), "bob", Event{Type: EventAccept})
	require.NoError(t, err)

	assert.Equal(t, graph.StatusAccepted, result.NewStatus)
	assert.False(t, result.Skipped)
	require.Len(t, store.updates, 1)
	assert.Equal(t, graph.StatusAccepted, store.match.Status)
	assert.Equal(t, 1, linker.calls)
}

func TestAdvanceMatch_LinkFiresExactlyOnce(t *testing.T) {
	store := newFakeStore(newTestMatch(graph.StatusProposalSent))
	store.linked = true // a previous accept already claimed the link
	linker := &fakeLinker{}
	c := newTestCoordinator(store, linker)

	_, err := c.AdvanceMatch(context.Background(), "bob", Event{Type: EventAccept})
	require.NoError(t, err)

	assert.Equal(t, 1, store.claimCalls)
	assert.Equal(t, 0, linker.calls, "already-claimed link must not fire again")
}

func TestAdvanceMatch_ClaimFailureDefersLink(t *testing.T) {
	store := newFakeStore(newTestMatch(graph.StatusProposalSent))
	store.claimOK = false
	linker := &fakeLinker{}
	c := newTestCoordinator(store, linker)

	_, err := c.AdvanceMatch(context.Background(), "bob", Event{Type: EventAccept})
	require.NoError(t, err)
	assert.Equal(t, 0, linker.calls)
	assert.False(t, store.linked)
}

func TestAdvanceMatch_PersistFailureSkips(t *testing.T) {
	store := newFakeStore(newTestMatch(graph.StatusProposalSent))
	store.updateOK = false
	c := newTestCoordinator(store, &fakeLinker{})

	result, err := c.AdvanceMatch(context.Background(), "bob", Event{Type: EventAccept})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, graph.StatusProposalSent, store.match.Status)
}

func TestAdvanceMatch_NoActiveMatch(t *testing.T) {
	c := newTestCoordinator(newFakeStore(nil), nil)

	_, err := c.AdvanceMatch(context.Background(), "alice", Event{Type: EventAccept})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeMatch))
}

func TestAdvanceMatch_InvalidEventWritesNothing(t *testing.T) {
	store := newFakeStore(newTestMatch(graph.StatusMatchFound))
	c := newTestCoordinator(store, nil)

	// Only the initiator may propose
	_, err := c.AdvanceMatch(context.Background(), "bob", Event{Type: EventPropose})
	require.Error(t, err)
	assert.Empty(t, store.updates)
}

func TestAdvanceMatch_NoOpDecisionSkipsPersistence(t *testing.T) {
	m := newTestMatch(graph.StatusAccepted)
	m.FromClues = []graph.Clue{{Text: "red scarf"}}
	store := newFakeStore(m)
	c := newTestCoordinator(store, nil)

	result, err := c.AdvanceMatch(context.Background(), "alice", Event{Type: EventClue, Text: "red scarf"})
	require.NoError(t, err)

	assert.Empty(t, store.updates, "duplicate clue must not touch the store")
	assert.NotEmpty(t, result.MessageToUser)
}

func TestAdvanceMatch_FullLifecycle(t *testing.T) {
	m := newTestMatch(graph.StatusMatchFound)
	store := newFakeStore(m)
	linker := &fakeLinker{}
	c := newTestCoordinator(store, linker)
	ctx := context.Background()

	steps := []struct {
		actor string
		ev    Event
		want  graph.MatchStatus
	}{
		{"alice", Event{Type: EventPropose, Venue: "Corner Cafe", Time: "2026-03-09T18:00:00Z"}, graph.StatusProposalSent},
		{"bob", Event{Type: EventAccept}, graph.StatusAccepted},
		{"alice", Event{Type: EventClue, Text: "red scarf"}, graph.StatusAccepted},
		{"bob", Event{Type: EventClue, Text: "window table"}, graph.StatusScheduled},
		{"alice", Event{Type: EventFeedback, Text: "wonderful chat"}, graph.StatusScheduled},
		{"bob", Event{Type: EventFeedback, Text: "great recommendation"}, graph.StatusCompleted},
	}

	for _, step := range steps {
		// The fake store only tracks status; fold clue and feedback
		// updates in so the next step sees them
		result, err := c.AdvanceMatch(ctx, step.actor, step.ev)
		require.NoError(t, err, "step %s by %s", step.ev.Type, step.actor)
		require.False(t, result.Skipped)
		assert.Equal(t, step.want, result.NewStatus, "step %s by %s", step.ev.Type, step.actor)

		last := store.updates[len(store.updates)-1]
		if last.FromClues != nil {
			store.match.FromClues = *last.FromClues
		}
		if last.ToClues != nil {
			store.match.ToClues = *last.ToClues
		}
		if last.Feedback != nil {
			store.match.Feedback = *last.Feedback
		}
		if last.ProposedTime != nil {
			store.match.ProposedTime = *last.ProposedTime
		}
	}

	assert.Equal(t, 1, linker.calls)
	assert.True(t, store.match.Status.IsTerminal())
}
