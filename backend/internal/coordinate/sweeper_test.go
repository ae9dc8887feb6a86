package coordinate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kindred/backend/internal/graph"
)

type fakeSweepStore struct {
	active   []graph.Match
	upcoming []graph.Match
	past     []graph.Match

	listOK  bool
	updates map[string]graph.MatchStatus
	tags    map[string][]string
}

func newFakeSweepStore() *fakeSweepStore {
	return &fakeSweepStore{
		listOK:  true,
		updates: make(map[string]graph.MatchStatus),
		tags:    make(map[string][]string),
	}
}

func pairKey(fromID, toID string) string { return fromID + "->" + toID }

func (s *fakeSweepStore) ListActiveMatches(ctx context.Context, statuses []graph.MatchStatus) ([]graph.Match, bool) {
	return s.active, s.listOK
}

func (s *fakeSweepStore) ListUpcomingScheduled(ctx context.Context, hoursWindow int) ([]graph.Match, bool) {
	return s.upcoming, s.listOK
}

func (s *fakeSweepStore) ListPastScheduled(ctx context.Context, hoursWindow int) ([]graph.Match, bool) {
	return s.past, s.listOK
}

func (s *fakeSweepStore) UpdateMatch(ctx context.Context, fromID, toID string, upd graph.MatchUpdate) bool {
	if upd.Status != nil {
		s.updates[pairKey(fromID, toID)] = *upd.Status
	}
	return true
}

func (s *fakeSweepStore) MarkReminded(ctx context.Context, fromID, toID, tag string) bool {
	key := pairKey(fromID, toID)
	s.tags[key] = append(s.tags[key], tag)
	return true
}

type fakeNotifier struct {
	messages map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (n *fakeNotifier) Notify(ctx context.Context, userID, message string) error {
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func testPolicy() Policy {
	return Policy{
		ProposalWindow: 72 * time.Hour,
		ResponseWindow: 48 * time.Hour,
		ReminderWindow: 24 * time.Hour,
		FeedbackWindow: 48 * time.Hour,
		Interval:       time.Minute,
	}
}

func TestSweeper_ExpiresStaleMatchFound(t *testing.T) {
	store := newFakeSweepStore()
	store.active = []graph.Match{
		{FromID: "a", ToID: "b", Status: graph.StatusMatchFound, CreatedAt: testNow.Add(-80 * time.Hour)},
		{FromID: "c", ToID: "d", Status: graph.StatusMatchFound, CreatedAt: testNow.Add(-10 * time.Hour)},
	}
	notifier := newFakeNotifier()
	s := NewSweeper(store, notifier, testPolicy())

	s.expireStale(context.Background(), testNow)

	assert.Equal(t, graph.StatusExpiredNoProposal, store.updates[pairKey("a", "b")])
	_, touched := store.updates[pairKey("c", "d")]
	assert.False(t, touched, "fresh match must not expire")
	assert.Len(t, notifier.messages["a"], 1)
	assert.Len(t, notifier.messages["b"], 1)
}

func TestSweeper_ExpiresUnansweredProposal(t *testing.T) {
	store := newFakeSweepStore()
	store.active = []graph.Match{
		{FromID: "a", ToID: "b", Status: graph.StatusProposalSent, ProposalSentAt: testNow.Add(-50 * time.Hour)},
		{FromID: "c", ToID: "d", Status: graph.StatusProposalSent, ProposalSentAt: testNow.Add(-2 * time.Hour)},
	}
	s := NewSweeper(store, nil, testPolicy())

	s.expireStale(context.Background(), testNow)

	assert.Equal(t, graph.StatusExpiredNoResponse, store.updates[pairKey("a", "b")])
	_, touched := store.updates[pairKey("c", "d")]
	assert.False(t, touched)
}

func TestSweeper_ProposalSentAtFallsBackToUpdatedAt(t *testing.T) {
	store := newFakeSweepStore()
	store.active = []graph.Match{
		{FromID: "a", ToID: "b", Status: graph.StatusProposalSent, UpdatedAt: testNow.Add(-50 * time.Hour)},
	}
	s := NewSweeper(store, nil, testPolicy())

	s.expireStale(context.Background(), testNow)
	assert.Equal(t, graph.StatusExpiredNoResponse, store.updates[pairKey("a", "b")])
}

func TestSweeper_RemindersAreDeduplicated(t *testing.T) {
	meeting := testNow.Add(6 * time.Hour).Format(time.RFC3339)
	store := newFakeSweepStore()
	store.upcoming = []graph.Match{
		{FromID: "a", ToID: "b", Status: graph.StatusScheduled, Venue: "Corner Cafe", ProposedTime: meeting},
	}
	notifier := newFakeNotifier()
	s := NewSweeper(store, notifier, testPolicy())

	s.sendReminders(context.Background())
	require.Len(t, notifier.messages["a"], 1)
	require.Len(t, notifier.messages["b"], 1)
	assert.Contains(t, notifier.messages["a"][0], "Corner Cafe")

	// A second sweep sees the recorded tag and stays quiet
	store.upcoming[0].RemindersSent = store.tags[pairKey("a", "b")]
	s.sendReminders(context.Background())
	assert.Len(t, notifier.messages["a"], 1)
}

func TestSweeper_RescheduledMeetingEarnsFreshReminder(t *testing.T) {
	store := newFakeSweepStore()
	store.upcoming = []graph.Match{
		{
			FromID: "a", ToID: "b", Status: graph.StatusScheduled,
			ProposedTime:  testNow.Add(6 * time.Hour).Format(time.RFC3339),
			RemindersSent: []string{"reminder:" + testNow.Add(30*time.Hour).Format(time.RFC3339)},
		},
	}
	notifier := newFakeNotifier()
	s := NewSweeper(store, notifier, testPolicy())

	s.sendReminders(context.Background())
	assert.Len(t, notifier.messages["a"], 1)
}

func TestSweeper_FeedbackPromptSkipsUsersWhoAnswered(t *testing.T) {
	store := newFakeSweepStore()
	store.past = []graph.Match{
		{
			FromID: "a", ToID: "b", Status: graph.StatusScheduled,
			ProposedTime: testNow.Add(-6 * time.Hour).Format(time.RFC3339),
			Feedback:     []graph.Feedback{{UserID: "a", Text: "went well"}},
		},
	}
	notifier := newFakeNotifier()
	s := NewSweeper(store, notifier, testPolicy())

	s.promptFeedback(context.Background())

	assert.Empty(t, notifier.messages["a"], "user with feedback must not be prompted")
	assert.Len(t, notifier.messages["b"], 1)

	// Prompt once, not every sweep
	store.past[0].RemindersSent = store.tags[pairKey("a", "b")]
	s.promptFeedback(context.Background())
	assert.Len(t, notifier.messages["b"], 1)
}

func TestSweeper_UnavailableStoreSkipsSweep(t *testing.T) {
	store := newFakeSweepStore()
	store.listOK = false
	store.active = []graph.Match{
		{FromID: "a", ToID: "b", Status: graph.StatusMatchFound, CreatedAt: testNow.Add(-80 * time.Hour)},
	}
	s := NewSweeper(store, newFakeNotifier(), testPolicy())

	s.RunOnce(context.Background())
	assert.Empty(t, store.updates)
}

func TestSweeper_StartStop(t *testing.T) {
	policy := testPolicy()
	policy.Interval = 10 * time.Millisecond
	s := NewSweeper(newFakeSweepStore(), nil, policy)

	s.Start()
	s.Start() // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop() // second stop is a no-op
}
