package coordinate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kindred/backend/internal/graph"
	"kindred/backend/pkg/errors"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestMatch(status graph.MatchStatus) *graph.Match {
	return &graph.Match{
		FromID:    "alice",
		ToID:      "bob",
		Status:    status,
		CreatedAt: testNow.Add(-time.Hour),
	}
}

// applyDecision folds a decision's partial update back into a copy of the
// match, the way the store would persist it
func applyDecision(m *graph.Match, d *Decision) *graph.Match {
	next := *m
	upd := d.Update
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if upd.Venue != nil {
		next.Venue = *upd.Venue
	}
	if upd.ProposedTime != nil {
		next.ProposedTime = *upd.ProposedTime
	}
	if upd.FromClues != nil {
		next.FromClues = *upd.FromClues
	}
	if upd.ToClues != nil {
		next.ToClues = *upd.ToClues
	}
	if upd.Feedback != nil {
		next.Feedback = *upd.Feedback
	}
	if upd.ProposalSentAt != nil {
		next.ProposalSentAt = *upd.ProposalSentAt
	}
	return &next
}

func TestTransition_ProposeByInitiator(t *testing.T) {
	m := newTestMatch(graph.StatusMatchFound)

	d, err := Transition(m, "alice", Event{
		Type:  EventPropose,
		Venue: "Blue Bottle on 5th",
		Time:  "2026-03-14T18:00:00Z",
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusProposalSent, d.NewStatus)
	require.NotNil(t, d.Update.ProposalSentAt)
	assert.Equal(t, testNow, *d.Update.ProposalSentAt)
	require.NotNil(t, d.Update.Venue)
	assert.Equal(t, "Blue Bottle on 5th", *d.Update.Venue)
	assert.NotEmpty(t, d.ReplyToOther)
	assert.False(t, d.EstablishLink)
}

func TestTransition_ProposeByRecipientRejected(t *testing.T) {
	m := newTestMatch(graph.StatusMatchFound)

	_, err := Transition(m, "bob", Event{Type: EventPropose}, testNow)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeMatch))
}

func TestTransition_AcceptByRecipient(t *testing.T) {
	m := newTestMatch(graph.StatusProposalSent)

	d, err := Transition(m, "bob", Event{Type: EventAccept}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusAccepted, d.NewStatus)
	assert.True(t, d.EstablishLink)
}

func TestTransition_AcceptByInitiatorRejected(t *testing.T) {
	m := newTestMatch(graph.StatusProposalSent)

	_, err := Transition(m, "alice", Event{Type: EventAccept}, testNow)
	require.Error(t, err)
}

func TestTransition_DeclineByRecipient(t *testing.T) {
	m := newTestMatch(graph.StatusProposalSent)

	d, err := Transition(m, "bob", Event{Type: EventDecline}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusDeclined, d.NewStatus)
	assert.True(t, d.NewStatus.IsTerminal())
	assert.False(t, d.EstablishLink)
}

func TestTransition_CounterProposeKeepsStatus(t *testing.T) {
	m := newTestMatch(graph.StatusProposalSent)
	m.ProposedTime = "2026-03-14T18:00:00Z"

	d, err := Transition(m, "bob", Event{
		Type: EventCounterPropose,
		Time: "2026-03-15T11:00:00Z",
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusProposalSent, d.NewStatus)
	require.NotNil(t, d.Update.ProposedTime)
	assert.Equal(t, "2026-03-15T11:00:00Z", *d.Update.ProposedTime)
	require.NotNil(t, d.Update.ProposalSentAt)
}

func TestTransition_WithdrawClearsProposal(t *testing.T) {
	m := newTestMatch(graph.StatusProposalSent)
	m.Venue = "Blue Bottle on 5th"
	m.ProposedTime = "2026-03-14T18:00:00Z"

	d, err := Transition(m, "alice", Event{Type: EventWithdrawProposal}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusMatchFound, d.NewStatus)
	next := applyDecision(m, d)
	assert.Empty(t, next.Venue)
	assert.Empty(t, next.ProposedTime)
}

func TestTransition_CancelFromEveryLiveState(t *testing.T) {
	for _, status := range graph.ActiveMatchStatuses {
		for _, actor := range []string{"alice", "bob"} {
			m := newTestMatch(status)
			d, err := Transition(m, actor, Event{Type: EventCancel}, testNow)
			require.NoError(t, err, "cancel from %s by %s", status, actor)
			assert.Equal(t, graph.StatusCancelled, d.NewStatus)
		}
	}
}

func TestTransition_TerminalStatesRejectEverything(t *testing.T) {
	terminals := []graph.MatchStatus{
		graph.StatusCompleted,
		graph.StatusDeclined,
		graph.StatusCancelled,
		graph.StatusExpiredNoProposal,
		graph.StatusExpiredNoResponse,
	}
	events := []EventType{
		EventPropose, EventAccept, EventDecline, EventCancel,
		EventClue, EventFeedback,
	}
	for _, status := range terminals {
		for _, evType := range events {
			m := newTestMatch(status)
			_, err := Transition(m, "alice", Event{Type: evType, Text: "x"}, testNow)
			assert.Error(t, err, "event %s in %s must fail", evType, status)
		}
	}
}

func TestTransition_StrangerRejected(t *testing.T) {
	m := newTestMatch(graph.StatusAccepted)
	_, err := Transition(m, "mallory", Event{Type: EventClue, Text: "red hat"}, testNow)
	require.Error(t, err)
}

func TestTransition_BothCluesScheduleTheMatch(t *testing.T) {
	// Clue order must not matter
	orders := [][2]string{{"alice", "bob"}, {"bob", "alice"}}
	for _, order := range orders {
		m := newTestMatch(graph.StatusAccepted)

		d1, err := Transition(m, order[0], Event{Type: EventClue, Text: "red scarf"}, testNow)
		require.NoError(t, err)
		assert.Equal(t, graph.StatusAccepted, d1.NewStatus, "first clue must not schedule")

		m2 := applyDecision(m, d1)
		d2, err := Transition(m2, order[1], Event{Type: EventClue, Text: "window table"}, testNow)
		require.NoError(t, err)
		assert.Equal(t, graph.StatusScheduled, d2.NewStatus, "second clue from the other side schedules")
	}
}

func TestTransition_DuplicateClueIsNoOp(t *testing.T) {
	m := newTestMatch(graph.StatusAccepted)
	m.FromClues = []graph.Clue{{Text: "red scarf", Timestamp: "2026-03-09T10:00:00Z"}}

	d, err := Transition(m, "alice", Event{Type: EventClue, Text: "red scarf"}, testNow)
	require.NoError(t, err)
	assert.Nil(t, d.Update.Status, "duplicate clue must not write")
	assert.NotEmpty(t, d.ReplyToActor)
}

func TestTransition_ClueInScheduledStays(t *testing.T) {
	m := newTestMatch(graph.StatusScheduled)
	m.FromClues = []graph.Clue{{Text: "red scarf"}}
	m.ToClues = []graph.Clue{{Text: "window table"}}

	d, err := Transition(m, "bob", Event{Type: EventClue, Text: "green jacket"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusScheduled, d.NewStatus)
	require.NotNil(t, d.Update.ToClues)
	assert.Len(t, *d.Update.ToClues, 2)
}

func TestTransition_FeedbackBeforeMeetingRejected(t *testing.T) {
	m := newTestMatch(graph.StatusScheduled)
	m.ProposedTime = testNow.Add(4 * time.Hour).Format(time.RFC3339)

	d, err := Transition(m, "alice", Event{Type: EventFeedback, Text: "it was great"}, testNow)
	require.NoError(t, err)
	assert.Nil(t, d.Update.Status, "early feedback must not write")
	assert.NotEmpty(t, d.ReplyToActor)
}

func TestTransition_VagueFeedbackPrompts(t *testing.T) {
	m := newTestMatch(graph.StatusScheduled)
	m.ProposedTime = testNow.Add(-4 * time.Hour).Format(time.RFC3339)

	d, err := Transition(m, "alice", Event{Type: EventFeedback, Text: "fine", Vague: true}, testNow)
	require.NoError(t, err)
	assert.Nil(t, d.Update.Status)
	assert.Contains(t, d.ReplyToActor, "more")
}

func TestTransition_FeedbackCompletesWhenBothPresent(t *testing.T) {
	m := newTestMatch(graph.StatusScheduled)
	m.ProposedTime = testNow.Add(-4 * time.Hour).Format(time.RFC3339)

	d1, err := Transition(m, "alice", Event{Type: EventFeedback, Text: "great conversation, would meet again"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusScheduled, d1.NewStatus, "first feedback keeps the match open")

	m2 := applyDecision(m, d1)
	d2, err := Transition(m2, "bob", Event{Type: EventFeedback, Text: "we had a lot in common"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, d2.NewStatus)
	require.NotNil(t, d2.Update.Feedback)
	assert.Len(t, *d2.Update.Feedback, 2)
}

func TestTransition_SecondFeedbackFromSameUserIsNoOp(t *testing.T) {
	m := newTestMatch(graph.StatusScheduled)
	m.ProposedTime = testNow.Add(-4 * time.Hour).Format(time.RFC3339)
	m.Feedback = []graph.Feedback{{UserID: "alice", Text: "great", Timestamp: "2026-03-10T09:00:00Z"}}

	d, err := Transition(m, "alice", Event{Type: EventFeedback, Text: "still great"}, testNow)
	require.NoError(t, err)
	assert.Nil(t, d.Update.Status)
}

func TestTransition_NeverMutatesInput(t *testing.T) {
	m := newTestMatch(graph.StatusAccepted)
	m.FromClues = []graph.Clue{{Text: "red scarf"}}

	_, err := Transition(m, "bob", Event{Type: EventClue, Text: "window table"}, testNow)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusAccepted, m.Status)
	assert.Len(t, m.ToClues, 0)
	assert.Len(t, m.FromClues, 1)
}
