package graph

import "testing"

func TestMatchEndpointHelpers(t *testing.T) {
	m := &Match{
		FromID:    "alice",
		ToID:      "bob",
		FromClues: []Clue{{Text: "red scarf"}},
		ToClues:   []Clue{{Text: "window table"}},
		Feedback:  []Feedback{{UserID: "bob", Text: "great"}},
	}

	if !m.Touches("alice") || !m.Touches("bob") {
		t.Error("both endpoints must touch the match")
	}
	if m.Touches("mallory") {
		t.Error("stranger must not touch the match")
	}
	if m.Other("alice") != "bob" || m.Other("bob") != "alice" {
		t.Error("Other must return the counterpart")
	}
	if m.CluesFor("alice")[0].Text != "red scarf" {
		t.Error("wrong clues for initiator")
	}
	if m.CluesFor("bob")[0].Text != "window table" {
		t.Error("wrong clues for recipient")
	}
	if _, ok := m.FeedbackFrom("bob"); !ok {
		t.Error("bob's feedback not found")
	}
	if _, ok := m.FeedbackFrom("alice"); ok {
		t.Error("alice has no feedback yet")
	}
}

func TestMatchStatusTerminality(t *testing.T) {
	for _, s := range ActiveMatchStatuses {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	terminals := []MatchStatus{
		StatusCompleted, StatusDeclined, StatusCancelled,
		StatusExpiredNoProposal, StatusExpiredNoResponse,
	}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
