package coordinate

import (
	"fmt"
	"time"

	"kindred/backend/internal/graph"
	"kindred/backend/pkg/errors"
)

// Decision is the outcome of applying one Event to a Match. Update holds
// only the fields that changed; the caller persists it as a single partial
// write so replays converge on the same state.
type Decision struct {
	NewStatus graph.MatchStatus
	Update    graph.MatchUpdate

	// ReplyToActor and ReplyToOther are conversation prompts for the two
	// participants; empty means no message
	ReplyToActor string
	ReplyToOther string

	// EstablishLink requests the one-time connection side effect. The
	// caller must gate it on the store's linked flag before acting.
	EstablishLink bool
}

// Transition applies one coordination event to a match, pure in its
// inputs. It never mutates m. An event that is not legal for the current
// status and actor returns ErrInvalidTransition; the match is left exactly
// as it was.
func Transition(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	if m == nil || !m.Touches(actorID) {
		return nil, errors.NewNoActiveMatch(actorID)
	}
	if m.Status.IsTerminal() {
		return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
	}

	// Cancellation is available to either party from every live state
	if ev.Type == EventCancel {
		return terminalDecision(m, graph.StatusCancelled,
			"Understood, this introduction is cancelled.",
			"Unfortunately the other person had to cancel this introduction."), nil
	}

	switch m.Status {
	case graph.StatusMatchFound:
		return transitionFromMatchFound(m, actorID, ev, now)
	case graph.StatusProposalSent:
		return transitionFromProposalSent(m, actorID, ev, now)
	case graph.StatusAccepted, graph.StatusScheduled:
		return transitionFromMeeting(m, actorID, ev, now)
	}
	return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
}

func transitionFromMatchFound(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	// Only the initiator drives the match forward from here
	if ev.Type != EventPropose || actorID != m.FromID {
		return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
	}

	status := graph.StatusProposalSent
	sentAt := now
	d := &Decision{
		NewStatus: status,
		Update: graph.MatchUpdate{
			Status:         &status,
			ProposalSentAt: &sentAt,
		},
		ReplyToActor: "Your proposal has been sent. I'll let you know as soon as they respond.",
		ReplyToOther: fmt.Sprintf("Someone I think you'd get along with suggested meeting%s. Interested?", proposalPhrase(ev)),
	}
	applyProposalDetails(&d.Update, ev)
	return d, nil
}

func transitionFromProposalSent(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	isInitiator := actorID == m.FromID

	switch ev.Type {
	case EventAccept:
		if isInitiator {
			return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
		}
		status := graph.StatusAccepted
		return &Decision{
			NewStatus:     status,
			Update:        graph.MatchUpdate{Status: &status},
			ReplyToActor:  "Wonderful, it's on. I'll check in before the meeting.",
			ReplyToOther:  "Good news: they accepted your proposal.",
			EstablishLink: true,
		}, nil

	case EventDecline:
		if isInitiator {
			return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
		}
		return terminalDecision(m, graph.StatusDeclined,
			"No problem, I'll keep looking for a better fit.",
			"They passed on this one. I'll keep searching for you."), nil

	case EventCounterPropose:
		if isInitiator {
			return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
		}
		status := m.Status
		sentAt := now
		d := &Decision{
			NewStatus: status,
			Update: graph.MatchUpdate{
				Status:         &status,
				ProposalSentAt: &sentAt,
			},
			ReplyToActor: "I've passed your counter-proposal along.",
			ReplyToOther: fmt.Sprintf("They suggested a change%s. Does that work for you?", proposalPhrase(ev)),
		}
		applyProposalDetails(&d.Update, ev)
		return d, nil

	case EventEditProposal:
		if !isInitiator {
			return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
		}
		status := m.Status
		sentAt := now
		d := &Decision{
			NewStatus: status,
			Update: graph.MatchUpdate{
				Status:         &status,
				ProposalSentAt: &sentAt,
			},
			ReplyToActor: "Got it, I've updated the proposal.",
			ReplyToOther: fmt.Sprintf("Small update to the proposal%s.", proposalPhrase(ev)),
		}
		applyProposalDetails(&d.Update, ev)
		return d, nil

	case EventWithdrawProposal:
		if !isInitiator {
			return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
		}
		status := graph.StatusMatchFound
		empty := ""
		return &Decision{
			NewStatus: status,
			Update: graph.MatchUpdate{
				Status:       &status,
				Venue:        &empty,
				ProposedTime: &empty,
			},
			ReplyToActor: "Proposal withdrawn. Let me know when you'd like to suggest something else.",
			ReplyToOther: "The meeting suggestion was withdrawn for now, I'll follow up soon.",
		}, nil
	}
	return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
}

func transitionFromMeeting(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	switch ev.Type {
	case EventClue:
		return appendClue(m, actorID, ev, now)
	case EventFeedback:
		return appendFeedback(m, actorID, ev, now)
	case EventAcknowledge:
		status := m.Status
		return &Decision{
			NewStatus:    status,
			ReplyToActor: "Noted. Enjoy the meeting, and tell me how it went afterwards.",
		}, nil
	case EventEditProposal, EventCounterPropose:
		// Logistics can still shift after acceptance
		status := m.Status
		d := &Decision{
			NewStatus:    status,
			Update:       graph.MatchUpdate{Status: &status},
			ReplyToActor: "Updated. I've let them know.",
			ReplyToOther: fmt.Sprintf("Heads up, the plan changed%s.", proposalPhrase(ev)),
		}
		applyProposalDetails(&d.Update, ev)
		return d, nil
	}
	return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
}

// appendClue stores a self-identification hint. The match moves to
// scheduled once both sides have volunteered at least one clue, in
// whichever order they arrive.
func appendClue(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	if ev.Text == "" {
		return nil, errors.NewInvalidTransition(string(m.Status), string(ev.Type))
	}

	mine := m.CluesFor(actorID)
	for _, c := range mine {
		if c.Text == ev.Text {
			status := m.Status
			return &Decision{
				NewStatus:    status,
				ReplyToActor: "You already gave me that one. Anything else they should look for?",
			}, nil
		}
	}

	updated := append(append([]graph.Clue{}, mine...), graph.Clue{
		Text:      ev.Text,
		Timestamp: now.UTC().Format(time.RFC3339),
	})

	theirs := m.CluesFor(m.Other(actorID))
	status := m.Status
	if m.Status == graph.StatusAccepted && len(theirs) > 0 {
		status = graph.StatusScheduled
	}

	d := &Decision{
		NewStatus:    status,
		Update:       graph.MatchUpdate{Status: &status},
		ReplyToActor: "Got it, I'll pass that along so they can spot you.",
		ReplyToOther: fmt.Sprintf("To recognize them: %s", ev.Text),
	}
	if actorID == m.FromID {
		d.Update.FromClues = &updated
	} else {
		d.Update.ToClues = &updated
	}
	return d, nil
}

// appendFeedback records one post-meeting feedback entry per user. The
// match completes once both entries exist.
func appendFeedback(m *graph.Match, actorID string, ev Event, now time.Time) (*Decision, error) {
	status := m.Status

	// Feedback only counts after the agreed meeting time has passed
	if t, err := time.Parse(time.RFC3339, m.ProposedTime); err == nil && now.Before(t) {
		return &Decision{
			NewStatus:    status,
			ReplyToActor: "The meeting hasn't happened yet. Tell me how it went afterwards!",
		}, nil
	}

	if _, already := m.FeedbackFrom(actorID); already {
		return &Decision{
			NewStatus:    status,
			ReplyToActor: "Thanks, I already have your feedback for this one.",
		}, nil
	}

	if ev.Vague || ev.Text == "" {
		return &Decision{
			NewStatus:    status,
			ReplyToActor: "Could you tell me a bit more? What worked, what didn't?",
		}, nil
	}

	entries := append(append([]graph.Feedback{}, m.Feedback...), graph.Feedback{
		UserID:    actorID,
		Text:      ev.Text,
		Timestamp: now.UTC().Format(time.RFC3339),
	})

	otherDone := false
	if _, ok := m.FeedbackFrom(m.Other(actorID)); ok {
		otherDone = true
	}
	if otherDone {
		status = graph.StatusCompleted
	}

	d := &Decision{
		NewStatus: status,
		Update: graph.MatchUpdate{
			Status:   &status,
			Feedback: &entries,
		},
		ReplyToActor: "Thank you, that helps me find better matches for you.",
	}
	if otherDone {
		d.ReplyToActor = "Thank you! That wraps this one up. I'll reach out when I find your next match."
	}
	return d, nil
}

func terminalDecision(m *graph.Match, status graph.MatchStatus, toActor, toOther string) *Decision {
	return &Decision{
		NewStatus:    status,
		Update:       graph.MatchUpdate{Status: &status},
		ReplyToActor: toActor,
		ReplyToOther: toOther,
	}
}

// applyProposalDetails copies venue and time from the event into the
// update, skipping fields the event leaves blank
func applyProposalDetails(upd *graph.MatchUpdate, ev Event) {
	if ev.Venue != "" {
		venue := ev.Venue
		upd.Venue = &venue
	}
	if ev.Time != "" {
		t := ev.Time
		upd.ProposedTime = &t
	}
}

func proposalPhrase(ev Event) string {
	switch {
	case ev.Venue != "" && ev.Time != "":
		return fmt.Sprintf(" at %s on %s", ev.Venue, ev.Time)
	case ev.Venue != "":
		return fmt.Sprintf(" at %s", ev.Venue)
	case ev.Time != "":
		return fmt.Sprintf(" on %s", ev.Time)
	}
	return ""
}
