package coordinate

// EventType identifies one coordination action taken by a matched user
type EventType string

const (
	EventPropose          EventType = "propose"
	EventEditProposal     EventType = "edit_proposal"
	EventWithdrawProposal EventType = "withdraw_proposal"
	EventAccept           EventType = "accept"
	EventDecline          EventType = "decline"
	EventCounterPropose   EventType = "counter_propose"
	EventCancel           EventType = "cancel"
	EventClue             EventType = "clue"
	EventFeedback         EventType = "feedback"
	EventAcknowledge      EventType = "acknowledge"
)

// Event is one user action against their active match. The conversation
// layer extracts these from free-form messages; by the time an Event
// arrives here its fields are already structured.
type Event struct {
	Type EventType `json:"type"`

	// Venue and Time carry proposal details for propose, edit_proposal
	// and counter_propose. Time is ISO 8601.
	Venue string `json:"venue,omitempty"`
	Time  string `json:"time,omitempty"`

	// Text carries the clue or feedback body
	Text string `json:"text,omitempty"`

	// Vague marks feedback too thin to count as a real entry; the upstream
	// classifier sets it
	Vague bool `json:"vague,omitempty"`
}
