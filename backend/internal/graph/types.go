package graph

import "time"

// ============================================================================
// Person
// ============================================================================

// PersonStatus is the lifecycle status of a participant
type PersonStatus string

const (
	PersonStatusOnboarding PersonStatus = "onboarding"
	PersonStatusActive     PersonStatus = "active"
	PersonStatusMatched    PersonStatus = "matched"
	PersonStatusInactive   PersonStatus = "inactive"
)

// Person represents a participant in the graph
type Person struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Status    PersonStatus `json:"status"`
	Metadata  string       `json:"metadata,omitempty"` // free-form JSON blob
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PersonAttrs are the mutable fields applied on upsert
type PersonAttrs struct {
	Name     string
	Status   PersonStatus
	Metadata string
}

// ============================================================================
// Dimensions
// ============================================================================

// DimensionKind distinguishes who a person is from who they are looking for
type DimensionKind string

const (
	KindPersona DimensionKind = "persona"
	KindDesired DimensionKind = "desired"
)

// DimensionName identifies one extracted attribute dimension
type DimensionName string

const (
	DimensionProfile     DimensionName = "profile"
	DimensionDemographic DimensionName = "demographic"
	DimensionRoutine     DimensionName = "routine"
	DimensionGoal        DimensionName = "goal"
	DimensionInterest    DimensionName = "interest"
)

// IsProfile reports whether the dimension is the singleton profile summary
func (n DimensionName) IsProfile() bool {
	return n == DimensionProfile
}

// dimensionLabels maps each (kind, name) pair to its fixed node label.
// The table is closed: dimensions arriving with any other name are rejected
// instead of minting schema identifiers at runtime.
var dimensionLabels = map[DimensionKind]map[DimensionName]string{
	KindPersona: {
		DimensionProfile:     "PersonaProfile",
		DimensionDemographic: "PersonaDemographic",
		DimensionRoutine:     "PersonaRoutine",
		DimensionGoal:        "PersonaGoal",
		DimensionInterest:    "PersonaInterest",
	},
	KindDesired: {
		DimensionProfile:     "DesiredProfile",
		DimensionDemographic: "DesiredDemographic",
		DimensionRoutine:     "DesiredRoutine",
		DimensionGoal:        "DesiredGoal",
		DimensionInterest:    "DesiredInterest",
	},
}

// DimensionLabel resolves the node label for a (kind, name) pair
func DimensionLabel(kind DimensionKind, name DimensionName) (string, bool) {
	names, ok := dimensionLabels[kind]
	if !ok {
		return "", false
	}
	label, ok := names[name]
	return label, ok
}

// OwnershipEdge returns the relationship type linking a Person to a
// dimension node of the given kind
func OwnershipEdge(kind DimensionKind) string {
	if kind == KindDesired {
		return "SEEKS"
	}
	return "HAS_PERSONA"
}

// DimensionNames lists every name in the closed table
func DimensionNames() []DimensionName {
	return []DimensionName{
		DimensionProfile,
		DimensionDemographic,
		DimensionRoutine,
		DimensionGoal,
		DimensionInterest,
	}
}

// Dimension is one extracted attribute value with its embedding
type Dimension struct {
	Kind      DimensionKind `json:"kind"`
	Name      DimensionName `json:"name"`
	Value     string        `json:"value"`
	Embedding []float64     `json:"embedding,omitempty"`
	Evidence  []string      `json:"evidence,omitempty"`
}

// ============================================================================
// Match
// ============================================================================

// MatchStatus is the coordination-protocol state of a match
type MatchStatus string

const (
	StatusMatchFound        MatchStatus = "match_found"
	StatusProposalSent      MatchStatus = "proposal_sent"
	StatusAccepted          MatchStatus = "accepted"
	StatusScheduled         MatchStatus = "scheduled"
	StatusCompleted         MatchStatus = "completed"
	StatusDeclined          MatchStatus = "declined"
	StatusCancelled         MatchStatus = "cancelled"
	StatusExpiredNoProposal MatchStatus = "expired_no_proposal"
	StatusExpiredNoResponse MatchStatus = "expired_no_response"
)

// ActiveMatchStatuses are the non-terminal protocol states
var ActiveMatchStatuses = []MatchStatus{
	StatusMatchFound,
	StatusProposalSent,
	StatusAccepted,
	StatusScheduled,
}

// IsTerminal reports whether no further protocol transition occurs
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled,
		StatusExpiredNoProposal, StatusExpiredNoResponse:
		return true
	}
	return false
}

// Clue is a self-identification hint a matched user volunteers
type Clue struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Feedback is one user's post-meeting feedback entry
type Feedback struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Match represents the MATCHED_WITH relationship between two People.
// FromID is the initiator.
type Match struct {
	FromID         string      `json:"from_id"`
	ToID           string      `json:"to_id"`
	Status         MatchStatus `json:"status"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Score          float64     `json:"score,omitempty"`
	Venue          string      `json:"venue,omitempty"`
	ProposedTime   string      `json:"proposed_time,omitempty"` // ISO 8601
	FromClues      []Clue      `json:"from_clues,omitempty"`
	ToClues        []Clue      `json:"to_clues,omitempty"`
	Feedback       []Feedback  `json:"feedback,omitempty"`
	RemindersSent  []string    `json:"reminders_sent,omitempty"`
	Linked         bool        `json:"linked"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ProposalSentAt time.Time   `json:"proposal_sent_at,omitempty"`
}

// Touches reports whether the user is one of the match endpoints
func (m *Match) Touches(userID string) bool {
	return m.FromID == userID || m.ToID == userID
}

// Other returns the counterpart of the given user in this match
func (m *Match) Other(userID string) string {
	if m.FromID == userID {
		return m.ToID
	}
	return m.FromID
}

// CluesFor returns the clue list belonging to the given user
func (m *Match) CluesFor(userID string) []Clue {
	if m.FromID == userID {
		return m.FromClues
	}
	return m.ToClues
}

// FeedbackFrom returns the user's feedback entry, if any
func (m *Match) FeedbackFrom(userID string) (Feedback, bool) {
	for _, f := range m.Feedback {
		if f.UserID == userID {
			return f, true
		}
	}
	return Feedback{}, false
}

// MatchUpdate is a partial update: only non-nil fields are applied.
// updated_at is always touched.
type MatchUpdate struct {
	Status         *MatchStatus
	Reasoning      *string
	Score          *float64
	Venue          *string
	ProposedTime   *string
	FromClues      *[]Clue
	ToClues        *[]Clue
	Feedback       *[]Feedback
	ProposalSentAt *time.Time
}

// ============================================================================
// Similarity search
// ============================================================================

// SimilarityHit is one ranked candidate from a vector search
type SimilarityHit struct {
	PersonID string  `json:"person_id"`
	Value    string  `json:"value"`
	Score    float64 `json:"score"`
}

// SearchScope restricts which People a similarity search may return
type SearchScope struct {
	AgentID    string   // only People managed by this agent, when set
	ExcludeIDs []string // never returned
	AllowIDs   []string // when non-empty, only these may be returned
}
