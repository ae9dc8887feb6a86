package coordinate

import (
	"context"
	"time"

	"kindred/backend/internal/graph"
	"kindred/backend/pkg/errors"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

// Store is the persistence surface the coordinator needs. All methods
// follow the degraded-store convention: the trailing bool is false when
// the store could not serve the call.
type Store interface {
	LatestActiveMatchForUser(ctx context.Context, userID string) (*graph.Match, bool)
	UpdateMatch(ctx context.Context, fromID, toID string, upd graph.MatchUpdate) bool
	ClaimLink(ctx context.Context, fromID, toID string) (bool, bool)
}

// Linker performs the one-time external side effect when two matched
// people formally connect. Implementations must tolerate being called
// at most once per match; the coordinator guarantees the at-most-once.
type Linker interface {
	EstablishConnection(ctx context.Context, userA, userB string) error
}

// Result is the outcome of advancing a match
type Result struct {
	NewStatus      graph.MatchStatus `json:"new_status"`
	MessageToUser  string            `json:"message_to_user,omitempty"`
	MessageToOther string            `json:"message_to_other,omitempty"`

	// Skipped is true when the decision was made but could not be
	// persisted; the caller should tell the user to retry
	Skipped bool `json:"skipped,omitempty"`
}

// Coordinator drives the match protocol: it resolves which match a user's
// event addresses, applies the transition, and persists the outcome
type Coordinator struct {
	store  Store
	linker Linker
	logger *zap.Logger
	now    func() time.Time
}

// NewCoordinator creates a Coordinator. linker may be nil when no
// connection side effect is configured.
func NewCoordinator(store Store, linker Linker) *Coordinator {
	return &Coordinator{
		store:  store,
		linker: linker,
		logger: logger.Get(),
		now:    time.Now,
	}
}

// AdvanceMatch applies one event from a user to their most recent active
// match. Events against a terminal or missing match return an error with
// nothing written; persistence failures return a Skipped result so the
// user can be asked to retry.
func (c *Coordinator) AdvanceMatch(ctx context.Context, userID string, ev Event) (*Result, error) {
	m, ok := c.store.LatestActiveMatchForUser(ctx, userID)
	if !ok || m == nil {
		return nil, errors.NewNoActiveMatch(userID)
	}

	decision, err := Transition(m, userID, ev, c.now())
	if err != nil {
		return nil, err
	}

	result := &Result{
		NewStatus:      decision.NewStatus,
		MessageToUser:  decision.ReplyToActor,
		MessageToOther: decision.ReplyToOther,
	}

	// A nil Status pointer means the decision changed nothing persistent
	if decision.Update.Status != nil {
		if !c.store.UpdateMatch(ctx, m.FromID, m.ToID, decision.Update) {
			c.logger.Warn("Match update not persisted",
				zap.String("user_id", userID),
				zap.String("event", string(ev.Type)))
			return &Result{Skipped: true}, nil
		}
	}

	if decision.EstablishLink {
		c.establishLink(ctx, m)
	}

	c.logger.Info("Match advanced",
		zap.String("user_id", userID),
		zap.String("event", string(ev.Type)),
		zap.String("status", string(decision.NewStatus)))
	return result, nil
}

// establishLink fires the connection side effect exactly once per match.
// The claim is persisted first, so a crash between claim and side effect
// drops the effect rather than doubling it.
func (c *Coordinator) establishLink(ctx context.Context, m *graph.Match) {
	if c.linker == nil {
		return
	}

	claimed, ok := c.store.ClaimLink(ctx, m.FromID, m.ToID)
	if !ok {
		c.logger.Warn("Link claim not persisted; side effect deferred",
			zap.String("from", m.FromID),
			zap.String("to", m.ToID))
		return
	}
	if !claimed {
		return
	}

	if err := c.linker.EstablishConnection(ctx, m.FromID, m.ToID); err != nil {
		c.logger.Error("Connection side effect failed",
			zap.String("from", m.FromID),
			zap.String("to", m.ToID),
			zap.Error(err))
	}
}
