package coordinate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kindred/backend/internal/graph"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

// SweepStore is the persistence surface the sweeper needs
type SweepStore interface {
	ListActiveMatches(ctx context.Context, statuses []graph.MatchStatus) ([]graph.Match, bool)
	ListUpcomingScheduled(ctx context.Context, hoursWindow int) ([]graph.Match, bool)
	ListPastScheduled(ctx context.Context, hoursWindow int) ([]graph.Match, bool)
	UpdateMatch(ctx context.Context, fromID, toID string, upd graph.MatchUpdate) bool
	MarkReminded(ctx context.Context, fromID, toID, tag string) bool
}

// Notifier delivers a proactive message to one user
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Policy holds the time windows that drive expiry, reminders, and
// feedback prompts
type Policy struct {
	// ProposalWindow expires matches the initiator never proposed on
	ProposalWindow time.Duration

	// ResponseWindow expires proposals the recipient never answered
	ResponseWindow time.Duration

	// ReminderWindow is how far ahead of the meeting reminders go out
	ReminderWindow time.Duration

	// FeedbackWindow is how long after the meeting feedback is prompted
	FeedbackWindow time.Duration

	// Interval is the cadence of background sweeps
	Interval time.Duration
}

// Sweeper periodically expires stale matches and sends time-based
// prompts. Every action it takes is tagged on the match first, so an
// overlapping or repeated sweep is a no-op.
type Sweeper struct {
	store    SweepStore
	notifier Notifier
	policy   Policy
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a Sweeper. notifier may be nil, in which case
// expirations still happen but no messages go out.
func NewSweeper(store SweepStore, notifier Notifier, policy Policy) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		policy:   policy,
		logger:   logger.Get(),
	}
}

// Start launches the supervised background sweep loop
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.policy.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info("Sweeper started",
		zap.Duration("interval", s.policy.Interval))
}

// Stop shuts the sweep loop down and waits for an in-flight sweep
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Sweeper stopped")
}

// RunOnce performs a single sweep: expiry first, then reminders, then
// feedback prompts. Store unavailability skips the affected phase.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.expireStale(ctx, now)
	s.sendReminders(ctx)
	s.promptFeedback(ctx)
}

func (s *Sweeper) expireStale(ctx context.Context, now time.Time) {
	matches, ok := s.store.ListActiveMatches(ctx, []graph.MatchStatus{
		graph.StatusMatchFound,
		graph.StatusProposalSent,
	})
	if !ok {
		return
	}

	for _, m := range matches {
		switch m.Status {
		case graph.StatusMatchFound:
			if now.Sub(m.CreatedAt) > s.policy.ProposalWindow {
				s.expire(ctx, m, graph.StatusExpiredNoProposal,
					"This introduction lapsed without a meeting suggestion, so I've closed it. I'll keep looking.")
			}
		case graph.StatusProposalSent:
			sentAt := m.ProposalSentAt
			if sentAt.IsZero() {
				sentAt = m.UpdatedAt
			}
			if !sentAt.IsZero() && now.Sub(sentAt) > s.policy.ResponseWindow {
				s.expire(ctx, m, graph.StatusExpiredNoResponse,
					"No response came back on this proposal, so I've closed it. I'll keep looking for both of you.")
			}
		}
	}
}

func (s *Sweeper) expire(ctx context.Context, m graph.Match, status graph.MatchStatus, message string) {
	if !s.store.UpdateMatch(ctx, m.FromID, m.ToID, graph.MatchUpdate{Status: &status}) {
		return
	}
	s.logger.Info("Match expired",
		zap.String("from", m.FromID),
		zap.String("to", m.ToID),
		zap.String("status", string(status)))
	s.notify(ctx, m.FromID, message)
	s.notify(ctx, m.ToID, message)
}

// sendReminders nudges both participants ahead of a confirmed meeting.
// The reminder tag includes the proposed time, so a rescheduled meeting
// earns a fresh reminder while a repeat sweep does not.
func (s *Sweeper) sendReminders(ctx context.Context) {
	hours := int(s.policy.ReminderWindow / time.Hour)
	matches, ok := s.store.ListUpcomingScheduled(ctx, hours)
	if !ok {
		return
	}

	for _, m := range matches {
		tag := fmt.Sprintf("reminder:%s", m.ProposedTime)
		if contains(m.RemindersSent, tag) {
			continue
		}
		if !s.store.MarkReminded(ctx, m.FromID, m.ToID, tag) {
			continue
		}

		msg := fmt.Sprintf("Reminder: your meeting is coming up on %s", m.ProposedTime)
		if m.Venue != "" {
			msg = fmt.Sprintf("%s at %s", msg, m.Venue)
		}
		s.notify(ctx, m.FromID, msg)
		s.notify(ctx, m.ToID, msg)
	}
}

// promptFeedback asks each participant who has not yet weighed in how a
// recently-elapsed meeting went
func (s *Sweeper) promptFeedback(ctx context.Context) {
	hours := int(s.policy.FeedbackWindow / time.Hour)
	matches, ok := s.store.ListPastScheduled(ctx, hours)
	if !ok {
		return
	}

	for _, m := range matches {
		for _, userID := range []string{m.FromID, m.ToID} {
			if _, done := m.FeedbackFrom(userID); done {
				continue
			}
			tag := fmt.Sprintf("feedback_prompt:%s", userID)
			if contains(m.RemindersSent, tag) {
				continue
			}
			if !s.store.MarkReminded(ctx, m.FromID, m.ToID, tag) {
				continue
			}
			s.notify(ctx, userID, "How did the meeting go? I'd love to hear how it went so I can find you better matches.")
		}
	}
}

func (s *Sweeper) notify(ctx context.Context, userID, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		s.logger.Warn("Notification failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
