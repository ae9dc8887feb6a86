package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"kindred/backend/internal/constants"
	"go.uber.org/zap"
)

// ============================================================================
// Match Operations
//
// A Match is a directed MATCHED_WITH relationship from the initiator.
// At most one relationship exists per unordered pair; all mutations go
// through single merge statements keyed by the ordered pair, so concurrent
// writers serialize through the store.
// ============================================================================

// writeWithConflictRetry runs a write under the bounded transaction-conflict
// retry policy, absorbing all remaining failures into (nil, false)
func (r *Repository) writeWithConflictRetry(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, bool) {
	var records []*neo4j.Record
	baseDelay := time.Duration(constants.ConflictRetryBaseDelayMillis) * time.Millisecond

	err := r.conn.WithRetry(ctx, constants.MaxConflictRetries, baseDelay, func() error {
		var runErr error
		records, runErr = r.conn.run(ctx, writeMode, query, params)
		return runErr
	})
	if err != nil {
		if err != errNotConnected {
			r.logger.Error("Match write failed", zap.Error(err))
		}
		return nil, false
	}
	return records, true
}

// HasExistingMatch reports whether any Match exists between the pair, in
// either direction. The second return distinguishes "no match" from
// "store unavailable".
func (r *Repository) HasExistingMatch(ctx context.Context, idA, idB string) (bool, bool) {
	records, ok := r.conn.Read(ctx, `
		MATCH (a:Person {id: $idA})-[m:MATCHED_WITH]-(b:Person {id: $idB})
		RETURN count(m) AS n
	`, map[string]interface{}{"idA": idA, "idB": idB})
	if !ok || len(records) == 0 {
		return false, false
	}
	return getInt64FromRecord(records[0], "n") > 0, true
}

// CreateMatch creates the Match relationship with status match_found and
// marks both People matched. Returns false if either Person is absent, a
// Match already exists between the pair, or the store is unavailable.
func (r *Repository) CreateMatch(ctx context.Context, fromID, toID, reasoning string, score *float64) bool {
	if fromID == "" || toID == "" || fromID == toID {
		return false
	}
	if !r.personExists(ctx, fromID) || !r.personExists(ctx, toID) {
		return false
	}

	// One match per unordered pair, checked before any write
	exists, ok := r.HasExistingMatch(ctx, fromID, toID)
	if !ok || exists {
		return false
	}

	// Each person coordinates at most one match at a time
	for _, id := range []string{fromID, toID} {
		active, ok := r.hasActiveMatch(ctx, id)
		if !ok || active {
			return false
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	scoreVal := 0.0
	hasScore := false
	if score != nil {
		scoreVal = *score
		hasScore = true
	}

	records, ok := r.writeWithConflictRetry(ctx, `
		MATCH (a:Person {id: $fromID})
		MATCH (b:Person {id: $toID})
		MERGE (a)-[r:MATCHED_WITH]->(b)
		ON CREATE SET
			r.status = $status,
			r.reasoning = $reasoning,
			r.venue = '',
			r.proposed_time = '',
			r.from_clues = [],
			r.to_clues = [],
			r.feedback = [],
			r.reminders_sent = [],
			r.linked = false,
			r.created_at = datetime($now)
		SET r.updated_at = datetime($now),
		    r.score = CASE WHEN $hasScore THEN $score ELSE r.score END,
		    a.status = $matched,
		    b.status = $matched
		RETURN r.status AS status
	`, map[string]interface{}{
		"fromID":    fromID,
		"toID":      toID,
		"status":    string(StatusMatchFound),
		"reasoning": reasoning,
		"score":     scoreVal,
		"hasScore":  hasScore,
		"matched":   string(PersonStatusMatched),
		"now":       now,
	})
	if !ok || len(records) == 0 {
		return false
	}

	r.logger.Info("Match created",
		zap.String("from", fromID),
		zap.String("to", toID))
	return true
}

// hasActiveMatch reports whether any non-terminal Match touches the person
func (r *Repository) hasActiveMatch(ctx context.Context, personID string) (bool, bool) {
	records, ok := r.conn.Read(ctx, `
		MATCH (p:Person {id: $id})-[m:MATCHED_WITH]-()
		WHERE m.status IN $statuses
		RETURN count(m) AS n
	`, map[string]interface{}{
		"id":       personID,
		"statuses": statusStrings(ActiveMatchStatuses),
	})
	if !ok || len(records) == 0 {
		return false, false
	}
	return getInt64FromRecord(records[0], "n") > 0, true
}

// GetMatch retrieves the Match between two People regardless of direction
func (r *Repository) GetMatch(ctx context.Context, idA, idB string) (*Match, bool) {
	records, ok := r.conn.Read(ctx, `
		MATCH (a:Person {id: $idA})-[r:MATCHED_WITH]-(b:Person {id: $idB})
		RETURN startNode(r).id AS from_id, endNode(r).id AS to_id,
		       properties(r) AS props
		LIMIT 1
	`, map[string]interface{}{"idA": idA, "idB": idB})
	if !ok || len(records) == 0 {
		return nil, false
	}
	return parseMatchRecord(records[0]), true
}

// LatestActiveMatchForUser resolves the only match addressable by a user's
// next message: the most recently created among their active matches
func (r *Repository) LatestActiveMatchForUser(ctx context.Context, userID string) (*Match, bool) {
	records, ok := r.conn.Read(ctx, `
		MATCH (p:Person {id: $userID})-[r:MATCHED_WITH]-(other:Person)
		WHERE r.status IN $statuses
		RETURN startNode(r).id AS from_id, endNode(r).id AS to_id,
		       properties(r) AS props
		ORDER BY r.created_at DESC
		LIMIT 1
	`, map[string]interface{}{
		"userID":   userID,
		"statuses": statusStrings(ActiveMatchStatuses),
	})
	if !ok || len(records) == 0 {
		return nil, false
	}
	return parseMatchRecord(records[0]), true
}

// UpdateMatch applies only the provided fields, always touching
// updated_at. When the status moves into a terminal state, both People
// revert to active within the same statement.
func (r *Repository) UpdateMatch(ctx context.Context, fromID, toID string, upd MatchUpdate) bool {
	setClauses := []string{"r.updated_at = datetime($now)"}
	params := map[string]interface{}{
		"fromID": fromID,
		"toID":   toID,
		"now":    time.Now().UTC().Format(time.RFC3339),
	}

	terminal := false
	if upd.Status != nil {
		setClauses = append(setClauses, "r.status = $status")
		params["status"] = string(*upd.Status)
		terminal = upd.Status.IsTerminal()
	}
	if upd.Reasoning != nil {
		setClauses = append(setClauses, "r.reasoning = $reasoning")
		params["reasoning"] = *upd.Reasoning
	}
	if upd.Score != nil {
		setClauses = append(setClauses, "r.score = $score")
		params["score"] = *upd.Score
	}
	if upd.Venue != nil {
		setClauses = append(setClauses, "r.venue = $venue")
		params["venue"] = *upd.Venue
	}
	if upd.ProposedTime != nil {
		setClauses = append(setClauses, "r.proposed_time = $proposedTime")
		params["proposedTime"] = *upd.ProposedTime
	}
	if upd.ProposalSentAt != nil {
		setClauses = append(setClauses, "r.proposal_sent_at = datetime($proposalSentAt)")
		params["proposalSentAt"] = upd.ProposalSentAt.UTC().Format(time.RFC3339)
	}
	if upd.FromClues != nil {
		setClauses = append(setClauses, "r.from_clues = $fromClues")
		params["fromClues"] = encodeClues(*upd.FromClues)
	}
	if upd.ToClues != nil {
		setClauses = append(setClauses, "r.to_clues = $toClues")
		params["toClues"] = encodeClues(*upd.ToClues)
	}
	if upd.Feedback != nil {
		setClauses = append(setClauses, "r.feedback = $feedback")
		params["feedback"] = encodeFeedback(*upd.Feedback)
	}

	params["terminal"] = terminal
	params["active"] = string(PersonStatusActive)

	query := fmt.Sprintf(`
		MATCH (a:Person {id: $fromID})-[r:MATCHED_WITH]->(b:Person {id: $toID})
		SET %s
		WITH r, a, b
		FOREACH (ignored IN CASE WHEN $terminal THEN [1] ELSE [] END |
			SET a.status = $active, b.status = $active
		)
		RETURN r.status AS status
	`, strings.Join(setClauses, ",\n\t\t    "))

	records, ok := r.writeWithConflictRetry(ctx, query, params)
	if !ok || len(records) == 0 {
		return false
	}

	if upd.Status != nil {
		r.logger.Info("Match status updated",
			zap.String("from", fromID),
			zap.String("to", toID),
			zap.String("status", string(*upd.Status)),
			zap.Bool("terminal", terminal))
	}
	return true
}

// ClaimLink flips the linked flag, returning whether this call was the
// first to claim it. The flag is the idempotency guard for the one-time
// connection-established side effect.
func (r *Repository) ClaimLink(ctx context.Context, fromID, toID string) (bool, bool) {
	records, ok := r.writeWithConflictRetry(ctx, `
		MATCH (a:Person {id: $fromID})-[r:MATCHED_WITH]->(b:Person {id: $toID})
		WITH r, coalesce(r.linked, false) AS was
		SET r.linked = true
		RETURN was
	`, map[string]interface{}{"fromID": fromID, "toID": toID})
	if !ok || len(records) == 0 {
		return false, false
	}
	return !getBoolFromRecord(records[0], "was"), true
}

// MarkReminded appends a reminder tag to the match, deduplicated in-query
func (r *Repository) MarkReminded(ctx context.Context, fromID, toID, tag string) bool {
	records, ok := r.writeWithConflictRetry(ctx, `
		MATCH (a:Person {id: $fromID})-[r:MATCHED_WITH]->(b:Person {id: $toID})
		SET r.reminders_sent = CASE
			WHEN $tag IN r.reminders_sent THEN r.reminders_sent
			ELSE r.reminders_sent + $tag
		END
		RETURN r.status AS status
	`, map[string]interface{}{"fromID": fromID, "toID": toID, "tag": tag})
	return ok && len(records) > 0
}

// ListActiveMatches returns every Match in one of the given statuses;
// sweep schedulers drive expiry and reminders off this
func (r *Repository) ListActiveMatches(ctx context.Context, statuses []MatchStatus) ([]Match, bool) {
	if len(statuses) == 0 {
		statuses = ActiveMatchStatuses
	}
	records, ok := r.conn.Read(ctx, `
		MATCH (a:Person)-[r:MATCHED_WITH]->(b:Person)
		WHERE r.status IN $statuses
		RETURN a.id AS from_id, b.id AS to_id, properties(r) AS props
		ORDER BY r.created_at ASC
	`, map[string]interface{}{"statuses": statusStrings(statuses)})
	if !ok {
		return nil, false
	}
	return parseMatchRecords(records), true
}

// ListUpcomingScheduled returns accepted/scheduled matches whose proposed
// meeting time falls within the next hoursWindow hours
func (r *Repository) ListUpcomingScheduled(ctx context.Context, hoursWindow int) ([]Match, bool) {
	now := time.Now().UTC()
	records, ok := r.conn.Read(ctx, `
		MATCH (a:Person)-[r:MATCHED_WITH]->(b:Person)
		WHERE r.status IN $statuses
		  AND r.proposed_time <> ''
		  AND datetime(r.proposed_time) > datetime($now)
		  AND datetime(r.proposed_time) <= datetime($until)
		RETURN a.id AS from_id, b.id AS to_id, properties(r) AS props
		ORDER BY r.proposed_time ASC
	`, map[string]interface{}{
		"statuses": statusStrings([]MatchStatus{StatusAccepted, StatusScheduled}),
		"now":      now.Format(time.RFC3339),
		"until":    now.Add(time.Duration(hoursWindow) * time.Hour).Format(time.RFC3339),
	})
	if !ok {
		return nil, false
	}
	return parseMatchRecords(records), true
}

// ListPastScheduled returns accepted/scheduled matches whose proposed
// meeting time elapsed within the last hoursWindow hours; feedback
// collection starts from these
func (r *Repository) ListPastScheduled(ctx context.Context, hoursWindow int) ([]Match, bool) {
	now := time.Now().UTC()
	records, ok := r.conn.Read(ctx, `
		MATCH (a:Person)-[r:MATCHED_WITH]->(b:Person)
		WHERE r.status IN $statuses
		  AND r.proposed_time <> ''
		  AND datetime(r.proposed_time) <= datetime($now)
		  AND datetime(r.proposed_time) >= datetime($since)
		RETURN a.id AS from_id, b.id AS to_id, properties(r) AS props
		ORDER BY r.proposed_time ASC
	`, map[string]interface{}{
		"statuses": statusStrings([]MatchStatus{StatusAccepted, StatusScheduled}),
		"now":      now.Format(time.RFC3339),
		"since":    now.Add(-time.Duration(hoursWindow) * time.Hour).Format(time.RFC3339),
	})
	if !ok {
		return nil, false
	}
	return parseMatchRecords(records), true
}

// ============================================================================
// Parsing
// ============================================================================

func statusStrings(statuses []MatchStatus) []interface{} {
	out := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func parseMatchRecords(records []*neo4j.Record) []Match {
	matches := make([]Match, 0, len(records))
	for _, record := range records {
		if m := parseMatchRecord(record); m != nil {
			matches = append(matches, *m)
		}
	}
	return matches
}

func parseMatchRecord(record *neo4j.Record) *Match {
	props := getMapFromRecord(record, "props")
	if props == nil {
		return nil
	}

	return &Match{
		FromID:         getStringFromRecord(record, "from_id"),
		ToID:           getStringFromRecord(record, "to_id"),
		Status:         MatchStatus(getStringFromMap(props, "status")),
		Reasoning:      getStringFromMap(props, "reasoning"),
		Score:          getFloat64FromMap(props, "score"),
		Venue:          getStringFromMap(props, "venue"),
		ProposedTime:   getStringFromMap(props, "proposed_time"),
		FromClues:      decodeClues(getStringSliceFromMap(props, "from_clues")),
		ToClues:        decodeClues(getStringSliceFromMap(props, "to_clues")),
		Feedback:       decodeFeedback(getStringSliceFromMap(props, "feedback")),
		RemindersSent:  getStringSliceFromMap(props, "reminders_sent"),
		Linked:         getBoolFromMap(props, "linked"),
		CreatedAt:      getTimeFromMap(props, "created_at"),
		UpdatedAt:      getTimeFromMap(props, "updated_at"),
		ProposalSentAt: getTimeFromMap(props, "proposal_sent_at"),
	}
}
