package graph

import (
	"strings"
	"sync"

	"kindred/backend/internal/constants"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

// SimilarityPredicate decides whether a new insight duplicates an existing
// one. The policy is replaceable: the default compares normalized text, but
// an embedding-cosine threshold works just as well.
type SimilarityPredicate func(existing, candidate string) bool

// Repository handles all Neo4j operations for the matching engine.
// Every write returns a boolean rather than an error: false means either
// "store unavailable, operation skipped" or "referenced node absent" —
// callers that need to tell them apart can consult conn.IsAvailable().
type Repository struct {
	conn    *Connection
	logger  *zap.Logger
	agentID string

	// IsDuplicateInsight guards non-profile dimension writes
	IsDuplicateInsight SimilarityPredicate

	// ensuredIndexes caches vector indexes already created this process,
	// keyed by (index name, embedding length)
	ensuredIndexes sync.Map
}

// NewRepository creates a graph repository bound to a connection
func NewRepository(conn *Connection) *Repository {
	return &Repository{
		conn:               conn,
		logger:             logger.Get(),
		agentID:            constants.DefaultAgentID,
		IsDuplicateInsight: DefaultDuplicatePredicate,
	}
}

// SetAgentID overrides the managing agent identity used for scoping
func (r *Repository) SetAgentID(agentID string) {
	if agentID != "" {
		r.agentID = agentID
	}
}

// AgentID returns the managing agent identity
func (r *Repository) AgentID() string {
	return r.agentID
}

// DefaultDuplicatePredicate treats two insights as duplicates when their
// normalized text is equal, or when one contains the other and their
// lengths are within 10% of each other.
func DefaultDuplicatePredicate(existing, candidate string) bool {
	a := normalizeInsight(existing)
	b := normalizeInsight(candidate)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter)/float64(longer) >= 0.9
	}
	return false
}

// normalizeInsight lowercases, collapses whitespace, and strips trailing
// punctuation for comparison
func normalizeInsight(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".,!?;:")
}
