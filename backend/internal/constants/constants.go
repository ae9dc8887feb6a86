package constants

// Agent constants
const (
	// DefaultAgentID is the default managing agent identifier
	DefaultAgentID = "Kindred"
)

// Similarity search constants
const (
	// DefaultSearchLimit is the candidate count returned when none is requested
	DefaultSearchLimit = 5

	// SearchOversampleFactor is how many raw vector hits are fetched per
	// requested result to compensate for post-filtering. Hits lost to
	// filtering are not backfilled from outside the oversampled window.
	SearchOversampleFactor = 2
)

// Write-conflict retry constants
const (
	// MaxConflictRetries bounds retries of transaction-conflict errors
	MaxConflictRetries = 3

	// ConflictRetryBaseDelayMillis is the base for exponential backoff
	// between conflict retries (delay = base * 2^attempt)
	ConflictRetryBaseDelayMillis = 200
)
