package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeMatch represents match-protocol errors
	ErrorTypeMatch ErrorType = "match"
	// ErrorTypeEmbedding represents embedding-service errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error's type. The method is promoted to every
// typed wrapper that embeds BaseError, so classification works without
// enumerating wrapper types.
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, "query failed", err),
		Query:     query,
	}
}

// ErrPersonNotFound is returned when a person is not found in the graph
type ErrPersonNotFound struct {
	*BaseError
	PersonID string
}

func NewPersonNotFound(personID string) *ErrPersonNotFound {
	return &ErrPersonNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("person not found: %s", personID), nil),
		PersonID:  personID,
	}
}

// Match Errors

// ErrMatchExists is returned when a match already exists between a pair
type ErrMatchExists struct {
	*BaseError
	FromID string
	ToID   string
}

func NewMatchExists(fromID, toID string) *ErrMatchExists {
	return &ErrMatchExists{
		BaseError: NewBaseError(ErrorTypeMatch, fmt.Sprintf("match already exists: %s <-> %s", fromID, toID), nil),
		FromID:    fromID,
		ToID:      toID,
	}
}

// ErrNoActiveMatch is returned when a user has no addressable active match
type ErrNoActiveMatch struct {
	*BaseError
	UserID string
}

func NewNoActiveMatch(userID string) *ErrNoActiveMatch {
	return &ErrNoActiveMatch{
		BaseError: NewBaseError(ErrorTypeMatch, fmt.Sprintf("no active match for user: %s", userID), nil),
		UserID:    userID,
	}
}

// ErrInvalidTransition is returned when an event is not legal in the
// match's current status
type ErrInvalidTransition struct {
	*BaseError
	Status string
	Event  string
}

func NewInvalidTransition(status, event string) *ErrInvalidTransition {
	return &ErrInvalidTransition{
		BaseError: NewBaseError(ErrorTypeMatch, fmt.Sprintf("event %s not allowed in status %s", event, status), nil),
		Status:    status,
		Event:     event,
	}
}

// Embedding Errors

// ErrEmbeddingFailed is returned when the embedding service fails
type ErrEmbeddingFailed struct {
	*BaseError
	Model string
}

func NewEmbeddingFailed(model string, err error) *ErrEmbeddingFailed {
	return &ErrEmbeddingFailed{
		BaseError: NewBaseError(ErrorTypeEmbedding, "embedding request failed", err),
		Model:     model,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Context Errors

// ErrContextTimeout is returned when an operation exceeds its deadline
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if c, ok := err.(interface{ Category() ErrorType }); ok {
			return c.Category() == errType
		}
		wrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = wrapper.Unwrap()
	}
	return false
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Graph connection errors are retryable once the store is back
	if IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	// Embedding endpoints are usually transiently overloaded
	if IsErrorType(err, ErrorTypeEmbedding) {
		return true
	}
	return false
}
