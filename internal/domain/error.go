package domain

import (
	"context"
	"errors"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTurnInProgress  = errors.New("another turn is in progress for this session")

	// Storage
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Local validation
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrNoAssistant    = errors.New("no assistant configured for this colleague")

	// Auth
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// Upstream provider
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrQuotaExceeded  = errors.New("quota exceeded or payment required")
	ErrUpstream       = errors.New("upstream provider failure")
	ErrUpstreamFormat = errors.New("malformed upstream event")
	ErrRunFailed      = errors.New("assistant run failed")
	ErrRunTimeout     = errors.New("assistant run timed out")
)

// Category groups errors into the user-facing classes of the chat surface.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryRateLimit  Category = "rate_limit"
	CategoryQuota      Category = "quota"
	CategoryTimeout    Category = "timeout"
	CategoryUpstream   Category = "upstream"
)

// CategoryOf maps any error to its category. A TurnError keeps the category it was
// tagged with; unknown errors are upstream failures.
func CategoryOf(err error) Category {
	var te *TurnError
	if errors.As(err, &te) && te.Category != "" {
		return te.Category
	}
	switch {
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrNoAssistant),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTurnInProgress):
		return CategoryValidation
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return CategoryAuth
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, ErrQuotaExceeded):
		return CategoryQuota
	case errors.Is(err, ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryUpstream
	}
}

// TurnError tags a failed chat turn with its user-facing category.
type TurnError struct {
	Category Category
	Err      error
}

// NewTurnError tags err with its category. An already tagged error is returned as is.
func NewTurnError(err error) *TurnError {
	var te *TurnError
	if errors.As(err, &te) {
		return te
	}
	return &TurnError{Category: CategoryOf(err), Err: err}
}

func (e *TurnError) Error() string { return string(e.Category) + ": " + e.Err.Error() }

func (e *TurnError) Unwrap() error { return e.Err }
