package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("could not read database row")
	ErrBatchNotCancelable = errors.New("batch is not in a cancelable state")
	ErrAccessDenied       = errors.New("access denied")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrUnknownProvider    = errors.New("unknown provider")
)

// ProviderError is returned by image provider adapters. Its reason string
// ends up in Job.ErrorMessage, so keep it human readable.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider, reason string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: reason, Err: err}
}
