package pipeline

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned by the quota gate before any provider
// call, ledger write or counter mutation.
var ErrQuotaExceeded = errors.New("you have exceeded your free usage limit")

// InvalidInputError rejects a request before the provider is invoked
// (oversized resume, multi-word object name, malformed upload).
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// ProviderError wraps a failed provider call. The wrapped error is kept so
// the boundary can distinguish the credits-exhausted sub-case.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("provider call failed: %v", e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed ledger insert.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("failed to save creation: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
