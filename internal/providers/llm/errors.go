package llm

import (
	"errors"
)

var (
	// ErrNoProvider means no provider of the requested kind is configured.
	ErrNoProvider = errors.New("llm: no provider configured")
	// ErrNoResult means every provider failed or returned empty text.
	ErrNoResult = errors.New("llm: no result")
)

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

func NewTransientError(err error) error { return &TransientError{err: err} }

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

func NewFatalError(err error) error { return &FatalError{err: err} }

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func retryableStatus(code int) bool {
	return code == 408 || code == 429 || (code >= 500 && code <= 599)
}

// classifyStatus wraps err according to an HTTP status code.
func classifyStatus(code int, err error) error {
	if retryableStatus(code) {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
