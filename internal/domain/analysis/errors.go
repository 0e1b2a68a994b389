package analysis

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the engine has no registered backends; fatal to Submit.
	ErrNotConfigured = errors.New("analysis engine not configured: no backends registered")
	// ErrNotFound is returned by lookups of an unknown analysis id.
	ErrNotFound = errors.New("analysis not found")
	// ErrAlreadyExists is returned when a result id is written twice.
	ErrAlreadyExists = errors.New("analysis already exists")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("backend quota exceeded")
)

// ErrorKind classifies a backend failure
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindQuota          ErrorKind = "quota"
	KindParse          ErrorKind = "parse"
	KindTimeout        ErrorKind = "timeout"
	KindCancelled      ErrorKind = "cancelled"
	KindUnknownBackend ErrorKind = "unknown_backend"
	KindPanic          ErrorKind = "panic"
)

// BackendError is the error every adapter returns. It never escapes the dispatcher.
type BackendError struct {
	Backend BackendID
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError builds a BackendError.
func NewBackendError(id BackendID, kind ErrorKind, err error) *BackendError {
	return &BackendError{Backend: id, Kind: kind, Err: err}
}

// KindOf classifies any error returned from a backend branch.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	}
	return KindNetwork
}
