package session

import (
	"errors"

	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/model"
)

// Kind classifies a failed session operation for display.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid-credentials"
	KindAlreadyRegistered  Kind = "already-registered"
	KindRateLimited        Kind = "rate-limited"
	KindInvalidInput       Kind = "invalid-input"
	KindUnknown            Kind = "unknown"
)

// Error is the typed failure of Login, Register and Start.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "session: " + string(e.Kind)
	}
	return "session: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnknown
}

// classify wraps err in an *Error with the matching Kind.
func classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	kind := KindUnknown
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidSession):
		kind = KindInvalidCredentials
	case errors.Is(err, identity.ErrAlreadyRegistered):
		kind = KindAlreadyRegistered
	case errors.Is(err, identity.ErrRateLimited):
		kind = KindRateLimited
	case errors.Is(err, identity.ErrInvalidInput), model.IsValidation(err):
		kind = KindInvalidInput
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a session error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
