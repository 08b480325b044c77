package proverr

import (
	"errors"
	"fmt"

	"quotefeed/internal/market"
)

// Kind classifies what went wrong at a provider boundary.
type Kind string

const (
	// KindTransport covers network, DNS and timeout failures.
	KindTransport Kind = "transport"
	// KindStatus covers non-2xx upstream responses.
	KindStatus Kind = "status"
	// KindPayload covers malformed, empty or unexpectedly shaped bodies.
	KindPayload Kind = "payload"
	// KindSentinel covers provider-reported soft failures inside a 2xx
	// body, such as rate-limit notices.
	KindSentinel Kind = "sentinel"
	// KindCredential covers session or token acquisition/validation.
	KindCredential Kind = "credential"
)

// Error is the uniform failure an adapter hands to the orchestrator.
// Adapters never let raw transport or decode errors escape past it.
type Error struct {
	Provider market.ProviderID
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a provider failure of the given kind.
func New(p market.ProviderID, kind Kind, err error) *Error {
	return &Error{Provider: p, Kind: kind, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(p market.ProviderID, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: p, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Reason extracts a short human-readable reason from any error, using
// the wrapped cause when err is a provider Error.
func Reason(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ProviderOf returns the provider a failure is attributed to, or "" for
// errors that did not originate at an adapter.
func ProviderOf(err error) market.ProviderID {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Provider
	}
	return ""
}
