package provider

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures for the orchestrator's caller.
type Kind string

const (
	// KindInvalidRequest means the customer or amount data was rejected;
	// retrying without correction will fail again.
	KindInvalidRequest Kind = "invalid_request"
	// KindProviderUnavailable covers network and auth failures against
	// the provider. Transient, but never auto-retried in the request path.
	KindProviderUnavailable Kind = "provider_unavailable"
	// KindCaptureFailed is terminal for the attempt; a new charge is
	// required to retry.
	KindCaptureFailed Kind = "capture_failed"
	// KindMalformedCallback marks a callback missing required correlation
	// fields or failing authentication. Logged and discarded.
	KindMalformedCallback Kind = "malformed_callback"
)

// ErrUnsupported is returned when an adapter does not implement a
// capability (e.g. Capture on a webhook-confirmed provider).
var ErrUnsupported = errors.New("operation not supported by provider")

type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, providerName, message string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Message: message, Err: err}
}

// KindOf extracts the machine-readable kind from an adapter error, or ""
// when the error did not originate from an adapter.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
