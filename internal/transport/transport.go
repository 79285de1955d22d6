// Package transport defines the capability interface for email delivery
// backends and the error taxonomy they surface to the dispatcher.
package transport

import (
	"context"
	"fmt"

	"github.com/barbaritakodi-cell/sender/internal/email"
)

// Transport is the single delivery capability the dispatcher depends on.
// One implementation is selected at configuration time; the dispatcher never
// branches on the concrete kind.
type Transport interface {
	// Send delivers exactly one message. It returns a *Error (or another
	// error for unexpected failures) when delivery fails.
	Send(ctx context.Context, msg *email.Message) error

	// Verify checks credentials and reachability without sending any
	// message.
	Verify(ctx context.Context) error

	// Name returns the human-readable name of this transport.
	Name() string
}

// Kind classifies a delivery failure. The dispatcher only needs succeeded
// versus failed-with-reason; the kind keeps reasons consistent across
// transports.
type Kind string

const (
	KindAuthFailed         Kind = "authentication failed"
	KindRecipientRejected  Kind = "recipient rejected"
	KindNetworkUnavailable Kind = "network unavailable"
	KindQuotaExceeded      Kind = "quota exceeded"
	KindMalformedMessage   Kind = "malformed message"
	KindUnknown            Kind = "unknown error"
)

// Error is a classified delivery failure.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

// NewError builds a classified error, optionally wrapping the backend cause.
func NewError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.cause
}
