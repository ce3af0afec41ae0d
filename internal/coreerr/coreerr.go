// Package coreerr defines the error taxonomy shared by every core
// component, independent of transport. internal/httpapi maps a Kind to a
// status code; internal/core and its collaborators never construct raw
// errors for anything a caller needs to branch on.
package coreerr

import "fmt"

// Kind classifies an error for transport-agnostic handling.
type Kind string

const (
	KindClientInput     Kind = "client_input"
	KindAuth            Kind = "auth"
	KindAuthz           Kind = "authz"
	KindRateLimit       Kind = "rate_limit"
	KindDuplicate       Kind = "duplicate"
	KindVerification    Kind = "verification"
	KindDispatch        Kind = "dispatch"
	KindExternalTransient Kind = "external_transient"
	KindInternal        Kind = "internal"
)

// Error wraps an underlying cause with a Kind and optional structured
// payload (e.g. rate-limit reset metadata) for the HTTP layer to surface.
type Error struct {
	Kind    Kind
	Message string
	Payload any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a Kind-tagged error with no payload.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPayload attaches a structured payload (e.g. rate-limit metadata) to
// a Kind-tagged error.
func WithPayload(kind Kind, message string, payload any) *Error {
	return &Error{Kind: kind, Message: message, Payload: payload}
}

// As extracts a *Error from err, if any.
func As(err error) (*Error, bool) {
	ce, ok := err.(*Error)
	return ce, ok
}
