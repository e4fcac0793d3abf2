package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every service. Callers test with errors.Is.
var (
	ErrInvalidState         = errors.New("operation not permitted in current campaign status")
	ErrEmptyAudience        = errors.New("audience resolved to zero recipients")
	ErrUnknownRecipient     = errors.New("event references a recipient that was never dispatched")
	ErrMalformedEvent       = errors.New("malformed event")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrTransportRejected    = errors.New("transport rejected message")

	ErrInvalidAudience = errors.New("invalid audience descriptor")
)

// TransportError carries the per-recipient detail of a failed dispatch.
// Permanent selects which transport sentinel it unwraps to.
type TransportError struct {
	Code      string
	Permanent bool
	Err       error
}

func (e *TransportError) Error() string {
	kind := ErrTransportUnavailable
	if e.Permanent {
		kind = ErrTransportRejected
	}
	msg := kind.Error()
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the classification sentinel and the cause.
func (e *TransportError) Unwrap() []error {
	kind := ErrTransportUnavailable
	if e.Permanent {
		kind = ErrTransportRejected
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// Unavailable wraps err as a transient transport failure.
func Unavailable(code string, err error) error {
	return &TransportError{Code: code, Err: err}
}

// Rejected wraps err as a permanent per-recipient failure.
func Rejected(code string, err error) error {
	return &TransportError{Code: code, Permanent: true, Err: err}
}
