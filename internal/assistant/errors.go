package assistant

import (
	"errors"
	"fmt"
)

// Reason is the short machine-usable failure code returned to callers. It
// never carries provider names or internal detail.
type Reason string

const (
	ReasonInvalidRequest = Reason("invalid_request")
	ReasonFirmNotFound   = Reason("firm_not_found")
	ReasonNotConfigured  = Reason("assistant_not_configured")
	ReasonUnavailable    = Reason("assistant_unavailable")
	ReasonInternal       = Reason("internal_error")
)

type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(reason Reason, err error) error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the reason from err, defaulting to ReasonInternal.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ReasonInternal
}
