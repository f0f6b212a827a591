package kumo

import (
	"errors"
	"fmt"
)

// AuthError means credentials or tokens were rejected; the caller should
// re-authenticate before retrying.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kumo auth: %s: %v", e.Reason, e.Err)
	}
	return "kumo auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnError is a transient transport or remote failure; the caller may
// retry later. Status is the HTTP status when one was received.
type ConnError struct {
	Reason string
	Status int
	Err    error
}

func (e *ConnError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("kumo connection: %s (status %d)", e.Reason, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("kumo connection: %s: %v", e.Reason, e.Err)
	default:
		return "kumo connection: " + e.Reason
	}
}

func (e *ConnError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
