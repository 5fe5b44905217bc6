package refresh

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated reports that no refresh credential is present. It is a
// no-op signal rather than a failure: the network is never contacted and
// nothing changes. Callers usually redirect to login.
var ErrNotAuthenticated = errors.New("not authenticated: no refresh credential")

// RejectedError means the server declared the refresh credential invalid or
// expired. Terminal: the session is cleared and the user must log in again.
type RejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("refresh rejected: status %d, body: %s", e.StatusCode, string(e.Body))
}

// TransportError wraps a network or server failure (timeout, connection
// error, 5xx). Transient: credentials are left untouched and callers may
// retry on their own schedule.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("refresh transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
