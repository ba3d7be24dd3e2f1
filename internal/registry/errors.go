package registry

import (
	"errors"
	"fmt"
)

// ErrSessionExpired reports that the registry rejected the session token.
// It is fatal to the current query's pagination but not to the run; the
// pipeline does not re-authenticate mid-run.
var ErrSessionExpired = errors.New("registry: session expired")

// ErrNotFound reports that a business ID no longer exists server-side.
// Callers log and keep the summary record with agent fields absent.
var ErrNotFound = errors.New("registry: business not found")

// AuthError reports that the verification challenge could not be cleared
// and no session was obtained. Fatal to the whole run; the caller must
// restart the pipeline rather than hammer the challenge endpoint.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry: authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("registry: authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps err as a fatal authentication failure.
func NewAuthError(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

// IsAuthError reports whether the error chain contains an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
