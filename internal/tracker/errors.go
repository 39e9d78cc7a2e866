package tracker

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the tracker has no item with the requested ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("work item not found: %s", e.ID)
}

// AuthError indicates the tracker rejected the configured credentials.
type AuthError struct {
	Backend string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (status %d)", e.Backend, e.Status)
}

// TransientError indicates a network failure or 5xx condition. Callers may
// retry the operation; the Rally client already retries once before
// surfacing one of these.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing work item.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAuth reports whether err indicates rejected credentials.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsTransient reports whether err originated from a retryable network or
// server-side failure.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}
