package dispatcher

import "errors"

var (
	// ErrQueueFull indicates the dispatcher cannot accept new runs right now.
	ErrQueueFull = errors.New("run queue is full")
	// ErrQueueClosed indicates the dispatcher has been shut down.
	ErrQueueClosed = errors.New("run queue is closed")
)

// PermanentError marks run failures that should not be retried by the dispatcher.
type PermanentError struct {
	msg string
}

func (e *PermanentError) Error() string {
	return e.msg
}

// Permanent wraps a message into a non-retryable run failure.
func Permanent(msg string) error {
	return &PermanentError{msg: msg}
}

// IsPermanent reports whether the provided error originated from a non-retryable failure.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var target *PermanentError
	return errors.As(err, &target)
}
