package session

import "errors"

var (
	// ErrAlreadyRunning is returned when another launcher holds the lock.
	ErrAlreadyRunning = errors.New("another instance is already running")

	// ErrBackendExited is returned when the backend exited on its own.
	ErrBackendExited = errors.New("backend exited unexpectedly")
)

// FatalError is a failure before any task was started. No window exists
// yet, so the caller reports it with a blocking dialog.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
