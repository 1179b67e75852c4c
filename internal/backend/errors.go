package backend

import (
	"errors"
	"fmt"
)

// ErrCommunication matches every *CommunicationError through errors.Is.
var ErrCommunication = errors.New("backend communication failure")

// CommunicationError wraps a failure raised by a store client. The cause is
// kept intact and nothing is retried.
type CommunicationError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the client's error.
func (e *CommunicationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCommunication.
func (e *CommunicationError) Is(target error) bool {
	return target == ErrCommunication
}

// Wrap returns err as a *CommunicationError, or nil when err is nil.
// Errors that already are communication errors are returned unchanged.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CommunicationError
	if errors.As(err, &ce) {
		return err
	}
	return &CommunicationError{Backend: kind.String(), Op: op, Err: err}
}

// IsCommunication reports whether err is a store execution failure.
func IsCommunication(err error) bool {
	return errors.Is(err, ErrCommunication)
}
