// Package syncerr defines the failure kinds of a sync session.
//
// Callers classify failures with errors.Is:
//
//	if errors.Is(err, syncerr.ErrNetwork) {
//	    // session ends with a network error
//	}
package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is returned when the remote service cannot be reached or
	// rejects the session's credentials.
	ErrNetwork = errors.New("network failure")

	// ErrActionFailure is returned when the remote service or the local
	// store processed a request but the outcome could not be used.
	ErrActionFailure = errors.New("action failure")

	// ErrCancelled is returned when a session stops because Cancel was called.
	ErrCancelled = errors.New("sync cancelled")

	// ErrVersionConflict is returned when a guarded local write matched no
	// row because the row changed since it was read.
	ErrVersionConflict = errors.New("local row changed during sync")

	// ErrInProgress is returned when a session is requested while another runs.
	ErrInProgress = errors.New("sync already in progress")
)

// NetworkError wraps a transport-level failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: network failure", e.Op)
	}
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches ErrNetwork
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ActionError describes a request that was processed but failed
type ActionError struct {
	Op  string
	Msg string
	Err error
}

func (e *ActionError) Error() string {
	msg := e.Op + ": action failed"
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ActionError) Unwrap() error { return e.Err }

// Is matches ErrActionFailure
func (e *ActionError) Is(target error) bool { return target == ErrActionFailure }

// Network wraps err as a network failure for op
func Network(op string, err error) error {
	return &NetworkError{Op: op, Err: err}
}

// Action builds an action failure for op
func Action(op, format string, args ...any) error {
	return &ActionError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapAction wraps err as an action failure for op
func WrapAction(op string, err error) error {
	return &ActionError{Op: op, Err: err}
}

// IsNetwork reports whether err is a network failure
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsAction reports whether err is an action failure
func IsAction(err error) bool {
	return errors.Is(err, ErrActionFailure)
}
