package gateway

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by Run once Disconnect has been called.
	ErrClosed = errors.New("gateway closed")
	// ErrNotConnected is returned by queries that need a live session.
	ErrNotConnected = errors.New("gateway not connected")
)

// ProtocolError is a violation that ends the session: the connection is closed and
// not retried.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway protocol error: %s: %v", e.Reason, e.Err)
	}
	return "gateway protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// SessionLimitError means no session starts are left in the current window.
type SessionLimitError struct {
	ResetAfter time.Duration
}

func (e *SessionLimitError) Error() string {
	return fmt.Sprintf("session start limit exhausted, resets in %s", e.ResetAfter)
}

// dialError marks failures that happened before a connection was established. Only
// these count towards the reconnect attempt limit.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

func errMissing(field string) error {
	return fmt.Errorf("missing %s", field)
}
