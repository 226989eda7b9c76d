package session

import (
	"errors"
	"fmt"
)

// Connection error sentinels. Asynchronous failures (timeout, ICE) are
// delivered through the error callback; synchronous precondition
// violations are returned from the offending call.
var (
	ErrSelfConnection = errors.New("scanned own payload (self connection)")
	ErrPeerRecorded   = errors.New("peer already recorded")
	ErrTimeout        = errors.New("session timed out")
	ErrGatherTimeout  = errors.New("candidate gathering timed out with no candidates")
)

// StateError reports an operation invoked in a state that does not
// permit it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// ICEError carries the transport-reported ICE state that caused the
// session to fail.
type ICEError struct {
	ICEState string
}

func (e *ICEError) Error() string {
	return fmt.Sprintf("ice connection failed (state %s)", e.ICEState)
}

// TransportError wraps a generic transport failure with the session
// state at the time it surfaced.
type TransportError struct {
	State State
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure in state %s: %v", e.State, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
