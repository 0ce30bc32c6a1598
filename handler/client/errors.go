package client

import (
	"errors"
	"fmt"
)

var ErrNoAddress = errors.New("no address given and no default host configured")

// InvalidStateError reports an operation called in the wrong connection state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// NotConnectedError reports a send attempted while the connection is not open.
type NotConnectedError struct {
	State State
	Err   error
}

func (e *NotConnectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not connected (state %s): %v", e.State, e.Err)
	}
	return fmt.Sprintf("not connected (state %s)", e.State)
}

func (e *NotConnectedError) Unwrap() error {
	return e.Err
}
