package dispatch

import "fmt"

// ListenerError is a listener failure isolated during Route.
type ListenerError struct {
	Event    string
	Listener ListenerID
	Panicked bool
	Err      error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d for event %s failed: %v", e.Listener, e.Event, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}
