package client

// State is the lifecycle state of a ConnWrapper.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// active reports whether a transport connection is being set up or in use.
func (s State) active() bool {
	return s == StateConnecting || s == StateOpen
}
