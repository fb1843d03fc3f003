package session

// State is the lifecycle state of a Driver.
type State int

// Driver states. A session moves Idle → Connecting → Active → Closing →
// Closed, or Active → Failed → Closed when the transport is lost.
const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Running reports whether a session is in progress.
func (s State) Running() bool {
	return s == StateConnecting || s == StateActive || s == StateClosing || s == StateFailed
}
