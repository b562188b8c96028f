package session

// State is the scan-session lifecycle state. Transitions flow one way:
//
//	Idle → Connecting → Connected → Scanning → {Stopped | Errored}
//
// Stopped and Errored are terminal; a new scan needs a new Session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Scanning
	Stopped
	Errored
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Scanning:
		return "scanning"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session
func (s State) Terminal() bool {
	return s == Stopped || s == Errored
}
