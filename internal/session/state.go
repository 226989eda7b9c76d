package session

// State is the session lifecycle state. Failed and Closed are terminal.
type State uint8

const (
	Idle State = iota
	Gathering
	Displaying
	ScannedOne
	Connecting
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Gathering:
		return "gathering"
	case Displaying:
		return "displaying"
	case ScannedOne:
		return "scanned-one"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == Failed || s == Closed
}

// Role is the negotiation role assigned once both fingerprints are
// known. The side with the lexicographically greater fingerprint
// offers; the other answers. Both sides reach the same assignment
// without exchanging anything beyond the payloads, which removes the
// glare race entirely.
type Role uint8

const (
	RoleUnassigned Role = iota
	Offerer
	Answerer
)

func (r Role) String() string {
	switch r {
	case Offerer:
		return "offerer"
	case Answerer:
		return "answerer"
	default:
		return "unassigned"
	}
}
