package vault

// State is the session state of a Vault.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateExpired
	StateInvalidated
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateInvalidated:
		return "invalidated"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
