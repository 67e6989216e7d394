package types

// ConnectionState is the lifecycle state of the session channel.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosedWillRetry
	StateClosedFinal
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedWillRetry:
		return "closed-will-retry"
	case StateClosedFinal:
		return "closed-final"
	default:
		return "unknown"
	}
}
