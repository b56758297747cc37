package models

// ConnState is the per-group-chat connection status pushed by the network
// boundary. It is ephemeral presentation state, never persisted.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnSubscribed
)

func (c ConnState) String() string {
	switch c {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnSubscribed:
		return "subscribed"
	}
	return "unknown"
}
