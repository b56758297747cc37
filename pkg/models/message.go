package models

// DeliveryState tracks how far a locally visible message has progressed
// toward remote confirmation. Transitions only move forward (see Stronger);
// the single allowed backward step is an explicit resend re-entering Pending.
type DeliveryState int

const (
	StatePending DeliveryState = iota
	StateFailed
	StateSent
	StateDelivered
)

func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	}
	return "unknown"
}

// Stronger reports whether s is more confirmatory than other. The merge rule
// for racing confirmations is: Pending < Failed < Sent < Delivered.
func (s DeliveryState) Stronger(other DeliveryState) bool { return s > other }

// MessageType tags the payload carried in Message.Data.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeFile     MessageType = "file"
	TypeReaction MessageType = "reaction"
	TypeSystem   MessageType = "system"
)

// Message is one row of the per-chat ledger. GUID is the only identity that
// is stable across the local and remote views of a logical message; LocalID
// is a per-chat monotonic handle assigned before any network round trip and
// ServerID is a mediator reference attached on send acknowledgement.
type Message struct {
	LocalID  int64         `json:"local_id"`
	GUID     uint64        `json:"guid"`
	ServerID int64         `json:"server_id,omitempty"`
	Chat     string        `json:"chat"`
	Author   []byte        `json:"author,omitempty"`
	TS       int64         `json:"ts"`
	Type     MessageType   `json:"type"`
	Data     []byte        `json:"data,omitempty"`
	// ReplyTo references the target by GUID, never by LocalID, so replies
	// survive differing LocalID numbering across devices.
	ReplyTo  uint64        `json:"reply_to,omitempty"`
	State    DeliveryState `json:"state"`
	Incoming bool          `json:"incoming,omitempty"`
}

// IsSystem reports whether the message carries a membership-affecting event.
func (m *Message) IsSystem() bool { return m.Type == TypeSystem }

// IsReaction reports whether the message is a reaction event.
func (m *Message) IsReaction() bool { return m.Type == TypeReaction }
