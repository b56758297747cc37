package models

import "encoding/json"

// SystemEventKind enumerates membership-affecting events relayed by the
// mediator as system messages. The set is closed; consumers switch over it
// exhaustively.
type SystemEventKind string

const (
	SystemUserAdded       SystemEventKind = "user_added"
	SystemUserLeft        SystemEventKind = "user_left"
	SystemUserBanned      SystemEventKind = "user_banned"
	SystemChatInfoChanged SystemEventKind = "chat_info_changed"
)

// SystemEvent is the payload of a Message with Type == TypeSystem.
type SystemEvent struct {
	Kind   SystemEventKind `json:"kind"`
	Member []byte          `json:"member,omitempty"`
	Info   string          `json:"info,omitempty"`
}

// DecodeSystemEvent parses a system message payload.
func DecodeSystemEvent(data []byte) (SystemEvent, error) {
	var ev SystemEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// Reaction is the payload of a Message with Type == TypeReaction. The target
// is carried in Message.ReplyTo; an empty Emoji retracts the author's
// previous reaction.
type Reaction struct {
	Emoji string `json:"emoji"`
}

// DecodeReaction parses a reaction message payload.
func DecodeReaction(data []byte) (Reaction, error) {
	var r Reaction
	err := json.Unmarshal(data, &r)
	return r, err
}
