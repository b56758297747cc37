package models

import "encoding/json"

// Attachment describes a staged file referenced by an image/file message.
// The descriptor is persisted as the message payload with any caption text
// merged in; the bytes themselves live with the attachment collaborator.
type Attachment struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Size int64       `json:"size"`
	Kind MessageType `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// EncodeAttachment renders the descriptor JSON used as message payload.
func EncodeAttachment(a Attachment) ([]byte, error) { return json.Marshal(a) }

// DecodeAttachment parses an attachment descriptor payload.
func DecodeAttachment(data []byte) (Attachment, error) {
	var a Attachment
	err := json.Unmarshal(data, &a)
	return a, err
}
