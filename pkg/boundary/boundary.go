// Package boundary defines the contracts between the sync engine and the
// background network process. The engine never opens sockets or encrypts
// bytes itself; it emits dispatch requests through a Dispatcher and consumes
// asynchronous Events pushed back by the boundary.
package boundary

import (
	"context"

	"peerchat/pkg/models"
)

// Dispatcher carries engine-originated requests to the network boundary.
// Implementations must not block callers on network round trips; delivery
// outcome arrives later as Events.
type Dispatcher interface {
	DispatchSend(ctx context.Context, req SendRequest) error
	DispatchLeave(ctx context.Context, chatID string) error
	DispatchDelete(ctx context.Context, chatID string, guid uint64) error
	DispatchInvite(ctx context.Context, chatID string, recipientKey []byte) error
}

// SendRequest is the dispatch instruction produced for one outbound message.
type SendRequest struct {
	RequestID string
	Chat      string
	GUID      uint64
	ReplyTo   uint64
	TS        int64
	Type      models.MessageType
	Payload   []byte
}

// EventKind tags the boundary push variants. The set is closed; the
// reconciler switches over it exhaustively.
type EventKind string

const (
	EvSendAcked        EventKind = "send_acked"
	EvDeliveryAcked    EventKind = "delivery_acked"
	EvRemoteMessage    EventKind = "remote_message"
	EvRemoteDeletion   EventKind = "remote_deletion"
	EvConnectionStatus EventKind = "connection_status"
)

// Event is one asynchronous push from the network boundary. Only the fields
// relevant to the Kind are set.
type Event struct {
	Kind EventKind `json:"kind"`
	Chat string    `json:"chat"`
	GUID uint64    `json:"guid,omitempty"`

	// EvSendAcked
	ServerID int64 `json:"server_id,omitempty"`

	// EvDeliveryAcked
	Delivered bool `json:"delivered,omitempty"`

	// EvRemoteMessage
	Author    []byte             `json:"author,omitempty"`
	Signature []byte             `json:"signature,omitempty"`
	Type      models.MessageType `json:"type,omitempty"`
	ReplyTo   uint64             `json:"reply_to,omitempty"`
	TS        int64              `json:"ts,omitempty"`
	Payload   []byte             `json:"payload,omitempty"`

	// EvConnectionStatus
	Conn models.ConnState `json:"conn,omitempty"`
}

// Sink accepts boundary events for reconciliation. The boundary must not be
// blocked by the consumer; Enqueue hands off and returns.
type Sink interface {
	Enqueue(ev Event) error
}
