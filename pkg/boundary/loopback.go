package boundary

import (
	"context"
	"sync/atomic"

	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

// Loopback is an in-process boundary used by tests and the demo binary. It
// acknowledges every dispatch immediately and can optionally replay the sent
// message back as a remote copy, which is how a mediator echoes a group
// message to its own sender.
type Loopback struct {
	sink     Sink
	selfKey  []byte
	serverID int64

	// Echo replays own sends as RemoteMessage pushes (self-echo).
	Echo bool
	// AckFirst controls whether the SendAcked precedes the echo; flipping
	// it exercises the echo-races-ack path.
	AckFirst bool
}

// NewLoopback builds a loopback boundary feeding the given sink.
func NewLoopback(sink Sink, selfKey []byte) *Loopback {
	return &Loopback{sink: sink, selfKey: selfKey, AckFirst: true}
}

func (l *Loopback) DispatchSend(ctx context.Context, req SendRequest) error {
	ack := Event{Kind: EvSendAcked, Chat: req.Chat, GUID: req.GUID}
	if models.IsGroupChat(req.Chat) {
		ack.ServerID = atomic.AddInt64(&l.serverID, 1)
	}
	echo := Event{
		Kind:    EvRemoteMessage,
		Chat:    req.Chat,
		GUID:    req.GUID,
		Author:  l.selfKey,
		Type:    req.Type,
		ReplyTo: req.ReplyTo,
		TS:      req.TS,
		Payload: req.Payload,
	}
	if l.AckFirst {
		if err := l.sink.Enqueue(ack); err != nil {
			return err
		}
		if l.Echo {
			if err := l.sink.Enqueue(echo); err != nil {
				return err
			}
		}
	} else {
		if l.Echo {
			if err := l.sink.Enqueue(echo); err != nil {
				return err
			}
		}
		if err := l.sink.Enqueue(ack); err != nil {
			return err
		}
	}
	return l.sink.Enqueue(Event{Kind: EvDeliveryAcked, Chat: req.Chat, GUID: req.GUID, Delivered: true})
}

func (l *Loopback) DispatchLeave(ctx context.Context, chatID string) error {
	logger.Debug("loopback_leave", "chat", chatID)
	return l.sink.Enqueue(Event{Kind: EvConnectionStatus, Chat: chatID, Conn: models.ConnDisconnected})
}

func (l *Loopback) DispatchDelete(ctx context.Context, chatID string, guid uint64) error {
	return l.sink.Enqueue(Event{Kind: EvRemoteDeletion, Chat: chatID, GUID: guid})
}

func (l *Loopback) DispatchInvite(ctx context.Context, chatID string, recipientKey []byte) error {
	logger.Debug("loopback_invite", "chat", chatID)
	return nil
}
