// Package compose turns user send actions into durable Pending ledger rows
// plus dispatch requests toward the network boundary. Composition never
// waits for the network; the local write is the only blocking step and the
// assigned local id is returned synchronously for immediate rendering.
package compose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"peerchat/pkg/boundary"
	"peerchat/pkg/events"
	"peerchat/pkg/identity"
	"peerchat/pkg/ledger"
	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

var (
	// ErrEmptyMessage is returned when there is neither text nor a staged
	// attachment; nothing is persisted.
	ErrEmptyMessage = errors.New("empty message")
	// ErrAttachmentMissing is returned when the staged attachment is not
	// present on durable storage; nothing is persisted.
	ErrAttachmentMissing = errors.New("attachment missing")
	// ErrUnknownMessage is returned by Resend for a local id with no row.
	ErrUnknownMessage = errors.New("unknown message")
)

// AttachmentStore is the attachment collaborator; it owns the staged file
// bytes and answers existence checks at composition time.
type AttachmentStore interface {
	Exists(id string) bool
}

// Composer builds and dispatches outbound messages for the local account.
type Composer struct {
	disp        boundary.Dispatcher
	bus         *events.Bus
	selfKey     []byte
	attachments AttachmentStore
}

// New builds a Composer. attachments may be nil when the client never sends
// files; composing an attachment message then fails with
// ErrAttachmentMissing.
func New(disp boundary.Dispatcher, bus *events.Bus, selfKey []byte, attachments AttachmentStore) *Composer {
	return &Composer{disp: disp, bus: bus, selfKey: selfKey, attachments: attachments}
}

// ComposeAndSend validates the action, persists a Pending row and emits the
// dispatch request. It returns the assigned local id without waiting for any
// acknowledgement. Sending the byte-identical content within the same
// millisecond folds into the existing row (same guid, successful no-op).
func (c *Composer) ComposeAndSend(ctx context.Context, chatID, text string, att *models.Attachment, replyTo uint64) (int64, error) {
	if text == "" && att == nil {
		return 0, ErrEmptyMessage
	}

	typ := models.TypeText
	var payload []byte
	if att != nil {
		if c.attachments == nil || !c.attachments.Exists(att.ID) {
			return 0, ErrAttachmentMissing
		}
		desc := *att
		desc.Text = text
		b, err := models.EncodeAttachment(desc)
		if err != nil {
			return 0, fmt.Errorf("encode attachment descriptor: %w", err)
		}
		payload = b
		typ = att.Kind
		if typ != models.TypeImage && typ != models.TypeFile {
			typ = models.TypeFile
		}
	} else {
		payload = []byte(text)
	}

	ts := time.Now().UTC().UnixMilli()
	guid, err := identity.NewGUID(ts, payload)
	if err != nil {
		return 0, err
	}

	msg := models.Message{
		GUID:    guid,
		Chat:    chatID,
		Author:  c.selfKey,
		TS:      ts,
		Type:    typ,
		Data:    payload,
		ReplyTo: replyTo,
		State:   models.StatePending,
	}
	localID, inserted, err := ledger.InsertIfAbsent(msg)
	if err != nil {
		return 0, err
	}
	if !inserted {
		logger.Debug("compose_duplicate_guid", "chat", chatID, "guid", guid)
		return localID, nil
	}
	c.bus.Publish(events.Event{Kind: events.MessageInserted, Chat: chatID, GUID: guid, LocalID: localID, State: models.StatePending})

	c.dispatch(boundary.SendRequest{
		RequestID: uuid.NewString(),
		Chat:      chatID,
		GUID:      guid,
		ReplyTo:   replyTo,
		TS:        ts,
		Type:      typ,
		Payload:   payload,
	})
	return localID, nil
}

// Resend re-issues the dispatch for an existing message, reusing the
// original guid so the remote side treats it as the same logical message.
// The row re-enters Pending.
func (c *Composer) Resend(ctx context.Context, chatID string, localID int64) error {
	m, err := ledger.FindByLocalID(chatID, localID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrUnknownMessage
	}
	if changed, err := ledger.MarkPending(chatID, m.GUID); err != nil {
		return err
	} else if changed {
		c.bus.Publish(events.Event{Kind: events.MessageStateChanged, Chat: chatID, GUID: m.GUID, LocalID: m.LocalID, State: models.StatePending})
	}
	c.dispatch(boundary.SendRequest{
		RequestID: uuid.NewString(),
		Chat:      chatID,
		GUID:      m.GUID,
		ReplyTo:   m.ReplyTo,
		TS:        m.TS,
		Type:      m.Type,
		Payload:   m.Data,
	})
	return nil
}

// Delete removes the message locally and asks the boundary to delete the
// remote copy. The tombstone timestamp is now, so a late echo of the
// deleted message stays dead.
func (c *Composer) Delete(ctx context.Context, chatID string, guid uint64) error {
	removed, err := ledger.DeleteByGUID(chatID, guid, time.Now().UTC().UnixMilli())
	if err != nil {
		return err
	}
	if removed {
		c.bus.Publish(events.Event{Kind: events.MessageDeleted, Chat: chatID, GUID: guid})
	}
	if derr := c.disp.DispatchDelete(ctx, chatID, guid); derr != nil {
		logger.Warn("dispatch_delete_failed", "chat", chatID, "guid", guid, "error", derr)
	}
	return nil
}

// Leave asks the boundary to unsubscribe from a group chat.
func (c *Composer) Leave(ctx context.Context, chatID string) error {
	return c.disp.DispatchLeave(ctx, chatID)
}

// Invite asks the mediator to add a member to a group chat.
func (c *Composer) Invite(ctx context.Context, chatID string, recipientKey []byte) error {
	return c.disp.DispatchInvite(ctx, chatID, recipientKey)
}

// dispatch hands the request to the boundary without blocking the caller.
func (c *Composer) dispatch(req boundary.SendRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.disp.DispatchSend(ctx, req); err != nil {
			// the row stays Pending; the boundary owns retry policy
			logger.Warn("dispatch_send_failed", "chat", req.Chat, "guid", req.GUID, "error", err)
		}
	}()
}
