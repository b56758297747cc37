package compose

import (
	"context"
	"testing"
	"time"

	"peerchat/pkg/boundary"
	"peerchat/pkg/events"
	"peerchat/pkg/ledger"
	"peerchat/pkg/models"
)

type captureDispatcher struct {
	sends   chan boundary.SendRequest
	deletes chan uint64
	leaves  chan string
}

func newCapture() *captureDispatcher {
	return &captureDispatcher{
		sends:   make(chan boundary.SendRequest, 8),
		deletes: make(chan uint64, 8),
		leaves:  make(chan string, 8),
	}
}

func (c *captureDispatcher) DispatchSend(ctx context.Context, req boundary.SendRequest) error {
	c.sends <- req
	return nil
}
func (c *captureDispatcher) DispatchLeave(ctx context.Context, chatID string) error {
	c.leaves <- chatID
	return nil
}
func (c *captureDispatcher) DispatchDelete(ctx context.Context, chatID string, guid uint64) error {
	c.deletes <- guid
	return nil
}
func (c *captureDispatcher) DispatchInvite(ctx context.Context, chatID string, key []byte) error {
	return nil
}

type fakeAttachments map[string]bool

func (f fakeAttachments) Exists(id string) bool { return f[id] }

func openTestLedger(t *testing.T) {
	t.Helper()
	if err := ledger.Open(t.TempDir()); err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
}

func waitSend(t *testing.T, d *captureDispatcher) boundary.SendRequest {
	t.Helper()
	select {
	case req := <-d.sends:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatch never reached the boundary")
		return boundary.SendRequest{}
	}
}

func TestComposeRejectsEmptyMessage(t *testing.T) {
	openTestLedger(t)
	c := New(newCapture(), events.NewBus(), []byte("self"), nil)
	if _, err := c.ComposeAndSend(context.Background(), "d:aa", "", nil, 0); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestComposeRejectsMissingAttachment(t *testing.T) {
	openTestLedger(t)
	c := New(newCapture(), events.NewBus(), []byte("self"), fakeAttachments{})
	att := &models.Attachment{ID: "gone", Kind: models.TypeImage}
	if _, err := c.ComposeAndSend(context.Background(), "d:aa", "", att, 0); err != ErrAttachmentMissing {
		t.Fatalf("expected ErrAttachmentMissing, got %v", err)
	}
	// nothing persisted
	msgs, err := ledger.ListSince("d:aa", 0, 0)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("failed compose left %d rows, err %v", len(msgs), err)
	}
}

func TestComposePersistsPendingAndDispatches(t *testing.T) {
	openTestLedger(t)
	d := newCapture()
	bus := events.NewBus()
	sub := bus.Subscribe(8)
	defer sub.Cancel()
	c := New(d, bus, []byte("self"), nil)

	localID, err := c.ComposeAndSend(context.Background(), "d:aa", "hello", nil, 0)
	if err != nil {
		t.Fatalf("ComposeAndSend: %v", err)
	}
	if localID == 0 {
		t.Fatalf("no local id assigned")
	}

	m, err := ledger.FindByLocalID("d:aa", localID)
	if err != nil || m == nil {
		t.Fatalf("row not persisted: %v", err)
	}
	if m.State != models.StatePending {
		t.Fatalf("state = %v, want pending", m.State)
	}
	if m.Incoming {
		t.Fatalf("own message marked incoming")
	}

	req := waitSend(t, d)
	if req.GUID != m.GUID || req.Chat != "d:aa" || string(req.Payload) != "hello" {
		t.Fatalf("dispatch request mismatch: %+v", req)
	}
	if req.RequestID == "" {
		t.Fatalf("missing request id")
	}

	select {
	case ev := <-sub.C:
		if ev.Kind != events.MessageInserted || ev.LocalID != localID {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no inserted event published")
	}
}

func TestComposeAttachmentMessage(t *testing.T) {
	openTestLedger(t)
	d := newCapture()
	c := New(d, events.NewBus(), []byte("self"), fakeAttachments{"att-1": true})

	att := &models.Attachment{ID: "att-1", Name: "pic.jpg", Size: 9, Kind: models.TypeImage}
	localID, err := c.ComposeAndSend(context.Background(), "d:aa", "caption", att, 0)
	if err != nil {
		t.Fatalf("ComposeAndSend: %v", err)
	}
	m, err := ledger.FindByLocalID("d:aa", localID)
	if err != nil || m == nil {
		t.Fatalf("row not persisted: %v", err)
	}
	if m.Type != models.TypeImage {
		t.Fatalf("type = %v, want image", m.Type)
	}
	desc, err := models.DecodeAttachment(m.Data)
	if err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if desc.ID != "att-1" || desc.Text != "caption" {
		t.Fatalf("descriptor mismatch: %+v", desc)
	}
	waitSend(t, d)
}

func TestResendReusesGUID(t *testing.T) {
	openTestLedger(t)
	d := newCapture()
	c := New(d, events.NewBus(), []byte("self"), nil)

	localID, err := c.ComposeAndSend(context.Background(), "d:aa", "hello", nil, 0)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	first := waitSend(t, d)

	if _, err := ledger.SetDeliveryState("d:aa", first.GUID, models.StateFailed); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := c.Resend(context.Background(), "d:aa", localID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := waitSend(t, d)
	if second.GUID != first.GUID {
		t.Fatalf("resend changed guid: %d != %d", second.GUID, first.GUID)
	}
	if second.RequestID == first.RequestID {
		t.Fatalf("resend reused request id")
	}
	m, _ := ledger.FindByLocalID("d:aa", localID)
	if m.State != models.StatePending {
		t.Fatalf("state after resend = %v, want pending", m.State)
	}
}

func TestResendUnknownMessage(t *testing.T) {
	openTestLedger(t)
	c := New(newCapture(), events.NewBus(), []byte("self"), nil)
	if err := c.Resend(context.Background(), "d:aa", 404); err != ErrUnknownMessage {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDeleteTombstonesAndNotifiesBoundary(t *testing.T) {
	openTestLedger(t)
	d := newCapture()
	c := New(d, events.NewBus(), []byte("self"), nil)

	localID, err := c.ComposeAndSend(context.Background(), "d:aa", "hello", nil, 0)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	req := waitSend(t, d)

	if err := c.Delete(context.Background(), "d:aa", req.GUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case guid := <-d.deletes:
		if guid != req.GUID {
			t.Fatalf("boundary delete guid = %d, want %d", guid, req.GUID)
		}
	case <-time.After(time.Second):
		t.Fatalf("boundary never asked to delete")
	}
	m, err := ledger.FindByLocalID("d:aa", localID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m != nil {
		t.Fatalf("row survived delete")
	}
}
