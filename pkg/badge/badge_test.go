package badge

import (
	"testing"

	"peerchat/pkg/ledger"
	"peerchat/pkg/models"
)

func openTestLedger(t *testing.T) {
	t.Helper()
	if err := ledger.Open(t.TempDir()); err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
}

func insert(t *testing.T, m models.Message) int64 {
	t.Helper()
	id, inserted, err := ledger.InsertIfAbsent(m)
	if err != nil || !inserted {
		t.Fatalf("insert guid %d: inserted=%v err=%v", m.GUID, inserted, err)
	}
	return id
}

func TestUnreadCountsOnlyDeliveredIncoming(t *testing.T) {
	openTestLedger(t)
	// delivered incoming: counts
	insert(t, models.Message{GUID: 1, Chat: "d:aa", TS: 1, Type: models.TypeText, Data: []byte("a"), State: models.StateDelivered, Incoming: true})
	// own outbound: does not count
	insert(t, models.Message{GUID: 2, Chat: "d:aa", TS: 2, Type: models.TypeText, Data: []byte("b"), State: models.StateDelivered})
	// incoming but still pending elsewhere in the pipeline: does not count
	insert(t, models.Message{GUID: 3, Chat: "d:aa", TS: 3, Type: models.TypeText, Data: []byte("c"), State: models.StatePending, Incoming: true})
	// incoming reaction event: not a renderable row, does not count
	insert(t, models.Message{GUID: 4, Chat: "d:aa", TS: 4, Type: models.TypeReaction, Data: []byte(`{"emoji":"x"}`), ReplyTo: 1, State: models.StateDelivered, Incoming: true})

	n, err := UnreadCount("d:aa")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("unread = %d, want 1", n)
	}
}

func TestStateUpgradeDoesNotDoubleCount(t *testing.T) {
	openTestLedger(t)
	insert(t, models.Message{GUID: 1, Chat: "d:aa", TS: 1, Type: models.TypeText, Data: []byte("a"), State: models.StatePending, Incoming: true})
	if _, err := ledger.SetDeliveryState("d:aa", 1, models.StateDelivered); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	n, err := UnreadCount("d:aa")
	if err != nil || n != 1 {
		t.Fatalf("unread after upgrade = %d, %v; want 1", n, err)
	}
}

func TestMarkReadClearsBadge(t *testing.T) {
	openTestLedger(t)
	id1 := insert(t, models.Message{GUID: 1, Chat: "d:aa", TS: 1, Type: models.TypeText, Data: []byte("a"), State: models.StateDelivered, Incoming: true})
	id2 := insert(t, models.Message{GUID: 2, Chat: "d:aa", TS: 2, Type: models.TypeText, Data: []byte("b"), State: models.StateDelivered, Incoming: true})

	if err := MarkRead("d:aa", id1); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	n, err := UnreadCount("d:aa")
	if err != nil || n != 1 {
		t.Fatalf("unread after partial read = %d, %v; want 1", n, err)
	}
	if err := MarkRead("d:aa", id2); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	n, err = UnreadCount("d:aa")
	if err != nil || n != 0 {
		t.Fatalf("unread after full read = %d, %v; want 0", n, err)
	}
	// stale marker cannot resurrect the badge
	if err := MarkRead("d:aa", id1); err != nil {
		t.Fatalf("stale MarkRead: %v", err)
	}
	n, _ = UnreadCount("d:aa")
	if n != 0 {
		t.Fatalf("stale marker changed badge to %d", n)
	}
}

func TestEmptyChatHasNoBadge(t *testing.T) {
	openTestLedger(t)
	n, err := UnreadCount("d:empty")
	if err != nil || n != 0 {
		t.Fatalf("unread = %d, %v; want 0", n, err)
	}
}
