package ledger

import (
	"testing"

	"peerchat/pkg/models"
)

func openTestLedger(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Fatalf("ledger.Close: %v", err)
		}
	})
}

func testMsg(chat string, guid uint64, ts int64) models.Message {
	return models.Message{
		GUID:  guid,
		Chat:  chat,
		TS:    ts,
		Type:  models.TypeText,
		Data:  []byte("hello"),
		State: models.StatePending,
	}
}

func TestInsertAssignsSequentialLocalIDs(t *testing.T) {
	openTestLedger(t)
	for i := 1; i <= 3; i++ {
		id, inserted, err := InsertIfAbsent(testMsg("d:aa", uint64(i), int64(1000+i)))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if !inserted {
			t.Fatalf("insert %d: expected inserted", i)
		}
		if id != int64(i) {
			t.Fatalf("insert %d: expected local id %d got %d", i, i, id)
		}
	}
	last, err := LastLocalID("d:aa")
	if err != nil || last != 3 {
		t.Fatalf("LastLocalID = %d, %v; want 3", last, err)
	}
}

func TestInsertDuplicateGUIDIsNoOp(t *testing.T) {
	openTestLedger(t)
	id1, _, err := InsertIfAbsent(testMsg("d:aa", 7, 1000))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	id2, inserted, err := InsertIfAbsent(testMsg("d:aa", 7, 2000))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate guid must not insert")
	}
	if id2 != id1 {
		t.Fatalf("duplicate insert returned local id %d, want existing %d", id2, id1)
	}
	msgs, err := ListSince("d:aa", 0, 0)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(msgs))
	}
}

func TestSameGUIDAllowedInDifferentChats(t *testing.T) {
	openTestLedger(t)
	if _, inserted, err := InsertIfAbsent(testMsg("d:aa", 9, 1000)); err != nil || !inserted {
		t.Fatalf("chat A insert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := InsertIfAbsent(testMsg("d:bb", 9, 1000)); err != nil || !inserted {
		t.Fatalf("chat B insert: inserted=%v err=%v", inserted, err)
	}
}

func TestDeliveryStateOnlyMovesForward(t *testing.T) {
	openTestLedger(t)
	if _, _, err := InsertIfAbsent(testMsg("d:aa", 1, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	changed, err := SetDeliveryState("d:aa", 1, models.StateSent)
	if err != nil || !changed {
		t.Fatalf("pending->sent: changed=%v err=%v", changed, err)
	}
	// a late Failed must not undo Sent
	changed, err = SetDeliveryState("d:aa", 1, models.StateFailed)
	if err != nil {
		t.Fatalf("sent->failed: %v", err)
	}
	if changed {
		t.Fatalf("failed must not override sent")
	}
	changed, err = SetDeliveryState("d:aa", 1, models.StateDelivered)
	if err != nil || !changed {
		t.Fatalf("sent->delivered: changed=%v err=%v", changed, err)
	}
	// re-applying the same ack is a no-op
	changed, err = SetDeliveryState("d:aa", 1, models.StateDelivered)
	if err != nil {
		t.Fatalf("delivered->delivered: %v", err)
	}
	if changed {
		t.Fatalf("re-applying delivered must be a no-op")
	}
	m, err := FindByGUID("d:aa", 1)
	if err != nil || m == nil {
		t.Fatalf("FindByGUID: %v", err)
	}
	if m.State != models.StateDelivered {
		t.Fatalf("state = %v, want delivered", m.State)
	}
}

func TestMarkPendingIsTheOnlyBackwardPath(t *testing.T) {
	openTestLedger(t)
	if _, _, err := InsertIfAbsent(testMsg("d:aa", 1, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := SetDeliveryState("d:aa", 1, models.StateFailed); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	changed, err := MarkPending("d:aa", 1)
	if err != nil || !changed {
		t.Fatalf("MarkPending: changed=%v err=%v", changed, err)
	}
	m, _ := FindByGUID("d:aa", 1)
	if m.State != models.StatePending {
		t.Fatalf("state after resend = %v, want pending", m.State)
	}
}

func TestSetServerIDKeepsGUIDIdentity(t *testing.T) {
	openTestLedger(t)
	if _, _, err := InsertIfAbsent(testMsg("g:5", 1, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := SetServerID("g:5", 1, 42); err != nil {
		t.Fatalf("SetServerID: %v", err)
	}
	m, err := FindByGUID("g:5", 1)
	if err != nil || m == nil {
		t.Fatalf("FindByGUID after server id: %v", err)
	}
	if m.ServerID != 42 {
		t.Fatalf("server id = %d, want 42", m.ServerID)
	}
}

func TestDeleteWritesTombstoneAndSuppressesLateCopy(t *testing.T) {
	openTestLedger(t)
	if _, _, err := InsertIfAbsent(testMsg("d:aa", 1, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	removed, err := DeleteByGUID("d:aa", 1, 5000)
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	// a copy composed before the deletion stays dead
	id, inserted, err := InsertIfAbsent(testMsg("d:aa", 1, 4000))
	if err != nil {
		t.Fatalf("late copy insert: %v", err)
	}
	if inserted || id != 0 {
		t.Fatalf("late copy must be suppressed, got inserted=%v id=%d", inserted, id)
	}
	// a copy composed after the deletion is a new logical message
	_, inserted, err = InsertIfAbsent(testMsg("d:aa", 1, 6000))
	if err != nil || !inserted {
		t.Fatalf("newer copy: inserted=%v err=%v", inserted, err)
	}
}

func TestDeleteAbsentGUIDIsNoOp(t *testing.T) {
	openTestLedger(t)
	removed, err := DeleteByGUID("d:aa", 99, 1000)
	if err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if removed {
		t.Fatalf("deleting an absent guid must not report removal")
	}
}

func TestRacingTombstonesKeepLaterTimestamp(t *testing.T) {
	openTestLedger(t)
	if _, err := DeleteByGUID("d:aa", 1, 5000); err != nil {
		t.Fatalf("first tombstone: %v", err)
	}
	if _, err := DeleteByGUID("d:aa", 1, 3000); err != nil {
		t.Fatalf("second tombstone: %v", err)
	}
	// 4000 < 5000 so the insert must still be suppressed
	_, inserted, err := InsertIfAbsent(testMsg("d:aa", 1, 4000))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted {
		t.Fatalf("earlier racing tombstone must not lower the threshold")
	}
}

func TestListSinceIsRestartable(t *testing.T) {
	openTestLedger(t)
	for i := 1; i <= 5; i++ {
		if _, _, err := InsertIfAbsent(testMsg("d:aa", uint64(i), int64(i))); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	first, err := ListSince("d:aa", 0, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("first page: len=%d err=%v", len(first), err)
	}
	rest, err := ListSince("d:aa", first[len(first)-1].LocalID, 0)
	if err != nil || len(rest) != 3 {
		t.Fatalf("second page: len=%d err=%v", len(rest), err)
	}
	if rest[0].LocalID != 3 || rest[2].LocalID != 5 {
		t.Fatalf("pagination out of order: %+v", rest)
	}
}

func TestSequencerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	if err := Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := InsertIfAbsent(testMsg("d:aa", 1, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := Open(dir); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer Close()
	id, inserted, err := InsertIfAbsent(testMsg("d:aa", 2, 2000))
	if err != nil || !inserted {
		t.Fatalf("insert after reopen: inserted=%v err=%v", inserted, err)
	}
	if id != 2 {
		t.Fatalf("local id after reopen = %d, want 2", id)
	}
}

func TestReadMarkerOnlyMovesForward(t *testing.T) {
	openTestLedger(t)
	if err := SetReadMarker("d:aa", 10); err != nil {
		t.Fatalf("set marker: %v", err)
	}
	if err := SetReadMarker("d:aa", 5); err != nil {
		t.Fatalf("stale marker: %v", err)
	}
	n, err := ReadMarker("d:aa")
	if err != nil || n != 10 {
		t.Fatalf("ReadMarker = %d, %v; want 10", n, err)
	}
}

func TestListChats(t *testing.T) {
	openTestLedger(t)
	if _, _, err := InsertIfAbsent(testMsg("d:aa", 1, 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := InsertIfAbsent(testMsg("g:7", 1, 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chats, err := ListChats()
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %v", chats)
	}
}
