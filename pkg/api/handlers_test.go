package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"peerchat/pkg/boundary"
	"peerchat/pkg/compose"
	"peerchat/pkg/connstate"
	"peerchat/pkg/events"
	"peerchat/pkg/ledger"
	"peerchat/pkg/models"
)

type nullDispatcher struct{}

func (nullDispatcher) DispatchSend(ctx context.Context, req boundary.SendRequest) error { return nil }
func (nullDispatcher) DispatchLeave(ctx context.Context, chatID string) error           { return nil }
func (nullDispatcher) DispatchDelete(ctx context.Context, chatID string, guid uint64) error {
	return nil
}
func (nullDispatcher) DispatchInvite(ctx context.Context, chatID string, key []byte) error {
	return nil
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := ledger.Open(t.TempDir()); err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	bus := events.NewBus()
	comp := compose.New(nullDispatcher{}, bus, []byte("self"), nil)
	srv := httptest.NewServer(NewRouter(Deps{Composer: comp, Tracker: connstate.New(bus)}))
	t.Cleanup(srv.Close)
	return srv
}

func seedMessage(t *testing.T, chat string, guid uint64, incoming bool) {
	t.Helper()
	_, inserted, err := ledger.InsertIfAbsent(models.Message{
		GUID: guid, Chat: chat, TS: int64(guid), Type: models.TypeText,
		Data: []byte("hi"), State: models.StateDelivered, Incoming: incoming,
	})
	if err != nil || !inserted {
		t.Fatalf("seed guid %d: inserted=%v err=%v", guid, inserted, err)
	}
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)
	res, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("expected 200 got %v", res.Status)
	}
	var out map[string]string
	_ = json.NewDecoder(res.Body).Decode(&out)
	if out["status"] != "ok" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestListChatsAndMessages(t *testing.T) {
	srv := setupServer(t)
	seedMessage(t, "d:aa", 1, true)
	seedMessage(t, "d:aa", 2, true)
	seedMessage(t, "g:1", 3, false)

	res, err := http.Get(srv.URL + "/chats")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var chats []struct {
		ID     string `json:"id"`
		Unread int    `json:"unread"`
	}
	if err := json.NewDecoder(res.Body).Decode(&chats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %+v", chats)
	}

	res, err = http.Get(srv.URL + "/chats/d:aa/messages?limit=10")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var msgs []models.Message
	if err := json.NewDecoder(res.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestListMessagesRejectsBadParams(t *testing.T) {
	srv := setupServer(t)
	res, _ := http.Get(srv.URL + "/chats/d:aa/messages?limit=bogus")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %v", res.Status)
	}
	res, _ = http.Get(srv.URL + "/chats/d:aa/messages?since=bogus")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %v", res.Status)
	}
}

func TestComposeEndpoint(t *testing.T) {
	srv := setupServer(t)
	res, err := http.Post(srv.URL+"/chats/d:aa/messages", "application/json",
		strings.NewReader(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 got %v", res.Status)
	}
	var out map[string]int64
	_ = json.NewDecoder(res.Body).Decode(&out)
	if out["local_id"] == 0 {
		t.Fatalf("missing local_id: %v", out)
	}

	// empty message is rejected and persists nothing
	res, _ = http.Post(srv.URL+"/chats/d:aa/messages", "application/json", strings.NewReader(`{}`))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %v", res.Status)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	srv := setupServer(t)
	seedMessage(t, "d:aa", 1, true)
	seedMessage(t, "d:aa", 2, true)

	res, _ := http.Get(srv.URL + "/chats/d:aa/unread")
	var out map[string]int
	_ = json.NewDecoder(res.Body).Decode(&out)
	if out["unread"] != 2 {
		t.Fatalf("unread = %d, want 2", out["unread"])
	}

	res, err := http.Post(srv.URL+"/chats/d:aa/read", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("mark read status: %v", res.Status)
	}
	res, _ = http.Get(srv.URL + "/chats/d:aa/unread")
	_ = json.NewDecoder(res.Body).Decode(&out)
	if out["unread"] != 0 {
		t.Fatalf("unread after read = %d, want 0", out["unread"])
	}
}

func TestDeleteEndpoint(t *testing.T) {
	srv := setupServer(t)
	seedMessage(t, "d:aa", 9, true)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/chats/d:aa/messages/9", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("delete status: %v", res.Status)
	}
	if m, _ := ledger.FindByGUID("d:aa", 9); m != nil {
		t.Fatalf("row survived delete")
	}
}

func TestStats(t *testing.T) {
	srv := setupServer(t)
	seedMessage(t, "d:aa", 1, true)
	seedMessage(t, "g:1", 2, false)

	res, _ := http.Get(srv.URL + "/stats")
	var out struct {
		Chats    int   `json:"chats"`
		Messages int64 `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Chats != 2 || out.Messages != 2 {
		t.Fatalf("stats = %+v", out)
	}
}
