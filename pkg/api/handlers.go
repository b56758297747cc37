package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"peerchat/pkg/badge"
	"peerchat/pkg/ledger"
	"peerchat/pkg/models"
	"peerchat/pkg/utils"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if !ledger.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "ledger not open")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "service": "peerchat"})
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	chats, err := ledger.ListChats()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var msgs int64
	for _, c := range chats {
		n, err := countMessages(c)
		if err != nil {
			continue
		}
		msgs += n
	}
	out := struct {
		Chats    int   `json:"chats"`
		Messages int64 `json:"messages"`
	}{Chats: len(chats), Messages: msgs}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func countMessages(chatID string) (int64, error) {
	var total int64
	marker := int64(0)
	for {
		page, err := ledger.ListSince(chatID, marker, 512)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		total += int64(len(page))
		marker = page[len(page)-1].LocalID
	}
}

type chatSummary struct {
	ID          string `json:"id"`
	LastLocalID int64  `json:"last_local_id"`
	ReadMarker  int64  `json:"read_marker"`
	Unread      int    `json:"unread"`
	Connection  string `json:"connection"`
}

func handleListChats(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := ledger.ListChats()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]chatSummary, 0, len(chats))
		for _, c := range chats {
			s := chatSummary{ID: c}
			s.LastLocalID, _ = ledger.LastLocalID(c)
			s.ReadMarker, _ = ledger.ReadMarker(c)
			s.Unread, _ = badge.UnreadCount(c)
			if d.Tracker != nil {
				s.Connection = d.Tracker.State(c).String()
			}
			out = append(out, s)
		}
		_ = utils.JSONWrite(w, http.StatusOK, out)
	}
}

func handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	marker := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		m, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid since")
			return
		}
		marker = m
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := ledger.ListSince(chatID, marker, limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msgs)
}

type composeBody struct {
	Text       string             `json:"text"`
	ReplyTo    uint64             `json:"reply_to,omitempty"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
}

func handleCompose(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Composer == nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "composer not available")
			return
		}
		var body composeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		localID, err := d.Composer.ComposeAndSend(r.Context(), mux.Vars(r)["id"], body.Text, body.Attachment, body.ReplyTo)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusCreated, map[string]int64{"local_id": localID})
	}
}

func handleResend(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Composer == nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "composer not available")
			return
		}
		vars := mux.Vars(r)
		localID, err := strconv.ParseInt(vars["local"], 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid local id")
			return
		}
		if err := d.Composer.Resend(r.Context(), vars["id"], localID); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "resent"})
	}
}

func handleDelete(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Composer == nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "composer not available")
			return
		}
		vars := mux.Vars(r)
		guid, err := strconv.ParseUint(vars["guid"], 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid guid")
			return
		}
		if err := d.Composer.Delete(r.Context(), vars["id"], guid); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleReactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	guid, err := strconv.ParseUint(vars["guid"], 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid guid")
		return
	}
	reactions, err := ledger.EffectiveReactions(vars["id"], guid)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, reactions)
}

func handleUnread(w http.ResponseWriter, r *http.Request) {
	n, err := badge.UnreadCount(mux.Vars(r)["id"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"unread": n})
}

func handleMarkRead(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var body struct {
		UpTo int64 `json:"up_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.UpTo == 0 {
		body.UpTo, _ = ledger.LastLocalID(chatID)
	}
	if err := badge.MarkRead(chatID, body.UpTo); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int64{"read_marker": body.UpTo})
}
