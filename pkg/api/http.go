// Package api serves the local inspection endpoint. It is a debug and
// tooling surface bound to localhost, not a public API: handlers read the
// ledger directly and never mutate it except through the composer.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peerchat/pkg/compose"
	"peerchat/pkg/connstate"
	"peerchat/pkg/logger"
)

// Deps holds the live components handlers need beyond the ledger.
type Deps struct {
	Composer *compose.Composer
	Tracker  *connstate.Tracker
}

// NewRouter builds the inspection router. All routes are read-only except
// the compose, resend, delete and read-marker operations, which go through
// the same code paths the UI would use.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/chats", handleListChats(d)).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", handleCompose(d)).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/messages/{local}/resend", handleResend(d)).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/messages/{guid}", handleDelete(d)).Methods(http.MethodDelete)
	r.HandleFunc("/chats/{id}/messages/{guid}/reactions", handleReactions).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/unread", handleUnread).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/read", handleMarkRead).Methods(http.MethodPost)

	logger.Info("inspection_routes_registered")
	return r
}
