// Package telemetry provides low-overhead request telemetry for the local
// inspection server. Only slow requests are logged by default; full request
// records are appended to a jsonl file under the state dir when one exists.
package telemetry

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"peerchat/pkg/logger"
	"peerchat/pkg/state"
)

var (
	writerOnce    sync.Once
	writerCh      chan []byte
	slowThreshold = 200 * time.Millisecond
)

type record struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Duration int64  `json:"duration_ms"`
	Time     string `json:"time"`
}

// initWriter lazily starts a background writer appending JSON lines to
// state/telemetry/telemetry.jsonl. Best effort; telemetry never fails a
// request.
func initWriter() {
	writerCh = make(chan []byte, 1024)
	go func() {
		dir := filepath.Join("state", "telemetry")
		if state.PathsVar.State != "" {
			dir = filepath.Join(state.PathsVar.State, "telemetry")
		}
		_ = os.MkdirAll(dir, 0o700)
		f, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return
		}
		defer f.Close()
		for b := range writerCh {
			_, _ = f.Write(append(b, '\n'))
		}
	}()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware wraps h with request timing. Requests slower than the slow
// threshold are logged; every request is appended to the telemetry file.
func Middleware(h http.Handler) http.Handler {
	writerOnce.Do(initWriter)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		dur := time.Since(start)

		if dur >= slowThreshold {
			logger.Warn("slow_request",
				"method", r.Method, "path", r.URL.Path,
				"status", sw.status, "duration_ms", dur.Milliseconds())
		}

		rec := record{
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   sw.status,
			Duration: dur.Milliseconds(),
			Time:     start.UTC().Format(time.RFC3339),
		}
		if b, err := json.Marshal(rec); err == nil {
			select {
			case writerCh <- b:
			default:
			}
		}
	})
}
