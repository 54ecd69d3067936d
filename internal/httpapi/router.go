// Package httpapi serves the ingest command's observability endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesslog/internal/ingest"
	"github.com/freeeve/chesslog/internal/metrics"
)

// StatusSource reports pipeline progress.
type StatusSource interface {
	Status() ingest.Status
}

// NewRouter returns a handler for /metrics, /healthz and /status.
func NewRouter(m *metrics.Metrics, src StatusSource, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not started"})
			return
		}
		writeJSON(w, http.StatusOK, src.Status())
	})
	return RequestID(AccessLog(log, mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
