// Package reporting serves the read-only call history API.
package reporting

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/galkyn/video-calling-app/internal/calltrack"
	"github.com/galkyn/video-calling-app/internal/metrics"
	"github.com/galkyn/video-calling-app/internal/origin"
)

type Server struct {
	sink           calltrack.Sink
	limit          int
	allowedOrigins []string
	log            *slog.Logger
	metrics        *metrics.Metrics
}

func NewServer(sink calltrack.Sink, limit int, allowedOrigins []string, log *slog.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{sink: sink, limit: limit, allowedOrigins: allowedOrigins, log: log, metrics: m}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /calls", s.withOriginPolicy(s.handleCalls))
}

// withOriginPolicy rejects browser requests from origins outside the
// allowlist. Requests without an Origin header pass; they are not
// subject to cross-site rules.
func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Origin"); header != "" {
			normalized, ok := origin.Normalize(header)
			if !ok || !origin.Allowed(normalized, s.allowedOrigins) {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error": "origin not allowed",
				})
				return
			}
		}
		next(w, r)
	}
}

// handleCalls returns the most recent completed calls, newest first.
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	records, err := s.sink.Recent(r.Context(), s.limit)
	if err != nil {
		s.metrics.Inc(metrics.SinkUnavailable)
		s.log.Error("call history read failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Internal server error",
		})
		return
	}
	if records == nil {
		records = []calltrack.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
