package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/queue"
)

// NarrateRequest is the body of POST /v1/narrate.
type NarrateRequest struct {
	Text      string `json:"text"`
	Interrupt bool   `json:"interrupt,omitempty"`
	TTLMS     int    `json:"ttl_ms,omitempty"`
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// NarrateResponse is returned when a narration job is accepted.
type NarrateResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// SegmentsRequest is the body of POST /v1/segments.
type SegmentsRequest struct {
	Text string `json:"text"`
}

// SegmentsResponse lists attributed segments and the state they left behind.
type SegmentsResponse struct {
	Segments  []narrative.Segment `json:"segments"`
	Committed bool                `json:"committed"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the response body for /v1/healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// handleHealthz handles GET /v1/healthz requests.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// checkText validates narrative text against the configured limit.
func (s *Server) checkText(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "text is required", false
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxTextLength {
		s.logger.Warn("text exceeds max length", "length", n, "max", s.cfg.MaxTextLength)
		return "text exceeds maximum length", false
	}
	return "", true
}

// handleNarrate handles POST /v1/narrate requests.
func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	var req NarrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("failed to decode narrate request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg, ok := s.checkText(req.Text); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.TTLMS < 0 {
		writeError(w, http.StatusBadRequest, "ttl_ms must be non-negative")
		return
	}

	ttl := s.cfg.DefaultTTL
	if req.TTLMS > 0 {
		ttl = time.Duration(req.TTLMS) * time.Millisecond
	}

	job := queue.NewNarrationJob(req.Text, req.Interrupt, ttl, req.DedupeKey)
	if s.queue != nil {
		if err := s.queue.Enqueue(job); err != nil {
			s.metrics.RecordEnqueue(r.Context(), "rejected")
			switch {
			case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
				writeError(w, http.StatusServiceUnavailable, err.Error())
			case errors.Is(err, queue.ErrDuplicateJob):
				writeError(w, http.StatusConflict, "duplicate job")
			default:
				s.logger.Error("failed to enqueue job", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to enqueue job")
			}
			return
		}
	}
	s.metrics.RecordEnqueue(r.Context(), "accepted")

	s.logger.Info("narration enqueued",
		"job_id", job.ID,
		"text_length", len(req.Text),
		"interrupt", req.Interrupt,
		"ttl", ttl,
		"dedupe_key", req.DedupeKey,
	)
	writeJSON(w, http.StatusAccepted, NarrateResponse{JobID: job.ID, Message: "job enqueued"})
}

// handleSegments handles POST /v1/segments, a dry run that attributes text
// without speaking it. ?commit=true applies the attribution to the session.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	var req SegmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg, ok := s.checkText(req.Text); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	commit := r.URL.Query().Get("commit") == "true"
	segs := s.narrator.Preview(r.Context(), req.Text, commit)
	writeJSON(w, http.StatusOK, SegmentsResponse{Segments: segs, Committed: commit})
}

// handleGetAttribution handles GET /v1/attribution.
func (s *Server) handleGetAttribution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.narrator.State().Snapshot())
}

// handleResetAttribution handles DELETE /v1/attribution, ending the story session.
func (s *Server) handleResetAttribution(w http.ResponseWriter, r *http.Request) {
	s.narrator.State().Reset()
	s.logger.Info("attribution state reset")
	w.WriteHeader(http.StatusNoContent)
}
