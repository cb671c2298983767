package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/health"
)

// handleHealth classifies the current health snapshot and serves the
// full health payload. Unhealthy maps to 503 so load balancers and
// supervisors can react; degraded stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	snap := s.health.Snapshot()
	payload := health.BuildHealthPayload(snap, now)

	writeJSON(w, payload.Status.HTTPStatus(), payload)
}

// handleMetrics serves derived performance and reliability figures.
// Always 200: metrics are informational, not a probe.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	snap := s.health.Snapshot()

	writeJSON(w, http.StatusOK, health.BuildMetricsPayload(snap, now))
}

// maxJournalLimit caps the ?limit query parameter.
const maxJournalLimit = 500

// handleJournalRecent serves the newest journaled messages.
func (s *Server) handleJournalRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}

	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal read failed", "error", err)
		writeInternalError(w, "journal read failed")
		return
	}

	type recordResponse struct {
		ID           string `json:"id"`
		Topic        string `json:"topic"`
		Category     string `json:"category"`
		ChannelID    string `json:"channel_id"`
		Action       string `json:"action"`
		PayloadBytes int    `json:"payload_bytes"`
		ReceivedAt   string `json:"received_at"`
	}

	response := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, recordResponse{
			ID:           rec.ID,
			Topic:        rec.Topic,
			Category:     rec.Category,
			ChannelID:    rec.ChannelID,
			Action:       rec.Action,
			PayloadBytes: rec.PayloadBytes,
			ReceivedAt:   rec.ReceivedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": response,
		"count":   len(response),
	})
}

// handleJournalStats serves per-category journal counts.
func (s *Server) handleJournalStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.journal.CountByCategory(r.Context())
	if err != nil {
		s.logger.Error("journal stats failed", "error", err)
		writeInternalError(w, "journal read failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": counts,
	})
}
