package handlers

import (
	"net/http"
	"time"

	"github.com/hearme/signbridge/internal/predict"
	"github.com/hearme/signbridge/internal/relay"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Transcriptions relay.Stats    `json:"transcriptions"`
	Gestures       relay.Stats    `json:"gestures"`
	Rooms          int64          `json:"rooms"`
	Models         predict.Status `json:"models"`
	Uptime         string         `json:"uptime"`
	StartedAt      string         `json:"started_at"`
}

// Stats returns relay, room and model statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transcripts, err := h.transcripts.Stats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("relay", h.transcripts.Name()).Msg("relay stats failed")
		h.Error(w, http.StatusInternalServerError, "failed to read transcription stats")
		return
	}

	gestures, err := h.gestures.Stats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("relay", h.gestures.Name()).Msg("relay stats failed")
		h.Error(w, http.StatusInternalServerError, "failed to read gesture stats")
		return
	}

	rooms, err := h.rooms.CountRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count rooms")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Transcriptions: transcripts,
		Gestures:       gestures,
		Rooms:          rooms,
		Models:         h.predictor.Status(),
		Uptime:         time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt:      h.startedAt.UTC().Format(time.RFC3339),
	})
}
