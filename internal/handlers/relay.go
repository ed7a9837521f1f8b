package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hearme/signbridge/internal/models"
	"github.com/hearme/signbridge/internal/relay"
)

// RelayPostRequest is the body of a transcription or gesture post. Pointer
// fields distinguish a missing field from a zero value.
type RelayPostRequest struct {
	Type            *string `json:"type,omitempty"` // transcription only: "partial" or "final"
	Text            *string `json:"text"`
	Timestamp       *int64  `json:"timestamp"`
	ParticipantType *string `json:"participantType"`
	ParticipantName *string `json:"participantName"`
}

// RelayPostResponse acknowledges a stored message.
type RelayPostResponse struct {
	Status    string `json:"status"`
	MessageID int64  `json:"messageId"`
}

// RelayMessage is a stored message as returned to pollers.
type RelayMessage struct {
	ID              int64  `json:"id"`
	Type            string `json:"type,omitempty"`
	Text            string `json:"text"`
	Timestamp       int64  `json:"timestamp"`
	ParticipantType string `json:"participantType"`
	ParticipantName string `json:"participantName"`
}

// relayKind tells the shared relay handlers which payload shape to expect.
type relayKind int

const (
	relayTranscription relayKind = iota
	relayGesture
)

// PostTranscription handles POST /transcription/{room_id}.
func (h *Handler) PostTranscription(w http.ResponseWriter, r *http.Request) {
	h.postRelay(w, r, h.transcripts, relayTranscription)
}

// ListTranscriptions handles GET /transcription/{room_id}?since=<id>.
func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	h.listRelay(w, r, h.transcripts, relayTranscription)
}

// PostGesture handles POST /gesture/{room_id}.
func (h *Handler) PostGesture(w http.ResponseWriter, r *http.Request) {
	h.postRelay(w, r, h.gestures, relayGesture)
}

// ListGestures handles GET /gesture/{room_id}?since=<id>.
func (h *Handler) ListGestures(w http.ResponseWriter, r *http.Request) {
	h.listRelay(w, r, h.gestures, relayGesture)
}

// decodeRelayMessage validates a post body and builds the message to store.
// The returned string is a client-facing error.
func decodeRelayMessage(req RelayPostRequest, kind relayKind) (models.Message, string) {
	var msg models.Message

	switch kind {
	case relayTranscription:
		if req.Type == nil {
			return msg, "type is required"
		}
		k, ok := models.TranscriptKind(*req.Type)
		if !ok {
			return msg, "type must be 'partial' or 'final'"
		}
		msg.Kind = k
	case relayGesture:
		msg.Kind = models.KindGesture
	}

	switch {
	case req.Text == nil:
		return msg, "text is required"
	case req.Timestamp == nil:
		return msg, "timestamp is required"
	case req.ParticipantType == nil:
		return msg, "participantType is required"
	case req.ParticipantName == nil:
		return msg, "participantName is required"
	}

	role := models.Role(*req.ParticipantType)
	if !role.Valid() {
		return msg, "participantType must be 'hearing' or 'deaf'"
	}

	msg.Text = *req.Text
	msg.Timestamp = *req.Timestamp
	msg.ParticipantType = role
	msg.ParticipantName = *req.ParticipantName
	return msg, ""
}

func (h *Handler) postRelay(w http.ResponseWriter, r *http.Request, q relay.Queue, kind relayKind) {
	roomID := chi.URLParam(r, "room_id")
	if !validRoomID(roomID) {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	var req RelayPostRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	msg, problem := decodeRelayMessage(req, kind)
	if problem != "" {
		h.Error(w, http.StatusBadRequest, problem)
		return
	}

	id, err := q.Post(r.Context(), roomID, msg)
	if err != nil {
		if errors.Is(err, relay.ErrEmptyRoom) {
			h.Error(w, http.StatusBadRequest, "invalid room ID")
			return
		}
		h.logger.Error().Err(err).Str("relay", q.Name()).Str("room_id", roomID).Msg("relay post failed")
		h.Error(w, http.StatusServiceUnavailable, "failed to store message")
		return
	}

	h.JSON(w, http.StatusOK, RelayPostResponse{Status: "ok", MessageID: id})
}

func (h *Handler) listRelay(w http.ResponseWriter, r *http.Request, q relay.Queue, kind relayKind) {
	roomID := chi.URLParam(r, "room_id")
	if !validRoomID(roomID) {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "since must be an integer")
			return
		}
		since = v
	}

	messages, err := q.ListSince(r.Context(), roomID, since)
	if err != nil {
		h.logger.Error().Err(err).Str("relay", q.Name()).Str("room_id", roomID).Msg("relay read failed")
		h.Error(w, http.StatusServiceUnavailable, "failed to fetch messages")
		return
	}

	out := make([]RelayMessage, 0, len(messages))
	for _, m := range messages {
		rm := RelayMessage{
			ID:              m.ID,
			Text:            m.Text,
			Timestamp:       m.Timestamp,
			ParticipantType: string(m.ParticipantType),
			ParticipantName: m.ParticipantName,
		}
		if kind == relayTranscription {
			rm.Type = m.Kind.Wire()
		}
		out = append(out, rm)
	}

	h.JSON(w, http.StatusOK, out)
}
