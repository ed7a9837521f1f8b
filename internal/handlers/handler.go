package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/predict"
	"github.com/hearme/signbridge/internal/relay"
	"github.com/hearme/signbridge/internal/rooms"
)

// Deps are the services the handlers call.
type Deps struct {
	Transcripts relay.Queue
	Gestures    relay.Queue
	Predictor   *predict.Service
	Rooms       *rooms.Service
	Redis       *redis.Client // optional, only used for health checks
	Logger      zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	transcripts relay.Queue
	gestures    relay.Queue
	predictor   *predict.Service
	rooms       *rooms.Service
	redis       *redis.Client
	logger      zerolog.Logger
	startedAt   time.Time
}

// NewHandler creates a new Handler with the given services.
func NewHandler(d Deps) *Handler {
	return &Handler{
		transcripts: d.Transcripts,
		gestures:    d.Gestures,
		predictor:   d.Predictor,
		rooms:       d.Rooms,
		redis:       d.Redis,
		logger:      d.Logger,
		startedAt:   time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into v. Bodies over the size limit get
// 413, anything else unreadable gets 400.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

// validRoomID accepts 1-128 printable characters.
func validRoomID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
