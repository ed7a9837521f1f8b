package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hearme/signbridge/internal/acs"
	"github.com/hearme/signbridge/internal/models"
	"github.com/hearme/signbridge/internal/rooms"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"` // optional presenter to reuse
}

// RoomResponse describes a call room.
type RoomResponse struct {
	RoomID       string               `json:"roomId"`
	AzureRoomID  string               `json:"azureRoomId"`
	GroupCallID  string               `json:"groupCallId"` // same as azureRoomId, kept for older clients
	Participants []models.Participant `json:"participants"`
	Exists       *bool                `json:"exists,omitempty"`
	Created      bool                 `json:"created,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// AddParticipantRequest represents the add participant request.
type AddParticipantRequest struct {
	CommunicationUserID string `json:"communicationUserId"`
}

// AddParticipantResponse represents the add participant response.
type AddParticipantResponse struct {
	RoomID      string             `json:"roomId"`
	AzureRoomID string             `json:"azureRoomId"`
	Participant models.Participant `json:"participant"`
	Message     string             `json:"message"`
}

// roomError maps room service errors to responses.
func (h *Handler) roomError(w http.ResponseWriter, err error, action string) {
	var provErr *acs.ResponseError
	switch {
	case errors.Is(err, rooms.ErrProviderUnavailable):
		h.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, rooms.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rooms.ErrRoomIDRequired), errors.Is(err, rooms.ErrUserIDRequired):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &provErr):
		h.logger.Error().Err(err).Msg(action + " failed")
		h.Error(w, http.StatusBadGateway, "failed to "+action+": "+provErr.Message)
	default:
		h.logger.Error().Err(err).Msg(action + " failed")
		h.Error(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func roomResponse(info *rooms.RoomInfo) RoomResponse {
	participants := info.Participants
	if participants == nil {
		participants = []models.Participant{}
	}
	exists := info.Exists
	return RoomResponse{
		RoomID:       info.Room.ID,
		AzureRoomID:  info.Room.ProviderRoomID,
		GroupCallID:  info.Room.ProviderRoomID,
		Participants: participants,
		Exists:       &exists,
		Created:      info.Created,
	}
}

// CreateRoom handles POST /room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.RoomID != "" && !validRoomID(req.RoomID) {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	info, err := h.rooms.CreateRoom(r.Context(), req.RoomID, strings.TrimSpace(req.UserID))
	if err != nil {
		h.roomError(w, err, "create room")
		return
	}

	resp := roomResponse(info)
	resp.Message = "room created successfully"
	h.JSON(w, http.StatusOK, resp)
}

// GetRoom handles GET /room/{room_id}. Unknown rooms are created.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	if !validRoomID(roomID) {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	info, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		h.roomError(w, err, "get room")
		return
	}

	h.JSON(w, http.StatusOK, roomResponse(info))
}

// AddParticipant handles POST /room/{room_id}/add-participant.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	if !validRoomID(roomID) {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	var req AddParticipantRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.rooms.AddParticipant(r.Context(), roomID, strings.TrimSpace(req.CommunicationUserID))
	if err != nil {
		h.roomError(w, err, "add participant")
		return
	}

	msg := "Participant added successfully"
	if res.AlreadyMember {
		msg = "Participant already in room"
	}
	h.JSON(w, http.StatusOK, AddParticipantResponse{
		RoomID:      res.Room.ID,
		AzureRoomID: res.Room.ProviderRoomID,
		Participant: models.Participant{CommunicationUserID: res.UserID},
		Message:     msg,
	})
}
