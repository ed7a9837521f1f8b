package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// TokenUser identifies the user a token was issued for.
type TokenUser struct {
	CommunicationUserID string `json:"communicationUserId"`
}

// TokenResponse is returned by POST /token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expiresOn"`
	User      TokenUser `json:"user"`
}

// ReusableTokenRequest is the optional body of POST /api/azure/token.
type ReusableTokenRequest struct {
	UserID string `json:"userId"`
}

// ReusableTokenResponse is returned by POST /api/azure/token.
type ReusableTokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresOn time.Time `json:"expiresOn"`
	Reused    bool      `json:"reused"`
}

// UserIDResponse is returned by GET /my-user-id.
type UserIDResponse struct {
	CommunicationUserID string `json:"communicationUserId"`
	Message             string `json:"message"`
}

// Token issues a token for a brand new communication user.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	tok, err := h.rooms.IssueToken(r.Context(), "")
	if err != nil {
		h.roomError(w, err, "generate token")
		return
	}

	h.JSON(w, http.StatusOK, TokenResponse{
		Token:     tok.Token,
		ExpiresOn: tok.ExpiresOn,
		User:      TokenUser{CommunicationUserID: tok.UserID},
	})
}

// ReusableToken issues a token for the user named in the optional body,
// falling back to a new user. A missing or malformed body means a new user.
func (h *Handler) ReusableToken(w http.ResponseWriter, r *http.Request) {
	var req ReusableTokenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			req = ReusableTokenRequest{}
		}
	}

	tok, err := h.rooms.IssueToken(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		h.roomError(w, err, "generate token")
		return
	}

	h.JSON(w, http.StatusOK, ReusableTokenResponse{
		Token:     tok.Token,
		UserID:    tok.UserID,
		ExpiresOn: tok.ExpiresOn,
		Reused:    tok.Reused,
	})
}

// MyUserID creates a communication user id that can be shared with callers.
func (h *Handler) MyUserID(w http.ResponseWriter, r *http.Request) {
	id, err := h.rooms.NewUserID(r.Context())
	if err != nil {
		h.roomError(w, err, "create user ID")
		return
	}

	h.JSON(w, http.StatusOK, UserIDResponse{
		CommunicationUserID: id,
		Message:             "Share this user ID with others to receive calls",
	})
}
