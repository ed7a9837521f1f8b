// Package rooms manages call identities and the provider rooms behind
// client-chosen room ids.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/acs"
	"github.com/hearme/signbridge/internal/models"
	"github.com/hearme/signbridge/internal/store"
)

// DefaultValidity is how long a provider room stays open.
const DefaultValidity = 24 * time.Hour

// Scopes granted to every issued token.
var Scopes = []string{"voip", "chat"}

var (
	ErrProviderUnavailable = errors.New("communication services not configured")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomIDRequired      = errors.New("roomId is required")
	ErrUserIDRequired      = errors.New("communicationUserId is required")
)

// Provider is the identity and rooms API. *acs.Client implements it.
type Provider interface {
	CreateUser(ctx context.Context) (string, error)
	IssueToken(ctx context.Context, userID string, scopes []string) (*acs.AccessToken, error)
	CreateRoom(ctx context.Context, validFrom, validUntil time.Time, userIDs []string) (*acs.Room, error)
	ListParticipants(ctx context.Context, roomID string) ([]acs.Participant, error)
	AddParticipants(ctx context.Context, roomID string, userIDs []string) error
}

// Token is an access token bound to a communication user.
type Token struct {
	Token     string
	ExpiresOn time.Time
	UserID    string
	Reused    bool // the requested user was kept
}

// RoomInfo describes a mapped room and its current members.
type RoomInfo struct {
	Room         models.Room
	Participants []models.Participant
	Exists       bool // the mapping was already known
	Created      bool // a provider room was created by this call
}

// AddResult is the outcome of adding a participant.
type AddResult struct {
	Room          models.Room
	UserID        string
	AlreadyMember bool
}

// Service implements the call-session operations.
type Service struct {
	provider Provider
	store    store.RoomStore
	validity time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	createMu sync.Mutex // serializes provider room creation
}

// NewService creates a room service. A nil provider makes every provider
// operation return ErrProviderUnavailable.
func NewService(provider Provider, rs store.RoomStore, validity time.Duration, logger zerolog.Logger) *Service {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Service{
		provider: provider,
		store:    rs,
		validity: validity,
		logger:   logger,
		now:      time.Now,
	}
}

// Configured reports whether a provider is available.
func (s *Service) Configured() bool {
	return s.provider != nil
}

// resolveUser keeps the requested user when the provider still knows it,
// otherwise it creates a new one.
func (s *Service) resolveUser(ctx context.Context, requested string) (userID string, tok *acs.AccessToken, err error) {
	if requested != "" {
		tok, err := s.provider.IssueToken(ctx, requested, Scopes)
		if err == nil {
			return requested, tok, nil
		}
		s.logger.Warn().Err(err).Str("user_id", requested).Msg("requested user not usable, creating a new one")
	}

	userID, err = s.provider.CreateUser(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("create user: %w", err)
	}
	return userID, nil, nil
}

// IssueToken returns a token for the requested user, or for a new user when
// none is requested or the requested one is unknown.
func (s *Service) IssueToken(ctx context.Context, requestedUserID string) (*Token, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	userID, tok, err := s.resolveUser(ctx, requestedUserID)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		if tok, err = s.provider.IssueToken(ctx, userID, Scopes); err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
	}

	return &Token{
		Token:     tok.Token,
		ExpiresOn: tok.ExpiresOn,
		UserID:    userID,
		Reused:    requestedUserID != "" && userID == requestedUserID,
	}, nil
}

// NewUserID creates a communication user that others can call.
func (s *Service) NewUserID(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", ErrProviderUnavailable
	}
	id, err := s.provider.CreateUser(ctx)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// createRoom opens a provider room with userID as presenter and stores the
// mapping.
func (s *Service) createRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	now := s.now().UTC()
	pr, err := s.provider.CreateRoom(ctx, now, now.Add(s.validity), []string{userID})
	if err != nil {
		return nil, fmt.Errorf("create provider room: %w", err)
	}

	room := &models.Room{
		ID:             roomID,
		ProviderRoomID: pr.ID,
		CreatedBy:      userID,
		CreatedAt:      now,
		ValidUntil:     now.Add(s.validity),
	}
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("save room: %w", err)
	}

	s.logger.Info().
		Str("room_id", roomID).
		Str("provider_room_id", pr.ID).
		Str("user_id", userID).
		Msg("room created")
	return room, nil
}

// CreateRoom opens a new provider room for roomID. An existing mapping is
// replaced.
func (s *Service) CreateRoom(ctx context.Context, roomID, requestedUserID string) (*RoomInfo, error) {
	if roomID == "" {
		return nil, ErrRoomIDRequired
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	userID, _, err := s.resolveUser(ctx, requestedUserID)
	if err != nil {
		return nil, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	room, err := s.createRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	return &RoomInfo{
		Room:         *room,
		Participants: []models.Participant{{CommunicationUserID: userID, Role: acs.RolePresenter}},
		Created:      true,
	}, nil
}

// GetRoom returns the mapping and current participants for roomID. Unknown
// rooms are created with a fresh presenter when a provider is configured.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return &RoomInfo{Room: *room, Participants: s.participants(ctx, room), Exists: true}, nil
	}

	if s.provider == nil {
		return nil, ErrRoomNotFound
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// Another request may have created it while we waited.
	if room, err = s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if room != nil {
		return &RoomInfo{Room: *room, Participants: s.participants(ctx, room), Exists: true}, nil
	}

	userID, err := s.provider.CreateUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	room, err = s.createRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	return &RoomInfo{
		Room:         *room,
		Participants: []models.Participant{{CommunicationUserID: userID, Role: acs.RolePresenter}},
		Created:      true,
	}, nil
}

// participants lists room members. Listing failures are logged and yield an
// empty list since the mapping itself is still valid.
func (s *Service) participants(ctx context.Context, room *models.Room) []models.Participant {
	out := []models.Participant{}
	if s.provider == nil {
		return out
	}
	ps, err := s.provider.ListParticipants(ctx, room.ProviderRoomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", room.ID).Msg("failed to list participants")
		return out
	}
	for _, p := range ps {
		out = append(out, models.Participant{CommunicationUserID: p.ID, Role: p.Role})
	}
	return out
}

// AddParticipant makes userID a presenter of the room. Adding a member
// twice succeeds with AlreadyMember set.
func (s *Service) AddParticipant(ctx context.Context, roomID, userID string) (*AddResult, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	res := &AddResult{Room: *room, UserID: userID}
	if err := s.provider.AddParticipants(ctx, room.ProviderRoomID, []string{userID}); err != nil {
		if !acs.IsConflict(err) {
			return nil, fmt.Errorf("add participant: %w", err)
		}
		res.AlreadyMember = true
	}

	s.logger.Info().
		Str("room_id", roomID).
		Str("user_id", userID).
		Bool("already_member", res.AlreadyMember).
		Msg("participant added")
	return res, nil
}

// CountRooms returns the number of mapped rooms.
func (s *Service) CountRooms(ctx context.Context) (int64, error) {
	return s.store.CountRooms(ctx)
}

// Ping checks the room directory.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
