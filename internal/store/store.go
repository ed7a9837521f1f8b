// Package store keeps the room directory: the mapping from client-chosen
// room ids to provider call rooms.
package store

import (
	"context"
	"sync"

	"github.com/hearme/signbridge/internal/models"
)

// RoomStore defines the interface for the room directory.
// MemoryStore, PostgresStore and SQLiteStore implement this interface.
type RoomStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// SaveRoom inserts the room or replaces the mapping for its id.
	SaveRoom(ctx context.Context, room *models.Room) error
	// GetRoom returns nil, nil when the id is unknown.
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	CountRooms(ctx context.Context) (int64, error)
}

// MemoryStore keeps the directory in process memory. Mappings are lost on
// restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

// NewMemoryStore creates an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]models.Room)}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// SaveRoom stores a copy of the room.
func (s *MemoryStore) SaveRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = *room
	return nil
}

// GetRoom returns a copy of the stored room.
func (s *MemoryStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

// CountRooms returns the number of mapped rooms.
func (s *MemoryStore) CountRooms(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rooms)), nil
}
