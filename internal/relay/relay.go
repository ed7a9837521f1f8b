// Package relay buffers short-lived text events per room so that polling
// readers can catch up with a cursor. Each room log is bounded; the oldest
// entries are dropped first and ids are never reused.
package relay

import (
	"context"
	"errors"

	"github.com/hearme/signbridge/internal/models"
)

// DefaultCapacity is the number of messages kept per room log.
const DefaultCapacity = 100

// ErrEmptyRoom is returned when a room id is blank.
var ErrEmptyRoom = errors.New("relay: room id is required")

// Stats summarizes the contents of a queue.
type Stats struct {
	Name     string `json:"name"`
	Rooms    int    `json:"rooms"`
	Messages int    `json:"messages"`
}

// Queue is an append-only, size-bounded, per-room ordered log of messages.
//
// Post assigns the next id for the room (starting at 1, never reset), stores
// the message with that id and truncates the log from the head down to the
// queue capacity.
//
// ListSince returns every stored message with an id greater than since in
// ascending id order. A room that has never been written returns an empty,
// non-nil slice.
type Queue interface {
	Name() string
	Post(ctx context.Context, roomID string, msg models.Message) (int64, error)
	ListSince(ctx context.Context, roomID string, since int64) ([]models.Message, error)
	Stats(ctx context.Context) (Stats, error)
}
