package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/hearme/signbridge/internal/metrics"
	"github.com/hearme/signbridge/internal/models"
)

// roomLog is the bounded log of a single room. Its mutex covers id
// assignment, append and truncation as one unit.
type roomLog struct {
	mu       sync.Mutex
	lastID   int64
	messages []models.Message
}

// MemoryQueue keeps room logs in process memory. Logs are created on first
// post and live until the process exits.
type MemoryQueue struct {
	name     string
	capacity int

	mu    sync.RWMutex // guards rooms only; each log has its own lock
	rooms map[string]*roomLog
}

// NewMemoryQueue creates an empty in-memory queue. A capacity below one
// falls back to DefaultCapacity.
func NewMemoryQueue(name string, capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &MemoryQueue{
		name:     name,
		capacity: capacity,
		rooms:    make(map[string]*roomLog),
	}
}

// Name returns the relay name used in metrics and stats.
func (q *MemoryQueue) Name() string {
	return q.name
}

// log returns the room log, creating it when create is true.
func (q *MemoryQueue) log(roomID string, create bool) *roomLog {
	q.mu.RLock()
	l := q.rooms[roomID]
	q.mu.RUnlock()
	if l != nil || !create {
		return l
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if l = q.rooms[roomID]; l == nil {
		l = &roomLog{messages: make([]models.Message, 0, q.capacity)}
		q.rooms[roomID] = l
	}
	return l
}

// Post appends msg to the room log and returns its id.
func (q *MemoryQueue) Post(ctx context.Context, roomID string, msg models.Message) (int64, error) {
	if roomID == "" {
		return 0, ErrEmptyRoom
	}

	l := q.log(roomID, true)

	l.mu.Lock()
	l.lastID++
	msg.ID = l.lastID
	l.messages = append(l.messages, msg)
	dropped := 0
	if over := len(l.messages) - q.capacity; over > 0 {
		// shift in place so the backing array does not grow without bound
		n := copy(l.messages, l.messages[over:])
		clear(l.messages[n:])
		l.messages = l.messages[:n]
		dropped = over
	}
	l.mu.Unlock()

	metrics.RelayMessagesPosted.WithLabelValues(q.name).Inc()
	if dropped > 0 {
		metrics.RelayMessagesDropped.WithLabelValues(q.name).Add(float64(dropped))
	}
	return msg.ID, nil
}

// ListSince returns a snapshot of the messages newer than since.
func (q *MemoryQueue) ListSince(ctx context.Context, roomID string, since int64) ([]models.Message, error) {
	l := q.log(roomID, false)
	if l == nil {
		return []models.Message{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// ids are strictly increasing, so the first newer message can be found by bisection
	i := sort.Search(len(l.messages), func(i int) bool {
		return l.messages[i].ID > since
	})
	out := make([]models.Message, len(l.messages)-i)
	copy(out, l.messages[i:])
	return out, nil
}

// Len returns the number of messages stored for a room.
func (q *MemoryQueue) Len(roomID string) int {
	l := q.log(roomID, false)
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Stats counts rooms and stored messages.
func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.RLock()
	logs := make([]*roomLog, 0, len(q.rooms))
	for _, l := range q.rooms {
		logs = append(logs, l)
	}
	q.mu.RUnlock()

	st := Stats{Name: q.name, Rooms: len(logs)}
	for _, l := range logs {
		l.mu.Lock()
		st.Messages += len(l.messages)
		l.mu.Unlock()
	}
	return st, nil
}
