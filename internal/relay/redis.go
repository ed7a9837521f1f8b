package relay

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hearme/signbridge/internal/metrics"
	"github.com/hearme/signbridge/internal/models"
)

// roomTTL bounds how long an idle room survives in Redis. Counter and log
// expire together so a room that comes back starts over like a fresh process.
const roomTTL = 24 * time.Hour

// postScript assigns the next id, appends "<id>|<payload>" and trims the log
// to the newest ARGV[2] entries in one atomic step.
var postScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
redis.call('RPUSH', KEYS[2], id .. '|' .. ARGV[1])
local trimmed = redis.call('LLEN', KEYS[2]) - tonumber(ARGV[2])
if trimmed > 0 then
	redis.call('LTRIM', KEYS[2], trimmed, -1)
else
	trimmed = 0
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return {id, trimmed}
`)

// RedisQueue stores room logs in Redis so several service instances can share
// one relay. Messages are msgpack encoded.
type RedisQueue struct {
	client   *redis.Client
	name     string
	capacity int
}

// NewRedisQueue creates a queue whose keys are namespaced by name.
func NewRedisQueue(client *redis.Client, name string, capacity int) *RedisQueue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &RedisQueue{client: client, name: name, capacity: capacity}
}

// Name returns the relay name used in metrics, stats and keys.
func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) seqKey(roomID string) string {
	return fmt.Sprintf("relay:%s:%s:seq", q.name, roomID)
}

func (q *RedisQueue) logKey(roomID string) string {
	return fmt.Sprintf("relay:%s:%s:log", q.name, roomID)
}

// Post appends msg to the room log and returns its id.
func (q *RedisQueue) Post(ctx context.Context, roomID string, msg models.Message) (int64, error) {
	if roomID == "" {
		return 0, ErrEmptyRoom
	}

	msg.ID = 0
	payload, err := msgpack.Marshal(&msg)
	if err != nil {
		return 0, fmt.Errorf("encode message: %w", err)
	}

	start := time.Now()
	res, err := postScript.Run(ctx, q.client,
		[]string{q.seqKey(roomID), q.logKey(roomID)},
		payload, q.capacity, int(roomTTL.Seconds()),
	).Int64Slice()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("post to %s relay: %w", q.name, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("post to %s relay: unexpected script reply %v", q.name, res)
	}

	metrics.RelayMessagesPosted.WithLabelValues(q.name).Inc()
	if res[1] > 0 {
		metrics.RelayMessagesDropped.WithLabelValues(q.name).Add(float64(res[1]))
	}
	return res[0], nil
}

// ListSince returns the messages newer than since.
func (q *RedisQueue) ListSince(ctx context.Context, roomID string, since int64) ([]models.Message, error) {
	start := time.Now()
	entries, err := q.client.LRange(ctx, q.logKey(roomID), 0, -1).Result()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read %s relay: %w", q.name, err)
	}

	out := make([]models.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := decodeEntry(entry)
		if err != nil {
			// a corrupt entry is skipped rather than hiding the rest of the room
			continue
		}
		if msg.ID > since {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Stats scans the relay namespace and counts rooms and stored messages.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Name: q.name}
	iter := q.client.Scan(ctx, 0, fmt.Sprintf("relay:%s:*:log", q.name), 100).Iterator()
	for iter.Next(ctx) {
		n, err := q.client.LLen(ctx, iter.Val()).Result()
		if err != nil {
			return st, err
		}
		st.Rooms++
		st.Messages += int(n)
	}
	return st, iter.Err()
}

// decodeEntry splits a stored "<id>|<msgpack>" entry.
func decodeEntry(entry string) (models.Message, error) {
	var msg models.Message
	raw := []byte(entry)
	sep := bytes.IndexByte(raw, '|')
	if sep < 1 {
		return msg, fmt.Errorf("malformed relay entry")
	}
	id, err := strconv.ParseInt(string(raw[:sep]), 10, 64)
	if err != nil {
		return msg, fmt.Errorf("malformed relay id: %w", err)
	}
	if err := msgpack.Unmarshal(raw[sep+1:], &msg); err != nil {
		return msg, fmt.Errorf("decode relay entry: %w", err)
	}
	msg.ID = id
	return msg, nil
}
