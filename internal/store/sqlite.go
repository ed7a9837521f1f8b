package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hearme/signbridge/internal/metrics"
	"github.com/hearme/signbridge/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/signbridge.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/signbridge.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		provider_room_id TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		valid_until DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_provider_room_id ON rooms(provider_room_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRoom upserts a room mapping.
func (s *SQLiteStore) SaveRoom(ctx context.Context, room *models.Room) error {
	start := time.Now()
	defer func() { metrics.DatabaseLatency.Observe(time.Since(start).Seconds()) }()

	var validUntil sql.NullTime
	if !room.ValidUntil.IsZero() {
		validUntil = sql.NullTime{Time: room.ValidUntil.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, provider_room_id, created_by, created_at, valid_until)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_room_id = excluded.provider_room_id,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			valid_until = excluded.valid_until
	`, room.ID, room.ProviderRoomID, room.CreatedBy, room.CreatedAt.UTC(), validUntil)
	return err
}

// GetRoom retrieves a room mapping by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	start := time.Now()
	defer func() { metrics.DatabaseLatency.Observe(time.Since(start).Seconds()) }()

	room := &models.Room{}
	var validUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, provider_room_id, created_by, created_at, valid_until
		FROM rooms WHERE id = ?
	`, id).Scan(
		&room.ID,
		&room.ProviderRoomID,
		&room.CreatedBy,
		&room.CreatedAt,
		&validUntil,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if validUntil.Valid {
		room.ValidUntil = validUntil.Time
	}
	return room, nil
}

// CountRooms returns the number of mapped rooms.
func (s *SQLiteStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}
