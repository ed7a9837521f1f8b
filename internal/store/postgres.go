package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearme/signbridge/internal/metrics"
	"github.com/hearme/signbridge/internal/models"
)

// migrations are applied in order; the index + 1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		provider_room_id TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		valid_until TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_provider_room_id ON rooms(provider_room_id)`,
}

// RunMigrations brings the Postgres schema up to date. Applied versions are
// recorded in schema_migrations so each statement runs once.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return err
	}

	var current int
	if err := conn.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, migrations[i]); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, i+1); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveRoom upserts a room mapping.
func (s *PostgresStore) SaveRoom(ctx context.Context, room *models.Room) error {
	start := time.Now()
	defer func() { metrics.DatabaseLatency.Observe(time.Since(start).Seconds()) }()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, provider_room_id, created_by, created_at, valid_until)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			provider_room_id = EXCLUDED.provider_room_id,
			created_by = EXCLUDED.created_by,
			created_at = EXCLUDED.created_at,
			valid_until = EXCLUDED.valid_until
	`, room.ID, room.ProviderRoomID, room.CreatedBy, room.CreatedAt, nullTime(room.ValidUntil))
	return err
}

// GetRoom retrieves a room mapping by id.
func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	start := time.Now()
	defer func() { metrics.DatabaseLatency.Observe(time.Since(start).Seconds()) }()

	room := &models.Room{}
	var validUntil *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, provider_room_id, created_by, created_at, valid_until
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.ProviderRoomID,
		&room.CreatedBy,
		&room.CreatedAt,
		&validUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if validUntil != nil {
		room.ValidUntil = *validUntil
	}
	return room, nil
}

// CountRooms returns the number of mapped rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
