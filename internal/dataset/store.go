// Package dataset stores labelled landmark samples for the offline trainer
// and imports them from the extraction outputs.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hearme/signbridge/internal/gesture"
)

// Store is a SQLite database of training samples.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the sample database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	migrations := []string{
		// Samples table - one labelled feature vector per row, features as a JSON array
		`CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK(kind IN ('static', 'sequence')),
			label TEXT NOT NULL,
			size INTEGER NOT NULL,
			features TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_samples_kind_label ON samples(kind, label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts samples of one kind in a single transaction.
func (s *Store) Add(ctx context.Context, kind gesture.Kind, source string, samples []gesture.Sample) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (kind, label, size, features, source) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, sample := range samples {
		data, err := json.Marshal(sample.Features)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, string(kind), sample.Label, len(sample.Features), string(data), source); err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(samples), nil
}

// Samples returns all samples of a kind in insertion order.
func (s *Store) Samples(ctx context.Context, kind gesture.Kind) ([]gesture.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, features FROM samples WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []gesture.Sample
	for rows.Next() {
		var label, data string
		if err := rows.Scan(&label, &data); err != nil {
			return nil, err
		}
		var features []float32
		if err := json.Unmarshal([]byte(data), &features); err != nil {
			return nil, fmt.Errorf("sample %q: %w", label, err)
		}
		samples = append(samples, gesture.Sample{Label: label, Features: features})
	}
	return samples, rows.Err()
}

// Counts returns the number of samples per label for a kind.
func (s *Store) Counts(ctx context.Context, kind gesture.Kind) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM samples WHERE kind = ? GROUP BY label`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// Delete removes every sample of a kind and returns how many were removed.
func (s *Store) Delete(ctx context.Context, kind gesture.Kind) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE kind = ?`, string(kind))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
