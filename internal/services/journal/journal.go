// Package journal keeps a local SQLite record of every telemetry publish attempt.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// schema.sql creates the publish_journal table and its lookup indexes.
//
//go:embed schema.sql
var schemaSQL string

// Entry is one publish attempt
type Entry struct {
	ID          string    `json:"id"`
	HiveID      string    `json:"hive_id"`
	Topic       string    `json:"topic"`
	Payload     string    `json:"payload"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

type Store struct {
	*sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY between concurrent writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise journal schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Initialized publish journal")

	return &Store{db}, nil
}

// Record stores an attempt, assigning an id when the entry has none
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PublishedAt.IsZero() {
		e.PublishedAt = time.Now()
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO publish_journal (id, hive_id, topic, payload, ok, error, published_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.HiveID, e.Topic, e.Payload, e.OK, e.Error, e.PublishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a hive, newest first
func (s *Store) Recent(ctx context.Context, hiveID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.QueryContext(ctx, `
		SELECT id, hive_id, topic, payload, ok, error, published_unix_nanos
		FROM publish_journal
		WHERE hive_id = ?
		ORDER BY published_unix_nanos DESC
		LIMIT ?
	`, hiveID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var nanos int64
		if err := rows.Scan(&e.ID, &e.HiveID, &e.Topic, &e.Payload, &e.OK, &e.Error, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.PublishedAt = time.Unix(0, nanos).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries published before cutoff and reports how many went
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM publish_journal WHERE published_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}
