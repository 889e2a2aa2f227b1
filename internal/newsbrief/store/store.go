// Package store archives finished briefings in SQLite for the history view.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/pkg/storage"
)

// Schema is the SQLite schema for the run archive.
const Schema = `
CREATE TABLE IF NOT EXISTS briefings (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    topic          TEXT NOT NULL,
    query          TEXT NOT NULL,
    status         TEXT NOT NULL,
    total_results  INTEGER DEFAULT 0,
    headline_count INTEGER DEFAULT 0,
    extracted      INTEGER DEFAULT 0,
    summary        TEXT,
    tokens_used    INTEGER DEFAULT 0,
    cost           REAL DEFAULT 0,
    payload        TEXT NOT NULL,
    started_at     TIMESTAMP NOT NULL,
    finished_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_briefings_finished ON briefings(finished_at);
`

// ErrNotFound is returned when no briefing matches.
var ErrNotFound = errors.New("briefing not found")

// DefaultKeep is how many briefings are retained.
const DefaultKeep = 200

// Summary is one row of the history listing.
type Summary struct {
	ID           int64     `json:"id"`
	Topic        string    `json:"topic"`
	Query        string    `json:"query"`
	Status       string    `json:"status"`
	TotalResults int       `json:"total_results"`
	Headlines    int       `json:"headlines"`
	Extracted    int       `json:"extracted"`
	Summary      string    `json:"summary"`
	TokensUsed   int       `json:"tokens_used"`
	Cost         float64   `json:"cost"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store provides briefing persistence.
type Store struct {
	db   *storage.DB
	keep int
}

// New migrates db and returns a Store keeping at most keep briefings
// (keep <= 0 means DefaultKeep).
func New(ctx context.Context, db *storage.DB, keep int) (*Store, error) {
	if err := db.Migrate(ctx, Schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{db: db, keep: keep}, nil
}

// Open opens the database at path and returns a Store over it.
func Open(ctx context.Context, path string, keep int) (*Store, error) {
	db, err := storage.Open(storage.Config{Path: path})
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, db, keep)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives b, sets b.ID, and prunes the oldest rows beyond the limit.
func (s *Store) Save(ctx context.Context, b *newsbrief.Briefing) (int64, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return 0, fmt.Errorf("marshal briefing: %w", err)
	}

	var tokens int
	var cost float64
	if b.Summary != nil {
		tokens = b.Summary.TokensIn + b.Summary.TokensOut
		cost = b.Summary.Cost
	}

	var id int64
	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO briefings (topic, query, status, total_results, headline_count, extracted,
				summary, tokens_used, cost, payload, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.Topic, b.Query.Expression, b.Status(), b.TotalResults, len(b.Headlines), b.Stats.Extracted,
			b.SummaryText(), tokens, cost, string(payload), b.StartedAt.UTC(), b.FinishedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert briefing: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM briefings WHERE id NOT IN (
				SELECT id FROM briefings ORDER BY id DESC LIMIT ?
			)
		`, s.keep)
		if err != nil {
			return fmt.Errorf("prune briefings: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.ID = id
	return id, nil
}

// Latest returns the most recent briefing.
func (s *Store) Latest(ctx context.Context) (*newsbrief.Briefing, error) {
	return s.scanBriefing(s.db.QueryRowContext(ctx, `
		SELECT id, payload FROM briefings ORDER BY id DESC LIMIT 1
	`))
}

// Get returns the briefing with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*newsbrief.Briefing, error) {
	return s.scanBriefing(s.db.QueryRowContext(ctx, `
		SELECT id, payload FROM briefings WHERE id = ?
	`, id))
}

func (s *Store) scanBriefing(row *sql.Row) (*newsbrief.Briefing, error) {
	var id int64
	var payload string
	if err := row.Scan(&id, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query briefing: %w", err)
	}

	var b newsbrief.Briefing
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, fmt.Errorf("decode briefing %d: %w", id, err)
	}
	b.ID = id
	return &b, nil
}

// List returns up to limit briefings, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, query, status, total_results, headline_count, extracted,
			COALESCE(summary, ''), tokens_used, cost, finished_at
		FROM briefings ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var r Summary
		if err := rows.Scan(&r.ID, &r.Topic, &r.Query, &r.Status, &r.TotalResults, &r.Headlines,
			&r.Extracted, &r.Summary, &r.TokensUsed, &r.Cost, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan briefing: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
