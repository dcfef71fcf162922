// Package store persists analysis results in SQLite. Each record holds the
// full result document as JSON plus a revision counter; overrides go through
// a transactional read-modify-write so concurrent patches to the same record
// never overwrite each other's fields wholesale.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nexodify/periscan/internal/report"
)

// ErrNotFound reports a missing analysis record.
var ErrNotFound = errors.New("analysis not found")

// Analysis is one persisted analysis record.
type Analysis struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	FileName  string         `json:"file_name"`
	Result    *report.Result `json:"result"`
	Revision  int            `json:"revision"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Filter narrows a listing.
type Filter struct {
	UserID string
	Limit  int
	Offset int
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: exec %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	result     TEXT NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveAnalysis inserts a freshly produced result and returns the stored
// record.
func (s *Store) SaveAnalysis(ctx context.Context, userID, fileName string, res *report.Result) (*Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("store: marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, file_name, result, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, fileName, string(raw), res.Run.Revision, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert analysis: %w", err)
	}
	return &Analysis{
		ID: id, UserID: userID, FileName: fileName,
		Result: res, Revision: res.Run.Revision,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetAnalysis loads one record by id.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, result, revision, created_at, updated_at
		 FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var a Analysis
	var raw string
	err := row.Scan(&a.ID, &a.UserID, &a.FileName, &raw, &a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan analysis: %w", err)
	}
	var res report.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("store: unmarshal result %s: %w", a.ID, err)
	}
	a.Result = &res
	return &a, nil
}

// ListAnalyses returns records newest first, optionally filtered by user.
func (s *Store) ListAnalyses(ctx context.Context, f Filter) ([]Analysis, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, file_name, result, revision, created_at, updated_at
		 FROM analyses`
	args := []any{}
	if f.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list analyses: %w", err)
	}
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list analyses: %w", err)
	}
	return out, nil
}

// UpdateResult applies fn to the stored result inside one transaction and
// bumps the revision. The row is re-read inside the transaction, so two
// concurrent overrides serialize and neither loses the other's fields.
func (s *Store) UpdateResult(ctx context.Context, id string, fn func(*report.Result) error) (*Analysis, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, result, revision, created_at, updated_at
		 FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, err
	}
	if err := fn(a.Result); err != nil {
		return nil, err
	}
	a.Revision++
	a.Result.Run.Revision = a.Revision
	a.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(a.Result)
	if err != nil {
		return nil, fmt.Errorf("store: marshal result: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE analyses SET result = ?, revision = ?, updated_at = ? WHERE id = ?`,
		string(raw), a.Revision, a.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("store: update analysis %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return a, nil
}
