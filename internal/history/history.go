// Package history records every solve attempt in a local SQLite ledger so
// `drover history` can show what ran, what failed, and which paused sessions
// are still resumable. This is reporting state only: the job queue itself is
// never persisted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ticketmill/drover/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id            TEXT PRIMARY KEY,
	item_url      TEXT NOT NULL,
	agent         TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	outcome       TEXT NOT NULL,
	session_token TEXT,
	exit_code     INTEGER,
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_attempts_item ON attempts(item_url, started_at);
`

// Attempt is one ledger row.
type Attempt struct {
	ID           string
	ItemURL      string
	Agent        string
	Attempt      int
	Outcome      types.Outcome
	SessionToken string
	ExitCode     int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path, WAL mode for concurrent
// readers while the monitor writes.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts one finished attempt.
func (s *Store) Record(ctx context.Context, a *Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
			(id, item_url, agent, attempt, outcome, session_token, exit_code, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemURL, a.Agent, a.Attempt, string(a.Outcome),
		a.SessionToken, a.ExitCode, a.StartedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}

// List returns attempts newest first, optionally filtered to one item.
func (s *Store) List(ctx context.Context, itemURL string, limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, item_url, agent, attempt, outcome, session_token, exit_code, started_at, completed_at
		FROM attempts`
	args := []interface{}{}
	if itemURL != "" {
		query += ` WHERE item_url = ?`
		args = append(args, itemURL)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []*Attempt
	for rows.Next() {
		a := &Attempt{}
		var outcome string
		var token sql.NullString
		var exitCode sql.NullInt64
		var completed sql.NullTime
		err := rows.Scan(&a.ID, &a.ItemURL, &a.Agent, &a.Attempt, &outcome,
			&token, &exitCode, &a.StartedAt, &completed)
		if err != nil {
			return nil, fmt.Errorf("scanning attempt row: %w", err)
		}
		a.Outcome = types.Outcome(outcome)
		if token.Valid {
			a.SessionToken = token.String
		}
		if exitCode.Valid {
			a.ExitCode = int(exitCode.Int64)
		}
		if completed.Valid {
			t := completed.Time
			a.CompletedAt = &t
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempt rows: %w", err)
	}
	return attempts, nil
}

// Prune deletes attempts started before the cutoff and returns how many
// rows went away.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE started_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("pruning attempts: %w", err)
	}
	return res.RowsAffected()
}

// Resumable returns the most recent limit-reached attempt for an item that
// captured a session token, if any.
func (s *Store) Resumable(ctx context.Context, itemURL string) (*Attempt, error) {
	attempts, err := s.List(ctx, itemURL, 20)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if a.Outcome == types.OutcomeLimit && a.SessionToken != "" {
			return a, nil
		}
	}
	return nil, nil
}
