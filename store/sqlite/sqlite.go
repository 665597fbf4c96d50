/*
Package sqlite provides the SQLite-backed implementation of the reward
event store.

PURPOSE:
  Persists reward events as an append-only, versioned log. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on reward_events
  - No DELETE statements on reward_events
  - A new version of a logical event is a new row; readers join against
    MAX(version) per key hash

KEY TABLE:
  reward_events: one row per (key_hash, version). event_time is the
  arrival time of version 1, carried through later versions so that
  settlement order is stable across re-writes. Stored as Unix
  nanoseconds so window comparisons are exact.

INDEXES:
  - PRIMARY KEY (key_hash, version): version lookup (hot path)
  - idx_reward_events_type_status: pending-event sweeps
  - idx_reward_events_to_user: per-user cap aggregation

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, a single writer at a time, better crash
  recovery. A mutex serializes writers inside the process.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - reward/store.go: the EventStore contract
  - reward/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/credit-engine/reward"
)

// Store implements reward.EventStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// now is the insertion clock; overridable for tests.
	now func() time.Time
}

var _ reward.EventStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the insertion clock. Tests use it.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reward events (append-only, versioned)
	CREATE TABLE IF NOT EXISTS reward_events (
		key_hash TEXT NOT NULL,
		version INTEGER NOT NULL,
		reward_type TEXT NOT NULL,
		to_user_id TEXT NOT NULL,
		by_user_id TEXT NOT NULL,
		for_id TEXT NOT NULL,
		award_amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		ip TEXT,
		event_time INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (key_hash, version)
	);

	CREATE INDEX IF NOT EXISTS idx_reward_events_type_status
		ON reward_events(reward_type, status);
	CREATE INDEX IF NOT EXISTS idx_reward_events_to_user
		ON reward_events(to_user_id, reward_type);
	CREATE INDEX IF NOT EXISTS idx_reward_events_time
		ON reward_events(event_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// APPEND - The only write operation
// =============================================================================

// Append inserts a new version of the event. The version is assigned here
// (prior latest + 1); the first version's event_time is carried through.
func (s *Store) Append(ctx context.Context, ev *reward.RewardEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := ev.Hash()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var latest int
	var firstTime sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0),
		        (SELECT event_time FROM reward_events WHERE key_hash = ? AND version = 1)
		 FROM reward_events WHERE key_hash = ?`, hash, hash).Scan(&latest, &firstTime)
	if err != nil {
		return fmt.Errorf("read latest version: %w", err)
	}

	if latest == 0 {
		if ev.Time.IsZero() {
			ev.Time = s.now()
		}
	} else {
		ev.Time = time.Unix(0, firstTime.Int64).UTC()
	}
	ev.Version = latest + 1

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reward_events
		 (key_hash, version, reward_type, to_user_id, by_user_id, for_id,
		  award_amount, status, ip, event_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hash, ev.Version, ev.Type, ev.ToUserID, ev.ByUserID, ev.ForID,
		ev.AwardAmount, string(ev.Status), ev.IP, ev.Time.UnixNano(),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event version: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// READS - Latest version per key
// =============================================================================

// latestJoin restricts a query to the newest version of each logical
// event and carries the arrival order of the first version.
const latestJoin = `
	FROM reward_events e
	JOIN (
		SELECT key_hash, MAX(version) AS max_version, MIN(rowid) AS first_row
		FROM reward_events
		GROUP BY key_hash
	) latest ON latest.key_hash = e.key_hash AND latest.max_version = e.version`

// Latest returns the latest version of every matching logical event in
// arrival order.
func (s *Store) Latest(ctx context.Context, f reward.Filter) ([]reward.RewardEvent, error) {
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("latest: filter requires at least one type")
	}

	query := `SELECT e.reward_type, e.to_user_id, e.by_user_id, e.for_id,
	                 e.award_amount, e.status, e.ip, e.event_time, e.version` +
		latestJoin + `
	WHERE e.reward_type IN (` + placeholders(len(f.Types)) + `)`

	args := typeArgs(f.Types)
	if f.Status != "" {
		query += " AND e.status = ?"
		args = append(args, string(f.Status))
	}
	if f.ToUserID != "" {
		query += " AND e.to_user_id = ?"
		args = append(args, f.ToUserID)
	}
	query += " ORDER BY latest.first_row"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest events: %w", err)
	}
	defer rows.Close()

	var out []reward.RewardEvent
	for rows.Next() {
		var ev reward.RewardEvent
		var ip sql.NullString
		var status string
		var eventTime int64
		if err := rows.Scan(&ev.Type, &ev.ToUserID, &ev.ByUserID, &ev.ForID,
			&ev.AwardAmount, &status, &ip, &eventTime, &ev.Version); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Status = reward.EventStatus(status)
		ev.IP = ip.String
		ev.Time = time.Unix(0, eventTime).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SumAwarded returns the total AwardAmount of awarded latest versions
// matching the query.
func (s *Store) SumAwarded(ctx context.Context, q reward.AggregateQuery) (int64, error) {
	if len(q.Types) == 0 {
		return 0, fmt.Errorf("sum awarded: query requires at least one type")
	}

	query := `SELECT COALESCE(SUM(e.award_amount), 0)` + latestJoin + `
	WHERE e.status = ? AND e.reward_type IN (` + placeholders(len(q.Types)) + `)`

	args := append([]any{string(reward.StatusAwarded)}, typeArgs(q.Types)...)
	if q.ToUserID != "" {
		query += " AND e.to_user_id = ?"
		args = append(args, q.ToUserID)
	}
	if q.ByUserID != "" {
		query += " AND e.by_user_id = ?"
		args = append(args, q.ByUserID)
	}
	if q.ForID != "" {
		query += " AND e.for_id = ?"
		args = append(args, q.ForID)
	}
	if q.Window != nil {
		query += " AND e.event_time >= ? AND e.event_time < ?"
		args = append(args, q.Window.Start.UnixNano(), q.Window.End.UnixNano())
	}

	var sum int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("aggregate awarded amounts: %w", err)
	}
	return sum, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func typeArgs(types []string) []any {
	args := make([]any, len(types))
	for i, t := range types {
		args[i] = t
	}
	return args
}
