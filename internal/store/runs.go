package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soyeahso/agentos/internal/domain"
)

// DefaultListLimit is used when a query does not set Limit.
const DefaultListLimit = 50

// RunQuery selects run records. Empty fields match everything. Results are
// newest first.
type RunQuery struct {
	AgentID string
	Type    string
	Limit   int
}

func (q RunQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}

func (q RunQuery) matches(rec domain.RunRecord) bool {
	return (q.AgentID == "" || rec.AgentID == q.AgentID) &&
		(q.Type == "" || rec.AgentType == q.Type)
}

// RunStore is the run-history journal.
type RunStore interface {
	Record(ctx context.Context, rec domain.RunRecord) error
	List(ctx context.Context, q RunQuery) ([]domain.RunRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// SQLiteRunStore persists run records in the runs table.
type SQLiteRunStore struct {
	db         *DB
	maxEntries int
}

// NewSQLiteRunStore creates a run store on db. When maxEntries is positive
// the oldest rows beyond it are dropped on every insert.
func NewSQLiteRunStore(db *DB, maxEntries int) *SQLiteRunStore {
	return &SQLiteRunStore{db: db, maxEntries: maxEntries}
}

// Record inserts rec. Recording the same run id twice keeps the latest.
func (s *SQLiteRunStore) Record(ctx context.Context, rec domain.RunRecord) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO runs (run_id, agent_id, agent_name, agent_type, status, attempts,
		                   error_code, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   status = excluded.status,
		   attempts = excluded.attempts,
		   error_code = excluded.error_code,
		   error = excluded.error,
		   finished_at = excluded.finished_at,
		   duration_ms = excluded.duration_ms`,
		rec.RunID, rec.AgentID, rec.AgentName, rec.AgentType, string(rec.Status), rec.Attempts,
		rec.ErrorCode, rec.Error,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", rec.RunID, err)
	}

	if s.maxEntries > 0 {
		if _, err := s.db.sql.ExecContext(ctx,
			`DELETE FROM runs WHERE run_id IN (
			   SELECT run_id FROM runs ORDER BY finished_at DESC, rowid DESC LIMIT -1 OFFSET ?
			 )`, s.maxEntries,
		); err != nil {
			return fmt.Errorf("trimming run history: %w", err)
		}
	}
	return nil
}

// List returns records matching q, newest first.
func (s *SQLiteRunStore) List(ctx context.Context, q RunQuery) ([]domain.RunRecord, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT run_id, agent_id, agent_name, agent_type, status, attempts,
		        error_code, error, started_at, finished_at, duration_ms
		 FROM runs
		 WHERE (? = '' OR agent_id = ?)
		   AND (? = '' OR agent_type = ?)
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		q.AgentID, q.AgentID, q.Type, q.Type, q.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Prune deletes records that finished before the cutoff.
func (s *SQLiteRunStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func scanRuns(rows *sql.Rows) ([]domain.RunRecord, error) {
	recs := []domain.RunRecord{}
	for rows.Next() {
		var rec domain.RunRecord
		var status string
		var started, finished int64

		if err := rows.Scan(
			&rec.RunID, &rec.AgentID, &rec.AgentName, &rec.AgentType, &status, &rec.Attempts,
			&rec.ErrorCode, &rec.Error, &started, &finished, &rec.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		rec.Status = domain.Status(status)
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
