package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is one finished measurement session.
type SessionRecord struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
	Intervals int       `json:"intervals"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// RecordSession appends a session to the log. An empty ID is filled in.
func (db *DB) RecordSession(ctx context.Context, s SessionRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, mode, outcome, intervals, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Mode, s.Outcome, s.Intervals, s.StartedAt.UTC(), s.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, mode, outcome, intervals, started_at, ended_at
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var s SessionRecord
		if err := rows.Scan(&s.ID, &s.Mode, &s.Outcome, &s.Intervals, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionCounts returns how many sessions ended with each outcome.
func (db *DB) SessionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM sessions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
