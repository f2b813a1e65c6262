package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pulse.monitor/internal/hrv"
)

// DefaultHistoryKeep is how many analyses the history menu shows.
const DefaultHistoryKeep = 4

// HistoryRecord is one stored analysis.
type HistoryRecord struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Result    hrv.Result `json:"result"`
}

// History is a bounded FIFO of analysis results. Appending beyond Keep
// discards the oldest.
type History struct {
	db   *DB
	keep int
	now  func() time.Time
}

// NewHistory returns a history store keeping at most keep results.
func NewHistory(db *DB, keep int) *History {
	if keep < 1 {
		keep = DefaultHistoryKeep
	}
	return &History{db: db, keep: keep, now: time.Now}
}

// Keep returns the capacity of the store.
func (h *History) Keep() int { return h.keep }

// Append stores r and trims the history to Keep entries.
func (h *History) Append(ctx context.Context, r hrv.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	created := h.now().UTC()
	var stress, readiness *float64
	if r.Cloud != nil {
		if !r.Cloud.CreateTimestamp.IsZero() {
			created = r.Cloud.CreateTimestamp.UTC()
		}
		stress, readiness = &r.Cloud.StressIndex, &r.Cloud.Readiness
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (id, source, created_at, mean_hr_bpm, rmssd_ms, sdnn_ms, stress_index, readiness, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(r.Source), created, r.MeanHRBpm, r.RMSSDMs, r.SDNNMs, stress, readiness, string(payload),
	); err != nil {
		return fmt.Errorf("inserting history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM history WHERE seq NOT IN (
			SELECT seq FROM history ORDER BY seq DESC LIMIT ?
		)`, h.keep); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	return tx.Commit()
}

// Records returns the stored analyses, oldest first.
func (h *History) Records(ctx context.Context) ([]HistoryRecord, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT id, created_at, result_json FROM history ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var (
			rec     HistoryRecord
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Result); err != nil {
			return nil, fmt.Errorf("decoding history %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// List returns the stored results, most recent last.
func (h *History) List(ctx context.Context) ([]hrv.Result, error) {
	recs, err := h.Records(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]hrv.Result, len(recs))
	for i, rec := range recs {
		out[i] = rec.Result
	}
	return out, nil
}
