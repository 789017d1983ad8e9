package catalog

import (
	"context"
	"time"

	"github.com/banshee-data/trial.report/internal/trial"
	"github.com/google/uuid"
)

// Run statuses stored with each outcome.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RunRecord is one stored batch outcome. Only the run's status and error are
// kept; derived series and metrics are recomputed from the raw tables.
type RunRecord struct {
	RunID      uuid.UUID
	Trial      string
	FinishedAt time.Time
	Elapsed    time.Duration
	Status     string
	Error      string
}

// RecordOutcome stores the outcome of one trial in batch runID. Skipped
// trials are not recorded.
func (c *Catalog) RecordOutcome(ctx context.Context, runID uuid.UUID, o trial.Outcome) error {
	if o.Skipped {
		return nil
	}
	rec := RunRecord{RunID: runID, Trial: o.Name, FinishedAt: o.FinishedAt, Status: StatusOK}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if o.Err != nil {
		rec.Status = StatusFailed
		rec.Error = o.Err.Error()
	}
	if o.Result != nil {
		rec.Elapsed = o.Result.Elapsed
	}
	_, err := c.ExecContext(ctx, `
		INSERT OR REPLACE INTO trial_runs
			(run_id, trial_name, finished_unix_nanos, elapsed_ns, status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID.String(), rec.Trial, rec.FinishedAt.UnixNano(), int64(rec.Elapsed), rec.Status, rec.Error)
	return err
}

// Runs returns the recorded outcomes for a trial, newest first.
func (c *Catalog) Runs(ctx context.Context, trialName string) ([]RunRecord, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT run_id, trial_name, finished_unix_nanos, elapsed_ns, status, error
		FROM trial_runs
		WHERE trial_name = ?
		ORDER BY finished_unix_nanos DESC`, trialName)
	if err != nil {
		return nil, err
	}
	var out []RunRecord
	err = scanAll(rows, func() error {
		var rec RunRecord
		var id string
		var finished, elapsed int64
		if err := rows.Scan(&id, &rec.Trial, &finished, &elapsed, &rec.Status, &rec.Error); err != nil {
			return err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return err
		}
		rec.RunID = parsed
		rec.FinishedAt = time.Unix(0, finished)
		rec.Elapsed = time.Duration(elapsed)
		out = append(out, rec)
		return nil
	})
	return out, err
}
