package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// Scoring run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// ScoringRunRow is one pipeline execution in scoring_runs.
type ScoringRunRow struct {
	RunID      string                 `bigquery:"run_id"`      // REQUIRED
	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	Contamination float64            `bigquery:"contamination"`
	Trees         int64              `bigquery:"trees"`
	Seed          int64              `bigquery:"seed"`
	Accounts      bigquery.NullInt64 `bigquery:"accounts"` // NULLABLE, set on success
	Flagged       bigquery.NullInt64 `bigquery:"flagged"`  // NULLABLE, set on success
}

// RunParams are the scoring parameters recorded when a run starts.
type RunParams struct {
	Contamination float64
	Trees         int
	Seed          int64
}

// StartScoringRunWithClient inserts a RUNNING row for runID.
func StartScoringRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, p RunParams) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			started_ts,
			status,
			contamination,
			trees,
			seed
		)
		VALUES (
			@run_id,
			@started_ts,
			@status,
			@contamination,
			@trees,
			@seed
		)
	`, ds.Table(scoringRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: StatusRunning},
		{Name: "contamination", Value: p.Contamination},
		{Name: "trees", Value: p.Trees},
		{Name: "seed", Value: p.Seed},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("StartScoringRun: %w", err)
	}
	return nil
}

// MarkScoringRunSucceededWithClient sets status=SUCCESS, finished_ts and the result counts.
func MarkScoringRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, accounts, flagged int) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    accounts = @accounts,
		    flagged = @flagged
		WHERE run_id = @run_id
	`, ds.Table(scoringRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "accounts", Value: accounts},
		{Name: "flagged", Value: flagged},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkScoringRunSucceeded: %w", err)
	}
	return nil
}

// MarkScoringRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged, not returned.
func MarkScoringRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, ds.Table(scoringRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkScoringRunFailed: update failed")
	}
}

// StartRun records a RUNNING scoring run.
func (r *Repository) StartRun(ctx context.Context, runID string, p RunParams) error {
	return StartScoringRunWithClient(ctx, r.client, r.ds, runID, p)
}

// MarkRunSucceeded records a finished scoring run.
func (r *Repository) MarkRunSucceeded(ctx context.Context, runID string, accounts, flagged int) error {
	return MarkScoringRunSucceededWithClient(ctx, r.client, r.ds, runID, accounts, flagged)
}

// MarkRunFailed records a failed scoring run.
func (r *Repository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkScoringRunFailedWithClient(ctx, r.client, r.ds, runID, runErr)
}
