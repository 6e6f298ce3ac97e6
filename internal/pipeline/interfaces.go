package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	infra "github.com/dvloznov/ledger-anomaly/internal/infra/bigquery"
)

// RowCounter is implemented by table-backed ledger readers. The count is
// compared against the rows actually read.
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// ReportEmitter publishes a scored result.
type ReportEmitter interface {
	Emit(ctx context.Context, runID string, res *anomaly.Result) error
}

// RunTracker records scoring runs. Implemented by infra/bigquery.Repository.
type RunTracker interface {
	StartRun(ctx context.Context, runID string, p infra.RunParams) error
	MarkRunSucceeded(ctx context.Context, runID string, accounts, flagged int) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
}

// FailureHandler is implemented by steps that must react when a later step fails.
type FailureHandler interface {
	OnFailure(ctx context.Context, state *PipelineState, err error)
}
