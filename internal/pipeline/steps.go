package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/featurestore"
	infra "github.com/dvloznov/ledger-anomaly/internal/infra/bigquery"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// PipelineStep represents a single stage of a detection run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the materialized output of every stage so far.
type PipelineState struct {
	RunID        string
	Transactions []ledger.Transaction
	Features     *features.Table
	Warnings     []apperr.ComputationWarning
	Result       *anomaly.Result
}

// LoadLedgerStep reads the full ledger.
type LoadLedgerStep struct {
	Reader ledger.Reader
}

func (s *LoadLedgerStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	txs, err := s.Reader.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("LoadLedgerStep: %w", err)
	}
	state.Transactions = txs

	if counter, ok := s.Reader.(RowCounter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			return fmt.Errorf("LoadLedgerStep: verifying row count: %w", err)
		}
		if n != int64(len(txs)) {
			log.Warn().
				Int64("table_rows", n).
				Int("read_rows", len(txs)).
				Msg("Ledger row count changed during read")
		}
	}

	log.Info().
		Int("transactions", len(txs)).
		Dur("duration", time.Since(start)).
		Msg("Loaded ledger")
	return nil
}

// BuildFeaturesStep runs the feature builder, relationship detector and assembler.
type BuildFeaturesStep struct {
	Builder *features.Builder
}

func (s *BuildFeaturesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	table, warnings, err := s.Builder.Build(ctx, state.Transactions)
	if err != nil {
		return fmt.Errorf("BuildFeaturesStep: %w", err)
	}
	state.Features = table
	state.Warnings = warnings

	for _, w := range warnings {
		log.Debug().
			Str("account", w.Account).
			Int("observations", w.Observations).
			Msg("Insufficient inter-arrival history")
	}

	roundTrips := 0
	for _, r := range table.Rows {
		if r.RoundTripAny {
			roundTrips++
		}
	}
	log.Info().
		Int("accounts", table.Len()).
		Int("insufficient_history", len(warnings)).
		Int("round_trip_accounts", roundTrips).
		Dur("duration", time.Since(start)).
		Msg("Built feature table")
	return nil
}

// SaveFeaturesStep persists the feature table artifact.
type SaveFeaturesStep struct {
	Store featurestore.Store
}

func (s *SaveFeaturesStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Store.Save(ctx, state.Features); err != nil {
		return fmt.Errorf("SaveFeaturesStep: %w", err)
	}
	return nil
}

// LoadFeaturesStep reads a previously saved feature table. A missing artifact
// surfaces as *apperr.MissingInputError.
type LoadFeaturesStep struct {
	Store featurestore.Store
}

func (s *LoadFeaturesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	table, err := s.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("LoadFeaturesStep: %w", err)
	}
	state.Features = table

	log.Info().
		Str("location", s.Store.Location()).
		Int("accounts", table.Len()).
		Msg("Loaded feature table")
	return nil
}

// ScoreStep scores the feature table.
type ScoreStep struct {
	Scorer *anomaly.Scorer
}

func (s *ScoreStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Scorer.Score(ctx, state.Features)
	if err != nil {
		return fmt.Errorf("ScoreStep: %w", err)
	}
	state.Result = res
	return nil
}

// EmitReportStep writes the ranked report.
type EmitReportStep struct {
	Emitter ReportEmitter
}

func (s *EmitReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Emitter.Emit(ctx, state.RunID, state.Result); err != nil {
		return fmt.Errorf("EmitReportStep: %w", err)
	}
	return nil
}

// StartRunStep records the run as RUNNING and marks it FAILED if a later step fails.
type StartRunStep struct {
	Tracker RunTracker
	Params  infra.RunParams
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Tracker.StartRun(ctx, state.RunID, s.Params); err != nil {
		return fmt.Errorf("StartRunStep: %w", err)
	}
	return nil
}

func (s *StartRunStep) OnFailure(ctx context.Context, state *PipelineState, err error) {
	s.Tracker.MarkRunFailed(ctx, state.RunID, err)
}

// MarkSuccessStep records the run as SUCCESS with its result counts.
type MarkSuccessStep struct {
	Tracker RunTracker
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts, flagged := 0, 0
	if state.Result != nil {
		accounts, flagged = len(state.Result.Rows), state.Result.Flagged
	}
	if err := s.Tracker.MarkRunSucceeded(ctx, state.RunID, accounts, flagged); err != nil {
		return fmt.Errorf("MarkSuccessStep: %w", err)
	}
	return nil
}
