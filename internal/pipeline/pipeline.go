// Package pipeline sequences the detection stages. Each stage fully
// materializes its output in PipelineState before the next one starts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/featurestore"
	infra "github.com/dvloznov/ledger-anomaly/internal/infra/bigquery"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially. When a step fails, every earlier step
// implementing FailureHandler is notified, most recent first.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			err = fmt.Errorf("pipeline step %d failed: %w", i+1, err)
			for j := i - 1; j >= 0; j-- {
				if h, ok := p.steps[j].(FailureHandler); ok {
					h.OnFailure(ctx, state, err)
				}
			}
			return err
		}
	}

	log.Info().
		Int("steps", len(p.steps)).
		Dur("duration", time.Since(start)).
		Msg("Pipeline finished")
	return nil
}

// Deps are the stage implementations a pipeline is assembled from.
// Tracker is optional.
type Deps struct {
	Reader  ledger.Reader
	Builder *features.Builder
	Store   featurestore.Store
	Scorer  *anomaly.Scorer
	Emitter ReportEmitter
	Tracker RunTracker
	Params  infra.RunParams
}

// NewRunPipeline builds the end-to-end pipeline: ledger to ranked report.
func NewRunPipeline(d Deps) *Pipeline {
	steps := []PipelineStep{
		&LoadLedgerStep{Reader: d.Reader},
		&BuildFeaturesStep{Builder: d.Builder},
		&SaveFeaturesStep{Store: d.Store},
	}
	return NewPipeline(append(steps, scoringSteps(d)...)...)
}

// NewFeaturesPipeline builds the feature table and stores it.
func NewFeaturesPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&LoadLedgerStep{Reader: d.Reader},
		&BuildFeaturesStep{Builder: d.Builder},
		&SaveFeaturesStep{Store: d.Store},
	)
}

// NewScorePipeline scores a previously stored feature table.
func NewScorePipeline(d Deps) *Pipeline {
	steps := []PipelineStep{&LoadFeaturesStep{Store: d.Store}}
	return NewPipeline(append(steps, scoringSteps(d)...)...)
}

func scoringSteps(d Deps) []PipelineStep {
	if d.Tracker == nil {
		return []PipelineStep{
			&ScoreStep{Scorer: d.Scorer},
			&EmitReportStep{Emitter: d.Emitter},
		}
	}
	return []PipelineStep{
		&StartRunStep{Tracker: d.Tracker, Params: d.Params},
		&ScoreStep{Scorer: d.Scorer},
		&EmitReportStep{Emitter: d.Emitter},
		&MarkSuccessStep{Tracker: d.Tracker},
	}
}
