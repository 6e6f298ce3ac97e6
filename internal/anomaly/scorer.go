// Package anomaly ranks accounts by isolation-forest anomaly score.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/forest"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// ErrInvalidConfig is wrapped by every configuration error returned from NewScorer.
var ErrInvalidConfig = errors.New("invalid scoring configuration")

// DefaultColumns is the numeric column list scored when none is configured.
var DefaultColumns = []string{
	features.ColNTx, features.ColAmtSum, features.ColAmtMean, features.ColAmtMax,
	features.ColNearN, features.ColNearPct,
	features.ColIAMean, features.ColIAMedian, features.ColIAStd,
	features.ColCPDiversity,
}

// Config fixes every scoring parameter before a run.
type Config struct {
	Columns       []string
	Contamination float64 // expected anomaly share, in (0, 0.5]
	Trees         int
	MaxSamples    int
	Seed          int64
	Workers       int
}

// DefaultConfig returns the stock scoring parameters.
func DefaultConfig() Config {
	return Config{
		Columns:       slices.Clone(DefaultColumns),
		Contamination: 0.005,
		Trees:         300,
		MaxSamples:    forest.DefaultMaxSamples,
		Seed:          42,
	}
}

func (c Config) validate() error {
	if !(c.Contamination > 0 && c.Contamination <= 0.5) {
		return fmt.Errorf("%w: contamination must be in (0, 0.5], got %v", ErrInvalidConfig, c.Contamination)
	}
	if c.Trees < 1 {
		return fmt.Errorf("%w: trees must be at least 1, got %d", ErrInvalidConfig, c.Trees)
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("%w: no feature columns", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if seen[col] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidConfig, col)
		}
		seen[col] = true
	}
	return nil
}

// ScoredAccount is a feature row with its anomaly score. Lower scores are more anomalous.
type ScoredAccount struct {
	features.AccountFeatures
	Score     float64
	IsAnomaly bool
}

// Result is the scored table, sorted ascending by score.
type Result struct {
	Columns []string
	Rows    []ScoredAccount
	Offset  float64 // contamination percentile of the raw scores
	Flagged int
}

// Scorer fits an isolation forest over a feature table and scores its rows.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("NewScorer: %w", err)
	}
	cfg.Columns = slices.Clone(cfg.Columns)
	return &Scorer{cfg: cfg}, nil
}

// Score fits the forest on the table and returns every row scored and ranked.
// The same table and Config always give identical output.
func (s *Scorer) Score(ctx context.Context, table *features.Table) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	n := table.Len()
	if n < 2 {
		return nil, fmt.Errorf("Scorer.Score: %w", &apperr.InsufficientDataError{
			Reason: "feature table has too few accounts to score",
			Have:   n,
			Need:   2,
		})
	}

	matrix, err := Matrix(table, s.cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("Scorer.Score: %w", err)
	}
	Standardize(matrix)

	f, err := forest.Fit(ctx, matrix, forest.Config{
		Trees:      s.cfg.Trees,
		MaxSamples: s.cfg.MaxSamples,
		Seed:       s.cfg.Seed,
		Workers:    s.cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("Scorer.Score: fitting forest: %w", err)
	}

	anomalyScores, err := f.ScoreAll(ctx, matrix, s.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("Scorer.Score: %w", err)
	}

	raw := make([]float64, n)
	for i, a := range anomalyScores {
		raw[i] = -a
	}
	offset := Percentile(raw, 100*s.cfg.Contamination)

	rows := make([]ScoredAccount, n)
	for i, r := range table.Rows {
		rows[i] = ScoredAccount{AccountFeatures: r, Score: raw[i] - offset}
	}
	slices.SortStableFunc(rows, func(a, b ScoredAccount) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})

	k := FlagCount(n, s.cfg.Contamination)
	for i := 0; i < k; i++ {
		rows[i].IsAnomaly = true
	}

	log.Info().
		Int("accounts", n).
		Int("columns", len(s.cfg.Columns)).
		Int("trees", f.Trees()).
		Int("sample_size", f.SampleSize()).
		Int("flagged", k).
		Float64("offset", offset).
		Dur("duration", time.Since(start)).
		Msg("Scored feature table")

	return &Result{
		Columns: slices.Clone(s.cfg.Columns),
		Rows:    rows,
		Offset:  offset,
		Flagged: k,
	}, nil
}

// FlagCount is the number of accounts flagged for n rows: round(contamination·n), at least 1.
func FlagCount(n int, contamination float64) int {
	k := int(math.Round(contamination * float64(n)))
	return min(max(k, 1), n)
}
