package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/google/go-cmp/cmp"
)

// syntheticTable returns normal accounts with values drawn from narrow bands,
// followed by outliers that sit beyond the normal range in every column.
func syntheticTable(normals, outliers int) *features.Table {
	rng := rand.New(rand.NewPCG(7, 11))
	rows := make([]features.AccountFeatures, 0, normals+outliers)
	for i := 0; i < normals; i++ {
		n := 1 + rng.IntN(5)
		sum := 100 + rng.Float64()*900
		ia := 5 + rng.Float64()*20
		rows = append(rows, features.AccountFeatures{
			Account:     fmt.Sprintf("C%06d", i),
			NTx:         n,
			AmtSum:      sum * float64(n),
			AmtMean:     sum,
			AmtMax:      sum * 1.2,
			NearN:       0,
			NearPct:     0,
			IAMean:      features.Float(ia),
			IAMedian:    features.Float(ia),
			IAStd:       features.Float(rng.Float64() * 3),
			CPDiversity: n,
		})
	}
	for i := 0; i < outliers; i++ {
		k := float64(i + 1)
		rows = append(rows, features.AccountFeatures{
			Account:     fmt.Sprintf("C9%05d", i),
			NTx:         40 + 13*i,
			AmtSum:      400000 * k,
			AmtMean:     9500 + 50*k,
			AmtMax:      9990,
			NearN:       35 + 11*i,
			NearPct:     0.9,
			IAMean:      features.Float(60 + 10*k),
			IAMedian:    features.Float(60 + 10*k),
			IAStd:       features.Float(10 + 2*k),
			CPDiversity: 20 + 3*i,
		})
	}
	return &features.Table{Rows: rows}
}

func TestNewScorer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero contamination", func(c *Config) { c.Contamination = 0 }},
		{"contamination above half", func(c *Config) { c.Contamination = 0.51 }},
		{"negative contamination", func(c *Config) { c.Contamination = -0.1 }},
		{"no trees", func(c *Config) { c.Trees = 0 }},
		{"no columns", func(c *Config) { c.Columns = nil }},
		{"duplicate column", func(c *Config) { c.Columns = []string{"n_tx", "n_tx"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewScorer(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewScorer() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Contamination = 0.5
	if _, err := NewScorer(cfg); err != nil {
		t.Errorf("contamination 0.5 should be accepted: %v", err)
	}
}

func TestScore_SyntheticOutliers(t *testing.T) {
	table := syntheticTable(1000, 5)
	s, err := NewScorer(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Score(context.Background(), table)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(res.Rows) != 1005 {
		t.Fatalf("got %d rows, want 1005", len(res.Rows))
	}
	if res.Flagged != 5 {
		t.Errorf("Flagged = %d, want 5", res.Flagged)
	}

	var flagged []string
	for i, r := range res.Rows {
		if r.IsAnomaly != (i < res.Flagged) {
			t.Errorf("row %d (%s): IsAnomaly = %v, flags must be a prefix", i, r.Account, r.IsAnomaly)
		}
		if r.IsAnomaly {
			flagged = append(flagged, r.Account)
		}
	}
	sort.Strings(flagged)
	want := []string{"C900000", "C900001", "C900002", "C900003", "C900004"}
	if diff := cmp.Diff(want, flagged); diff != "" {
		t.Errorf("flagged accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestScore_SortedAscending(t *testing.T) {
	s, _ := NewScorer(DefaultConfig())
	res, err := s.Score(context.Background(), syntheticTable(300, 3))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(res.Rows); i++ {
		if res.Rows[i-1].Score > res.Rows[i].Score {
			t.Fatalf("rows %d and %d out of order: %v > %v", i-1, i, res.Rows[i-1].Score, res.Rows[i].Score)
		}
	}
	if res.Rows[0].Score >= 0 {
		t.Errorf("most anomalous score %v should be below the offset", res.Rows[0].Score)
	}
}

func TestScore_Deterministic(t *testing.T) {
	table := syntheticTable(500, 3)

	cfgA := DefaultConfig()
	cfgA.Workers = 1
	cfgB := DefaultConfig()
	cfgB.Workers = 8

	a, _ := NewScorer(cfgA)
	b, _ := NewScorer(cfgB)

	first, err := a.Score(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Score(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rescoring changed the result (-first +second):\n%s", diff)
	}
}

func TestScore_InsufficientData(t *testing.T) {
	s, _ := NewScorer(DefaultConfig())
	ctx := context.Background()

	for _, table := range []*features.Table{
		nil,
		{},
		{Rows: []features.AccountFeatures{{Account: "C1", NTx: 1}}},
	} {
		_, err := s.Score(ctx, table)
		if !apperr.IsInsufficientData(err) {
			t.Errorf("Score(%d rows) error = %v, want InsufficientDataError", table.Len(), err)
		}
	}
}

func TestScore_UnknownColumn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Columns = append(cfg.Columns, "balance_delta")
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Score(context.Background(), syntheticTable(10, 0))
	if !apperr.IsInsufficientData(err) {
		t.Fatalf("error = %v, want InsufficientDataError", err)
	}
	if !strings.Contains(err.Error(), "balance_delta") {
		t.Errorf("error %q should name the missing column", err)
	}
}

func TestScore_MissingIndicatorColumn(t *testing.T) {
	table := syntheticTable(50, 0)
	table.Rows[0].IAMean = features.Null
	table.Rows[0].IAMedian = features.Null
	table.Rows[0].IAStd = features.Null

	cfg := DefaultConfig()
	cfg.Columns = append(cfg.Columns, features.ColIAMissing)
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Score(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	if res.Columns[len(res.Columns)-1] != features.ColIAMissing {
		t.Errorf("result columns = %v, want ia_missing last", res.Columns)
	}
	if len(res.Rows) != 50 {
		t.Errorf("got %d rows, want 50", len(res.Rows))
	}
}

func TestFlagCount(t *testing.T) {
	tests := []struct {
		n    int
		c    float64
		want int
	}{
		{1005, 0.005, 5},
		{100, 0.005, 1},
		{2, 0.005, 1},
		{1000, 0.1, 100},
		{3, 0.5, 2},
	}
	for _, tt := range tests {
		if got := FlagCount(tt.n, tt.c); got != tt.want {
			t.Errorf("FlagCount(%d, %v) = %d, want %d", tt.n, tt.c, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{100, 5},
		{50, 3},
		{10, 1.4},
		{0.5, 1.02},
	}
	for _, tt := range tests {
		if got := Percentile(values, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if !math.IsNaN(Percentile(nil, 50)) {
		t.Error("Percentile of no values should be NaN")
	}
}

func TestStandardize(t *testing.T) {
	m := [][]float64{{1, 7}, {2, 7}, {3, 7}}
	Standardize(m)

	s := math.Sqrt(2.0 / 3.0)
	want := [][]float64{{-1 / s, 0}, {0, 0}, {1 / s, 0}}
	opt := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })
	if diff := cmp.Diff(want, m, opt); diff != "" {
		t.Errorf("Standardize mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrix_ImputesMissing(t *testing.T) {
	table := &features.Table{Rows: []features.AccountFeatures{
		{Account: "C1", NTx: 1},
		{Account: "C2", NTx: 3, IAMean: features.Float(2.5)},
	}}
	m, err := Matrix(table, []string{features.ColNTx, features.ColIAMean})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{1, 0}, {3, 2.5}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Matrix mismatch (-want +got):\n%s", diff)
	}
}
