// Package forest implements an isolation forest: an ensemble of random
// axis-aligned partitioning trees in which points that are isolated in fewer
// splits score as more anomalous.
package forest

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxSamples is the per-tree subsample size used when Config.MaxSamples is unset.
const DefaultMaxSamples = 256

// eulerGamma approximates the harmonic number tail: H(i) ≈ ln(i) + γ.
const eulerGamma = 0.5772156649015329

// Config controls forest construction.
type Config struct {
	Trees      int   // number of trees, >= 1
	MaxSamples int   // subsample size per tree; <= 0 means DefaultMaxSamples
	Seed       int64 // seeds every tree's random source
	Workers    int   // concurrent tree builders; <= 0 means GOMAXPROCS
}

// Forest is a fitted ensemble. It is immutable and safe for concurrent scoring.
type Forest struct {
	trees      []*node
	sampleSize int
	dims       int
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int // number of training points at a leaf
}

func (n *node) isLeaf() bool { return n.left == nil }

// Fit grows cfg.Trees trees on data (rows are points, columns are features).
// Tree i draws from its own PCG source seeded with (cfg.Seed, i), so the result
// does not depend on cfg.Workers or goroutine scheduling.
func Fit(ctx context.Context, data [][]float64, cfg Config) (*Forest, error) {
	if cfg.Trees < 1 {
		return nil, fmt.Errorf("forest.Fit: trees must be positive, got %d", cfg.Trees)
	}
	n := len(data)
	if n < 2 {
		return nil, fmt.Errorf("forest.Fit: need at least 2 points, got %d", n)
	}
	dims := len(data[0])
	if dims == 0 {
		return nil, fmt.Errorf("forest.Fit: points have no features")
	}
	for i, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("forest.Fit: row %d has %d features, want %d", i, len(row), dims)
		}
	}

	psi := cfg.MaxSamples
	if psi <= 0 {
		psi = DefaultMaxSamples
	}
	psi = min(psi, n)
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	f := &Forest{trees: make([]*node, cfg.Trees), sampleSize: psi, dims: dims}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(cfg.Workers))
	for i := range f.trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{
				data:     data,
				rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(i))),
				maxDepth: maxDepth,
			}
			f.trees[i] = b.grow(b.subsample(n, psi), 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest.Fit: %w", err)
	}
	return f, nil
}

// Trees returns the number of trees in the ensemble.
func (f *Forest) Trees() int { return len(f.trees) }

// SampleSize returns the per-tree subsample size ψ.
func (f *Forest) SampleSize() int { return f.sampleSize }

// PathLength is the mean isolation depth of x across the trees, with the
// unresolved part of each leaf estimated by c(leaf size).
func (f *Forest) PathLength(x []float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += pathLength(t, x)
	}
	return total / float64(len(f.trees))
}

// Score returns s(x) = 2^(-E[h(x)]/c(ψ)) in (0, 1]. Values near 1 are anomalies;
// values well under 0.5 are regular points.
func (f *Forest) Score(x []float64) float64 {
	return math.Pow(2, -f.PathLength(x)/averagePathLength(f.sampleSize))
}

// ScoreAll scores every row of data. Rows are scored concurrently; each row's
// per-tree sum is accumulated in tree order, so results are reproducible.
func (f *Forest) ScoreAll(ctx context.Context, data [][]float64, workerCount int) ([]float64, error) {
	for i, row := range data {
		if len(row) != f.dims {
			return nil, fmt.Errorf("forest.ScoreAll: row %d has %d features, want %d", i, len(row), f.dims)
		}
	}

	scores := make([]float64, len(data))
	const chunk = 1024

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(workerCount))
	for start := 0; start < len(data); start += chunk {
		end := min(start+chunk, len(data))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				scores[i] = f.Score(data[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest.ScoreAll: %w", err)
	}
	return scores, nil
}

func pathLength(n *node, x []float64) float64 {
	depth := 0
	for !n.isLeaf() {
		if x[n.feature] <= n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n)
	return 2*(math.Log(m-1)+eulerGamma) - 2*(m-1)/m
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}
