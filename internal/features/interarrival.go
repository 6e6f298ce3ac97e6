package features

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// InterArrival summarizes the gaps between an account's transaction steps.
type InterArrival struct {
	Mean   NullFloat64
	Median NullFloat64
	Std    NullFloat64
}

// InterArrivalStats computes gap statistics over steps (in any order).
//
// Fewer than two observations leave every statistic undefined. Exactly two
// observations give a single gap, whose standard deviation is defined as 0.
// Otherwise Std is the sample (n-1) standard deviation of the gaps.
func InterArrivalStats(steps []int) InterArrival {
	if len(steps) < 2 {
		return InterArrival{}
	}

	sorted := append([]int(nil), steps...)
	sort.Ints(sorted)

	gaps := make([]float64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps[i-1] = float64(sorted[i] - sorted[i-1])
	}

	std := 0.0
	if len(gaps) > 1 {
		std = stat.StdDev(gaps, nil)
	}

	return InterArrival{
		Mean:   Float(stat.Mean(gaps, nil)),
		Median: Float(median(gaps)),
		Std:    Float(std),
	}
}

// median averages the two middle values for even lengths. gaps is sorted in place.
func median(gaps []float64) float64 {
	sort.Float64s(gaps)
	n := len(gaps)
	if n%2 == 1 {
		return gaps[n/2]
	}
	return (gaps[n/2-1] + gaps[n/2]) / 2
}
