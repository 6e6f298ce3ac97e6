package anomaly

import (
	"math"
	"slices"

	"github.com/dvloznov/ledger-anomaly/internal/features"
	"gonum.org/v1/gonum/stat"
)

// Matrix lays the named columns out as rows of points. Missing values become 0.
func Matrix(table *features.Table, columns []string) ([][]float64, error) {
	n := table.Len()
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, len(columns))
	}
	for j, name := range columns {
		col, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			matrix[i][j] = v.OrZero()
		}
	}
	return matrix, nil
}

// Standardize rescales each column in place to zero mean and unit population
// standard deviation. Constant columns are centered only.
func Standardize(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	col := make([]float64, len(matrix))
	for j := range matrix[0] {
		for i, row := range matrix {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for _, row := range matrix {
			row[j] = (row[j] - mean) / std
		}
	}
}

// Percentile returns the p-th percentile (0..100) of values with linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
