package forest

import "math/rand/v2"

// builder grows one tree; it owns its random source and is not shared.
type builder struct {
	data     [][]float64
	rng      *rand.Rand
	maxDepth int
}

// subsample draws k distinct row indices out of n (Floyd's algorithm).
func (b *builder) subsample(n, k int) []int {
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	chosen := make(map[int]struct{}, k)
	idx := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		t := b.rng.IntN(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		idx = append(idx, t)
	}
	return idx
}

func (b *builder) grow(idx []int, depth int) *node {
	if depth >= b.maxDepth || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	feature, lo, hi, ok := b.pickFeature(idx)
	if !ok {
		// every remaining point is identical
		return &node{size: len(idx)}
	}

	split := lo + b.rng.Float64()*(hi-lo)
	if split >= hi {
		split = lo
	}

	// Partition in place: left holds x <= split.
	i, j := 0, len(idx)-1
	for i <= j {
		if b.data[idx[i]][feature] <= split {
			i++
			continue
		}
		idx[i], idx[j] = idx[j], idx[i]
		j--
	}

	return &node{
		feature: feature,
		split:   split,
		left:    b.grow(idx[:i], depth+1),
		right:   b.grow(idx[i:], depth+1),
	}
}

// pickFeature visits features in random order and returns the first one that
// is not constant over idx, with its range.
func (b *builder) pickFeature(idx []int) (feature int, lo, hi float64, ok bool) {
	dims := len(b.data[idx[0]])
	for _, f := range b.rng.Perm(dims) {
		lo, hi = b.data[idx[0]][f], b.data[idx[0]][f]
		for _, r := range idx[1:] {
			v := b.data[r][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo < hi {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}
