package slam

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNoParticles is returned when a filter or resampling pass has no particles
	ErrNoParticles = errors.New("particle count must be positive")

	// ErrDegenerateWeights is returned when the weights do not sum to a
	// positive finite number, so no particle can be preferred over another
	ErrDegenerateWeights = errors.New("total particle weight is not positive")
)

// SystematicResample selects len(weights) indices with probability
// proportional to weight, using a single offset r in [0, total/N) and N
// equally spaced pointers (Thrun et al., Probabilistic Robotics, p. 110).
// The returned indices are non-decreasing.
func SystematicResample(weights []float64, r float64) ([]int, error) {
	n := len(weights)
	if n == 0 {
		return nil, ErrNoParticles
	}
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, ErrDegenerateWeights
		}
	}
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, ErrDegenerateWeights
	}

	step := total / float64(n)
	if r < 0 || r >= step {
		return nil, fmt.Errorf("resampling offset %v outside [0, %v)", r, step)
	}

	indices := make([]int, n)
	i := 0
	c := weights[0]
	for m := 0; m < n; m++ {
		u := r + float64(m)*step
		// i < n-1 absorbs rounding in the running sum
		for c < u && i < n-1 {
			i++
			c += weights[i]
		}
		indices[m] = i
	}
	return indices, nil
}

// EffectiveSampleSize returns 1/sum(w_i^2) of the normalised weights, or 0
// when the weights are degenerate
func EffectiveSampleSize(weights []float64) float64 {
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		return 0
	}
	sumSq := floats.Dot(weights, weights)
	if sumSq == 0 {
		return 0
	}
	return total * total / sumSq
}
