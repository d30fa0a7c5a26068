package chrom

import (
	"fmt"
	"strings"
)

// SmoothingMethod selects the smoothing kernel.
type SmoothingMethod string

const (
	// SimpleMovingAverage weights every point in the window equally
	SimpleMovingAverage SmoothingMethod = "sma"
	// LinearWeightedMovingAverage weights points by closeness to the center
	LinearWeightedMovingAverage SmoothingMethod = "lwma"
	// Binomial uses binomial coefficients as weights
	Binomial SmoothingMethod = "binomial"
	// NoSmoothing returns a copy of the input
	NoSmoothing SmoothingMethod = "none"
)

// ParseSmoothingMethod validates a method name.
func ParseSmoothingMethod(s string) (SmoothingMethod, error) {
	m := SmoothingMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case SimpleMovingAverage, LinearWeightedMovingAverage, Binomial, NoSmoothing:
		return m, nil
	}
	return "", fmt.Errorf("unknown smoothing method %q", s)
}

// Smooth applies the kernel with half-window level. Edges use the part of the
// kernel that falls inside the series.
func Smooth(values []float64, method SmoothingMethod, level int) []float64 {
	out := make([]float64, len(values))
	if level <= 0 || method == NoSmoothing || len(values) == 0 {
		copy(out, values)
		return out
	}

	weights := kernel(method, level)
	for i := range values {
		sum, wsum := 0.0, 0.0
		for d := -level; d <= level; d++ {
			j := i + d
			if j < 0 || j >= len(values) {
				continue
			}
			w := weights[d+level]
			sum += w * values[j]
			wsum += w
		}
		if wsum > 0 {
			out[i] = sum / wsum
		}
	}
	return out
}

func kernel(method SmoothingMethod, level int) []float64 {
	w := make([]float64, 2*level+1)
	switch method {
	case LinearWeightedMovingAverage:
		for d := -level; d <= level; d++ {
			w[d+level] = float64(level + 1 - abs(d))
		}
	case Binomial:
		n := 2 * level
		c := 1.0
		for k := 0; k <= n; k++ {
			w[k] = c
			c = c * float64(n-k) / float64(k+1)
		}
	default:
		for i := range w {
			w[i] = 1
		}
	}
	return w
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
