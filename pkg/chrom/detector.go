package chrom

import (
	"math"
	"sort"
)

// DetectorConfig holds the thresholds of the generic peak detector.
type DetectorConfig struct {
	MinimumDatapoints int     // Points from left to right edge inclusive
	MinimumAmplitude  float64 // Apex height above the higher edge
}

// PeakResult is one detected peak as indices into the input series.
type PeakResult struct {
	Left, Apex, Right int
	Height            float64 // Apex value of the (smoothed) series
	Prominence        float64 // Height above the higher edge
}

// Datapoints returns the number of points spanned by the peak.
func (p PeakResult) Datapoints() int {
	return p.Right - p.Left + 1
}

// DetectPeaks finds local maxima of values and walks each one outward while
// the series keeps descending. A maximum is kept when its span has at least
// MinimumDatapoints points and it rises MinimumAmplitude above both edges.
// Plateaus report their leftmost point as apex.
func DetectPeaks(values []float64, cfg DetectorConfig) []PeakResult {
	n := len(values)
	if n < 3 {
		return nil
	}
	minPoints := cfg.MinimumDatapoints
	if minPoints < 3 {
		minPoints = 3
	}

	var peaks []PeakResult
	for i := 1; i < n-1; i++ {
		y := values[i]
		if y <= 0 || math.IsNaN(y) || !(y > values[i-1] && y >= values[i+1]) {
			continue
		}
		// Skip the plateau so its right part is not reported again
		j := i
		for j+1 < n && values[j+1] == y {
			j++
		}
		if j == n-1 {
			break
		}
		if values[j+1] > y {
			i = j
			continue
		}

		left := i
		for left > 0 && values[left-1] <= values[left] && values[left] > 0 {
			left--
		}
		right := j
		for right < n-1 && values[right+1] <= values[right] && values[right] > 0 {
			right++
		}

		p := PeakResult{
			Left:       left,
			Apex:       i,
			Right:      right,
			Height:     y,
			Prominence: y - math.Max(values[left], values[right]),
		}
		i = j
		if p.Datapoints() < minPoints || p.Prominence < cfg.MinimumAmplitude {
			continue
		}
		peaks = append(peaks, p)
	}
	return peaks
}

// EstimateNoise returns the median absolute first difference of the positive
// part of values, or 1 when no difference is non-zero.
func EstimateNoise(values []float64) float64 {
	var diffs []float64
	for i := 1; i < len(values); i++ {
		if values[i] <= 0 && values[i-1] <= 0 {
			continue
		}
		if d := math.Abs(values[i] - values[i-1]); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 1
	}
	return Median(diffs)
}

// LinearBaseline returns the straight-line baseline between the edges of a
// peak, evaluated at its apex.
func LinearBaseline(values []float64, left, apex, right int) float64 {
	if right <= left {
		return values[left]
	}
	frac := float64(apex-left) / float64(right-left)
	return values[left] + (values[right]-values[left])*frac
}

// TrapezoidArea integrates values over times between two indices inclusive,
// after subtracting baseline (clamped at zero).
func TrapezoidArea(times, values []float64, left, right int, baseline float64) float64 {
	area := 0.0
	for i := left; i < right; i++ {
		y0 := math.Max(values[i]-baseline, 0)
		y1 := math.Max(values[i+1]-baseline, 0)
		area += (times[i+1] - times[i]) * (y0 + y1) / 2
	}
	return area
}

// Median returns the median of values without modifying them. Empty input returns 0.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// MeanStd returns the mean and population standard deviation.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

// WidthBounds summarizes observed peak widths and clamps new widths into
// [Median, Mean+3*Std].
type WidthBounds struct {
	Median float64
	Upper  float64
}

// NewWidthBounds computes the bounds from widths. Non-positive widths are ignored.
func NewWidthBounds(widths []float64) WidthBounds {
	var pos []float64
	for _, w := range widths {
		if w > 0 && !math.IsInf(w, 0) {
			pos = append(pos, w)
		}
	}
	mean, std := MeanStd(pos)
	b := WidthBounds{Median: Median(pos), Upper: mean + 3*std}
	if b.Upper < b.Median {
		b.Upper = b.Median
	}
	return b
}

// Clamp bounds w. Zero bounds leave w unchanged.
func (b WidthBounds) Clamp(w float64) float64 {
	if b.Upper <= 0 {
		return w
	}
	if w < b.Median {
		return b.Median
	}
	if w > b.Upper {
		return b.Upper
	}
	return w
}

// Pearson returns the correlation coefficient of two equally long series.
// Degenerate input (length < 2 or zero variance) returns 0.
func Pearson(a, b []float64) float64 {
	n := len(a)
	if n < 2 || n != len(b) {
		return 0
	}
	ma, _ := MeanStd(a)
	mb, _ := MeanStd(b)
	var sab, saa, sbb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	if saa == 0 || sbb == 0 {
		return 0
	}
	return sab / math.Sqrt(saa*sbb)
}
