package chrom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

func gaussian(n int, center, sigma, height float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		d := (float64(i) - center) / sigma
		out[i] = height * math.Exp(-d*d/2)
	}
	return out
}

func TestDetectPeaks(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		cfg    DetectorConfig
		apexes []int
	}{
		{"single gaussian", gaussian(21, 10, 2, 1000), DetectorConfig{MinimumDatapoints: 5, MinimumAmplitude: 100}, []int{10}},
		{"two gaussians", addSeries(gaussian(41, 10, 2, 1000), gaussian(41, 30, 2, 500)), DetectorConfig{MinimumDatapoints: 5, MinimumAmplitude: 100}, []int{10, 30}},
		{"below amplitude", gaussian(21, 10, 2, 50), DetectorConfig{MinimumDatapoints: 5, MinimumAmplitude: 100}, nil},
		{"too narrow", []float64{0, 0, 0, 500, 0, 0, 0}, DetectorConfig{MinimumDatapoints: 5, MinimumAmplitude: 100}, nil},
		{"plateau", []float64{0, 10, 200, 200, 200, 10, 0}, DetectorConfig{MinimumDatapoints: 5, MinimumAmplitude: 100}, []int{2}},
		{"rising edge", []float64{0, 100, 200, 300, 400}, DetectorConfig{MinimumDatapoints: 3}, nil},
		{"all zero", make([]float64, 10), DetectorConfig{MinimumDatapoints: 3}, nil},
		{"too short", []float64{1, 2}, DetectorConfig{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peaks := DetectPeaks(tt.values, tt.cfg)
			var apexes []int
			for _, p := range peaks {
				assert.LessOrEqual(t, p.Left, p.Apex)
				assert.LessOrEqual(t, p.Apex, p.Right)
				apexes = append(apexes, p.Apex)
			}
			assert.Equal(t, tt.apexes, apexes)
		})
	}
}

func TestDetectPeaksShoulderRejected(t *testing.T) {
	// A small bump on the tail of a large peak has little prominence
	values := gaussian(31, 10, 2, 1000)
	values[17] += 50
	peaks := DetectPeaks(values, DetectorConfig{MinimumDatapoints: 3, MinimumAmplitude: 100})
	require.Len(t, peaks, 1)
	assert.Equal(t, 10, peaks[0].Apex)
	assert.Equal(t, 16, peaks[0].Right)
}

func addSeries(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func TestSmooth(t *testing.T) {
	values := []float64{0, 0, 9, 0, 0}
	tests := []struct {
		method SmoothingMethod
		want   float64 // center after smoothing with level 1
	}{
		{SimpleMovingAverage, 3},
		{LinearWeightedMovingAverage, 4.5},
		{Binomial, 4.5},
		{NoSmoothing, 9},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			got := Smooth(values, tt.method, 1)
			require.Len(t, got, len(values))
			assert.InDelta(t, tt.want, got[2], 1e-9)
		})
	}

	// Input is not modified and level 0 copies
	got := Smooth(values, SimpleMovingAverage, 0)
	assert.Equal(t, values, got)
	assert.Equal(t, 9.0, values[2])
}

func TestSmoothPreservesConstant(t *testing.T) {
	values := []float64{5, 5, 5, 5, 5, 5}
	for _, m := range []SmoothingMethod{SimpleMovingAverage, LinearWeightedMovingAverage, Binomial} {
		for _, v := range Smooth(values, m, 2) {
			assert.InDelta(t, 5.0, v, 1e-9, "method %s", m)
		}
	}
}

func TestParseSmoothingMethod(t *testing.T) {
	m, err := ParseSmoothingMethod(" LWMA ")
	require.NoError(t, err)
	assert.Equal(t, LinearWeightedMovingAverage, m)

	_, err = ParseSmoothingMethod("savitzky")
	assert.Error(t, err)
}

func TestStatistics(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)

	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-9)
	assert.Equal(t, 0.0, Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, Pearson([]float64{1}, []float64{1}))
}

func TestWidthBounds(t *testing.T) {
	b := NewWidthBounds([]float64{1, 1, 1, 1, 0, -1})
	assert.Equal(t, 1.0, b.Median)
	assert.Equal(t, 1.0, b.Clamp(0.2))
	assert.Equal(t, 1.0, b.Clamp(5))

	b = NewWidthBounds([]float64{1, 2, 3})
	assert.Equal(t, 2.0, b.Clamp(0.5))
	assert.Equal(t, 2.5, b.Clamp(2.5))

	assert.Equal(t, 0.7, WidthBounds{}.Clamp(0.7))
}

func TestAreaAndBaseline(t *testing.T) {
	times := []float64{0, 1, 2}
	values := []float64{0, 10, 0}
	assert.InDelta(t, 10.0, TrapezoidArea(times, values, 0, 2, 0), 1e-9)
	assert.InDelta(t, 0.0, TrapezoidArea(times, values, 0, 2, 20), 1e-9)

	assert.InDelta(t, 15.0, LinearBaseline([]float64{10, 99, 20}, 0, 1, 2), 1e-9)
	assert.InDelta(t, 10.0, LinearBaseline([]float64{10}, 0, 0, 0), 1e-9)
}

func TestEstimateNoise(t *testing.T) {
	assert.Equal(t, 1.0, EstimateNoise([]float64{0, 0, 0}))
	assert.InDelta(t, 2.0, EstimateNoise([]float64{10, 12, 10, 12, 10}), 1e-9)
}

func scans() []*core.RawSpectrum {
	var out []*core.RawSpectrum
	for scan := 1; scan <= 3; scan++ {
		for drift := 1; drift <= 2; drift++ {
			out = append(out, &core.RawSpectrum{
				ScanNumber:      scan,
				ScanStartTime:   float64(scan),
				MSLevel:         1,
				DriftScanNumber: drift,
				DriftTime:       float64(drift) * 10,
				Peaks: []core.Peak{
					{MZ: 150.0, Intensity: 1},
					{MZ: 200.001, Intensity: float64(scan * drift)},
					{MZ: 200.004, Intensity: 1},
				},
			})
		}
	}
	return out
}

func TestExtractEIC(t *testing.T) {
	c := ExtractEIC(scans(), 200.0, 0.01, 2, 3)
	assert.Equal(t, core.AxisRT, c.Axis)
	require.Len(t, c.Points, 4)
	assert.Equal(t, 2, c.Points[0].ScanNumber)
	assert.InDelta(t, 3.0, c.Points[0].Intensity, 1e-9)
	assert.InDelta(t, 200.001, c.Points[0].MZ, 1e-9)
	assert.False(t, c.IsEmpty())

	assert.Empty(t, ExtractEIC(scans(), 200.0, 0, 0, 10).Points)
	assert.Empty(t, ExtractEIC(scans(), 200.0, 0.01, 5, 1).Points)
	assert.True(t, ExtractEIC(scans(), 500.0, 0.01, 0, 10).IsEmpty())
}

func TestExtractMobilogram(t *testing.T) {
	c := ExtractMobilogram(scans(), 200.0, 0.01, 1, 2)
	assert.Equal(t, core.AxisDrift, c.Axis)
	require.Len(t, c.Points, 2)

	// drift 1: (1+1)+(2+1), drift 2: (2+1)+(4+1)
	assert.Equal(t, 1, c.Points[0].DriftScanNumber)
	assert.InDelta(t, 10.0, c.Points[0].Time, 1e-9)
	assert.InDelta(t, 5.0, c.Points[0].Intensity, 1e-9)
	assert.InDelta(t, 8.0, c.Points[1].Intensity, 1e-9)
	assert.Equal(t, 2, c.Points[1].ScanNumber)
	assert.Equal(t, []float64{5, 8}, c.Intensities())
}
