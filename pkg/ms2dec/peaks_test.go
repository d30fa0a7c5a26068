package ms2dec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

func TestMergePeaks(t *testing.T) {
	peaks := []core.Peak{
		{MZ: 200.02, Intensity: 10},
		{MZ: 100.00, Intensity: 30},
		{MZ: 100.01, Intensity: 10},
		{MZ: 200.00, Intensity: 10},
		{MZ: 300.00, Intensity: 0},
	}
	got := MergePeaks(peaks, 0.025)
	require.Len(t, got, 2)
	assert.InDelta(t, 100.0025, got[0].MZ, 1e-9)
	assert.InDelta(t, 40.0, got[0].Intensity, 1e-9)
	assert.InDelta(t, 200.01, got[1].MZ, 1e-9)
	assert.InDelta(t, 20.0, got[1].Intensity, 1e-9)

	// Input untouched
	assert.Equal(t, 200.02, peaks[0].MZ)
	assert.Empty(t, MergePeaks(nil, 0.01))
	assert.NotNil(t, MergePeaks(nil, 0.01))
}

func TestCentroid(t *testing.T) {
	profile := []core.Peak{
		{MZ: 99.99, Intensity: 10},
		{MZ: 100.00, Intensity: 50},
		{MZ: 100.01, Intensity: 10},
		{MZ: 100.02, Intensity: 0},
		{MZ: 150.00, Intensity: 20},
	}
	got := Centroid(profile, 0.015)
	require.Len(t, got, 2)
	assert.InDelta(t, 100.0, got[0].MZ, 1e-9)
	assert.Equal(t, 50.0, got[0].Intensity)
	assert.InDelta(t, 150.0, got[1].MZ, 1e-9)
	assert.Equal(t, 20.0, got[1].Intensity)

	assert.Empty(t, Centroid(nil, 0.01))
}

func TestDeisotope(t *testing.T) {
	peaks := []core.Peak{
		{MZ: 100.0, Intensity: 100},
		{MZ: 100.0 + core.C13C12Diff, Intensity: 10},
		{MZ: 100.0 + 2*core.C13C12Diff, Intensity: 2},
		{MZ: 150.0, Intensity: 5},
		// More intense than its would-be parent, so kept
		{MZ: 150.0 + core.C13C12Diff, Intensity: 50},
	}
	got := Deisotope(peaks, 0.01)
	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].MZ)
	assert.InDelta(t, 112.0, got[0].Intensity, 1e-9)
	assert.Equal(t, 150.0, got[1].MZ)
	assert.InDelta(t, 150.0+core.C13C12Diff, got[2].MZ, 1e-9)
}

func TestRestorePrecursorIsotopes(t *testing.T) {
	prec := 300.0
	deconvoluted := []core.Peak{{MZ: 120, Intensity: 50}, {MZ: 300.0, Intensity: 5}}
	raw := []core.Peak{
		{MZ: 120, Intensity: 60},
		{MZ: 300.0, Intensity: 80},
		{MZ: 300.0 + core.C13C12Diff, Intensity: 16},
	}
	got := restorePrecursorIsotopes(deconvoluted, raw, prec, 0.01)
	require.Len(t, got, 3)
	assert.Equal(t, core.Peak{MZ: 120, Intensity: 50}, got[0])
	assert.Equal(t, 80.0, got[1].Intensity)
	assert.Equal(t, 16.0, got[2].Intensity)
}

func TestGroupByCorrelationNoApexConsistentFragment(t *testing.T) {
	window := make([]slot, 9)
	for i := range window {
		window[i] = slot{axis: float64(i)}
	}
	// The only fragment peaks at the window edge, far from the apex slot
	window[8].peaks = []core.Peak{{MZ: 100, Intensity: 10}}
	_, ok := groupByCorrelation(window, 4, []core.Peak{{MZ: 100, Intensity: 10}}, 0.01, chrom.NoSmoothing, 0.7)
	assert.False(t, ok)
}

func TestNearest(t *testing.T) {
	slots := []slot{{axis: 1}, {axis: 2}, {axis: 3}}
	assert.Equal(t, 1, nearest(slots, 2.2))
	assert.Equal(t, 0, nearest(slots, 1.5))
	assert.Equal(t, 2, nearest(slots, 10))
}

func TestDriftSlotsMergeAcrossRTScans(t *testing.T) {
	prec := &core.Precursor{SelectedMZ: 301.141}
	frag := func(scale float64) []core.Peak {
		return []core.Peak{{MZ: 100.1, Intensity: 10 * scale}, {MZ: 150.2, Intensity: 5 * scale}}
	}
	var scans []*core.RawSpectrum
	for i, rt := range []float64{0.9, 1.0, 1.1} {
		for d := 0; d < 3; d++ {
			scans = append(scans, &core.RawSpectrum{
				Index:           len(scans),
				ScanNumber:      i,
				ScanStartTime:   rt,
				DriftScanNumber: d,
				DriftTime:       float64(5 + d),
				Precursor:       prec,
				Peaks:           frag(float64(i + 1)),
			})
		}
	}
	parent := &core.ChromatogramPeakFeature{
		Left:  core.ChromatogramPeak{Time: 0.9},
		Apex:  core.ChromatogramPeak{Time: 1.0},
		Right: core.ChromatogramPeak{Time: 1.1},
	}

	slots := driftSlots(scans, 301.141, parent, 5.5, 7, 0.01)
	require.Len(t, slots, 2)
	assert.Equal(t, 6.0, slots[0].axis)
	assert.Equal(t, 7.0, slots[1].axis)
	for _, s := range slots {
		require.Len(t, s.peaks, 2)
		assert.InDelta(t, 100.1, s.peaks[0].MZ, 1e-9)
		assert.InDelta(t, 60.0, s.peaks[0].Intensity, 1e-9)
		assert.InDelta(t, 150.2, s.peaks[1].MZ, 1e-9)
		assert.InDelta(t, 30.0, s.peaks[1].Intensity, 1e-9)
	}
	// Representative scan is the one at the parent apex
	assert.Equal(t, 4, slots[0].index)
	assert.Equal(t, 5, slots[1].index)
}
