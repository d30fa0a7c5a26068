package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

func imsSpectra() []*core.RawSpectrum {
	var out []*core.RawSpectrum
	for scan := 1; scan <= 2; scan++ {
		for drift := 1; drift <= 3; drift++ {
			out = append(out, &core.RawSpectrum{
				ScanNumber:      scan,
				ScanStartTime:   float64(scan) * 0.1,
				MSLevel:         1,
				DriftScanNumber: drift,
				DriftTime:       float64(drift),
				Peaks: []core.Peak{
					{MZ: 200.0001, Intensity: 10},
					{MZ: 300.0, Intensity: float64(drift)},
				},
			})
		}
	}
	out = append(out, &core.RawSpectrum{
		ScanNumber:    1,
		ScanStartTime: 0.1,
		MSLevel:       2,
		Precursor:     &core.Precursor{SelectedMZ: 300, CollisionEnergy: 20},
		Peaks:         []core.Peak{{MZ: 100, Intensity: 5}},
	}, &core.RawSpectrum{
		ScanNumber:    2,
		ScanStartTime: 0.2,
		MSLevel:       2,
		Precursor:     &core.Precursor{SelectedMZ: 300, CollisionEnergy: 10},
		Peaks:         []core.Peak{{MZ: 100, Intensity: 5}},
	})
	return out
}

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemory(imsSpectra())

	ms1, err := src.LoadMS1Spectra(ctx)
	require.NoError(t, err)
	assert.Len(t, ms1, 6)

	ms2, err := src.LoadMsNSpectra(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ms2, 2)

	all, err := src.LoadAllSpectra(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
	for i, s := range all {
		assert.Equal(t, i, s.Index)
	}

	ces, err := src.LoadCollisionEnergyTargets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, ces)
}

func TestMemorySourceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory(imsSpectra()).LoadMS1Spectra(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAccumulatedSumsDriftSlices(t *testing.T) {
	ctx := context.Background()
	acc := NewAccumulated(NewMemory(imsSpectra()), 0)

	frames, err := acc.LoadMS1Spectra(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	f := frames[0]
	assert.Equal(t, 1, f.ScanNumber)
	assert.Equal(t, 0, f.DriftScanNumber)
	require.Len(t, f.Peaks, 2)
	assert.InDelta(t, 200.0001, f.Peaks[0].MZ, 1e-9)
	assert.InDelta(t, 30.0, f.Peaks[0].Intensity, 1e-9)
	assert.InDelta(t, 6.0, f.Peaks[1].Intensity, 1e-9)
	assert.InDelta(t, 36.0, f.TotalIonCurrent, 1e-9)

	// Cached frames are returned on the second call
	again, err := acc.LoadMS1Spectra(ctx)
	require.NoError(t, err)
	assert.Same(t, frames[0], again[0])
}

func TestAccumulatedKeepsPrecursorFramesApart(t *testing.T) {
	acc := NewAccumulated(NewMemory(imsSpectra()), 0)
	ms2, err := acc.LoadMsNSpectra(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, ms2, 2)
	assert.Equal(t, 20.0, ms2[0].Precursor.CollisionEnergy)

	all, err := acc.LoadAllSpectra(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLoadMsNSpectraAsync(t *testing.T) {
	ch := LoadMsNSpectraAsync(context.Background(), NewMemory(imsSpectra()), 2)
	res := <-ch
	require.NoError(t, res.Err)
	assert.Len(t, res.Spectra, 2)

	_, open := <-ch
	assert.False(t, open)
}
