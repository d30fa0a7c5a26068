package ms2dec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/internal/synth"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/spotting"
)

var (
	fragmentsA = []core.Peak{{MZ: 100.1, Intensity: 1}, {MZ: 150.2, Intensity: 0.5}}
	fragmentsB = []core.Peak{{MZ: 120.3, Intensity: 1}, {MZ: 180.4, Intensity: 0.7}}
	allIons    = []core.Precursor{{SelectedMZ: 500, IsolationLower: 400, IsolationUpper: 400, CollisionEnergy: 20}}
)

type fixture struct {
	raw, acc source.Source
	features []*core.ChromatogramPeakFeature
	p        params.Params
}

func newFixture(t *testing.T, run synth.Run, p params.Params) fixture {
	t.Helper()
	raw := source.NewMemory(run.Spectra())
	acc := source.NewAccumulated(raw, 0)
	features, err := spotting.New().Run(context.Background(), raw, acc, p)
	require.NoError(t, err)
	return fixture{raw: raw, acc: acc, features: features, p: p}
}

func lcParams() params.Params {
	p := params.Default()
	p.Acquisition.Separation = params.SeparationLC
	p.Peak.MassRangeBegin = 290
	p.Peak.MassRangeEnd = 410
	p.Peak.MassSliceWidth = 0.5
	return p
}

func TestRawSpectrumForSingleCompound(t *testing.T) {
	run := synth.Run{
		Scans:  60,
		RTStep: 0.05,
		Compounds: []synth.Compound{
			{MZ: 301.141, RT: 1.5, RTSigma: 0.1, Height: 1e5, Fragments: fragmentsA},
		},
		MS2Windows: []core.Precursor{{SelectedMZ: 301.141, CollisionEnergy: 20}},
	}
	p := lcParams()
	p.Deconvolution.AccumulateMS2 = false
	fx := newFixture(t, run, p)
	require.Len(t, fx.features, 1)

	results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Deconvoluted)
	assert.Equal(t, fx.features[0].MasterPeakID, res.ScanID)
	assert.InDelta(t, 1.5, res.RetentionTime, 1e-9)

	frames, err := fx.acc.LoadMsNSpectra(context.Background(), 2)
	require.NoError(t, err)
	var apexFrame *core.RawSpectrum
	for _, f := range frames {
		if f.Index == res.RawSpectrumID {
			apexFrame = f
		}
	}
	require.NotNil(t, apexFrame)
	assert.Equal(t, 30, apexFrame.ScanNumber)
	assert.Equal(t, apexFrame.Peaks, res.Spectrum)
}

func coelutingRun() synth.Run {
	return synth.Run{
		Scans:  60,
		RTStep: 0.05,
		Compounds: []synth.Compound{
			{MZ: 301.141, RT: 1.25, RTSigma: 0.08, Height: 1e5, Fragments: fragmentsA},
			{MZ: 402.2, RT: 1.5, RTSigma: 0.08, Height: 1e5, Fragments: fragmentsB},
		},
		MS2Windows: allIons,
	}
}

func masses(peaks []core.Peak) []float64 {
	out := make([]float64, len(peaks))
	for i, p := range peaks {
		out[i] = core.RoundFloat(p.MZ, 4)
	}
	return out
}

func TestCorrelationGroupingSeparatesCoelutingCompounds(t *testing.T) {
	p := lcParams()
	p.Acquisition.Type = params.AIF
	fx := newFixture(t, coelutingRun(), p)
	require.Len(t, fx.features, 2)

	results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
	require.NoError(t, err)
	require.Len(t, results, 2)

	a, b := results[0], results[1]
	assert.True(t, a.Deconvoluted)
	assert.Equal(t, []float64{100.1, 150.2}, masses(a.Spectrum))
	assert.Greater(t, a.Correlation, 0.9)
	assert.True(t, b.Deconvoluted)
	assert.Equal(t, []float64{120.3, 180.4}, masses(b.Spectrum))

	// The fragment ratio is preserved at the apex
	assert.InDelta(t, 0.5, a.Spectrum[1].Intensity/a.Spectrum[0].Intensity, 1e-6)
}

func TestDisabledDeconvolutionReturnsMixedSpectrum(t *testing.T) {
	p := lcParams()
	p.Acquisition.Type = params.AIF
	p.Deconvolution.Enabled = false
	fx := newFixture(t, coelutingRun(), p)

	results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Deconvoluted)
	assert.Equal(t, []float64{100.1, 120.3, 150.2, 180.4}, masses(results[0].Spectrum))
}

func TestNoMS2GivesEmptyResult(t *testing.T) {
	run := synth.Run{
		Scans:     60,
		RTStep:    0.05,
		Compounds: []synth.Compound{{MZ: 301.141, RT: 1.5, RTSigma: 0.1, Height: 1e5}},
	}
	p := lcParams()
	fx := newFixture(t, run, p)
	require.Len(t, fx.features, 1)

	results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsEmpty())
	assert.NotNil(t, results[0].Spectrum)
	assert.Equal(t, -1, results[0].RawSpectrumID)
	assert.Equal(t, fx.features[0].MasterPeakID, results[0].ScanID)
}

func TestOneResultPerNode(t *testing.T) {
	run := synth.Run{
		Scans:      40,
		RTStep:     0.05,
		DriftScans: 20,
		DriftStep:  1.0,
		Compounds: []synth.Compound{
			{MZ: 301.141, RT: 1.0, RTSigma: 0.1, Drift: 6, DriftSigma: 1.5, Height: 1e5, Fragments: fragmentsA},
			{MZ: 301.141, RT: 1.0, RTSigma: 0.1, Drift: 15, DriftSigma: 1.5, Height: 5e4, Fragments: fragmentsB},
			{MZ: 350.2, RT: 1.4, RTSigma: 0.1, Drift: 10, DriftSigma: 1.5, Height: 5e4},
		},
		MS2Windows: []core.Precursor{{SelectedMZ: 301.141, CollisionEnergy: 20}},
	}
	p := params.Default()
	p.Acquisition.Type = params.SWATH
	p.Peak.MassRangeBegin = 300
	p.Peak.MassRangeEnd = 360
	p.Peak.MassSliceWidth = 0.5
	fx := newFixture(t, run, p)
	require.Len(t, fx.features, 2)

	for _, threads := range []int{1, 4} {
		p.Run.Threads = threads
		results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
		require.NoError(t, err)
		require.Len(t, results, core.NodeCount(fx.features))

		for i, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, i, res.ScanID)
		}
	}

	// Drift sub-features of the co-eluting isomers resolve their own fragments
	p.Run.Threads = 1
	results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
	require.NoError(t, err)
	rt := fx.features[0]
	require.Len(t, rt.DriftFeatures, 2)
	first := results[rt.DriftFeatures[0].MasterPeakID]
	second := results[rt.DriftFeatures[1].MasterPeakID]
	assert.Equal(t, core.AxisDrift, first.Axis)
	assert.InDelta(t, 6.0, first.DriftTime, 1e-9)
	assert.Equal(t, []float64{100.1, 150.2}, masses(first.Spectrum))
	assert.Equal(t, []float64{120.3, 180.4}, masses(second.Spectrum))

	// The second feature has no MS2 window
	assert.True(t, results[fx.features[1].MasterPeakID].IsEmpty())
}

func TestDriftNodeWithoutAccumulation(t *testing.T) {
	run := synth.Run{
		Scans:      40,
		RTStep:     0.05,
		DriftScans: 20,
		DriftStep:  1.0,
		Compounds: []synth.Compound{
			{MZ: 301.141, RT: 1.0, RTSigma: 0.1, Drift: 6, DriftSigma: 1.5, Height: 1e5, Fragments: fragmentsA},
		},
		MS2Windows: []core.Precursor{{SelectedMZ: 301.141, CollisionEnergy: 20}},
	}
	p := params.Default()
	p.Acquisition.Type = params.SWATH
	p.Peak.MassRangeBegin = 290
	p.Peak.MassRangeEnd = 310
	p.Peak.MassSliceWidth = 0.5
	p.Deconvolution.AccumulateMS2 = false
	fx := newFixture(t, run, p)
	require.Len(t, fx.features, 1)
	rt := fx.features[0]
	require.NotEmpty(t, rt.DriftFeatures)

	for _, enabled := range []bool{true, false} {
		p.Deconvolution.Enabled = enabled
		results, err := New().Run(context.Background(), fx.raw, fx.acc, fx.features, p)
		require.NoError(t, err)
		require.Len(t, results, core.NodeCount(fx.features))

		// One peak per fragment, however many RT scans the drift slot sums
		res := results[rt.DriftFeatures[0].MasterPeakID]
		assert.Equal(t, core.AxisDrift, res.Axis)
		assert.Equal(t, []float64{100.1, 150.2}, masses(res.Spectrum), "deconvolution enabled=%v", enabled)
	}
}

func TestRunCanceled(t *testing.T) {
	p := lcParams()
	fx := newFixture(t, coelutingRun(), p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New().Run(ctx, fx.raw, fx.acc, fx.features, p)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEnergyTarget(t *testing.T) {
	ce := 35.0
	tests := []struct {
		name       string
		targets    []float64
		configured *float64
		want       float64
		selects    bool
	}{
		{"none acquired", nil, nil, 0, false},
		{"single energy", []float64{20}, nil, 20, false},
		{"lowest of several", []float64{10, 20, 40}, nil, 10, true},
		{"configured", []float64{10, 35}, &ce, 35, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sel := energyTarget(tt.targets, tt.configured)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.selects, sel)
		})
	}

	spectra := []*core.RawSpectrum{
		{MSLevel: 2, Precursor: &core.Precursor{CollisionEnergy: 10}},
		{MSLevel: 2, Precursor: &core.Precursor{CollisionEnergy: 20}},
	}
	assert.Len(t, atEnergy(spectra, 20, true), 1)
	assert.Len(t, atEnergy(spectra, 20, false), 2)
}
