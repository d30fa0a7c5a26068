package annotation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

func TestCompareSpectra(t *testing.T) {
	spec := []core.Peak{{MZ: 100, Intensity: 100}, {MZ: 150, Intensity: 50}, {MZ: 200, Intensity: 20}}

	tests := []struct {
		name        string
		exp, ref    []core.Peak
		wdot, rdot  float64
		matchedPct  float64
		matchedPeak int
	}{
		{"identical", spec, spec, 1, 1, 1, 3},
		{"disjoint", spec, []core.Peak{{MZ: 300, Intensity: 10}}, 0, 0, 0, 0},
		{"empty experimental", nil, spec, 0, 0, 0, 0},
		{
			"half of reference",
			spec,
			[]core.Peak{{MZ: 100, Intensity: 100}, {MZ: 300, Intensity: 100}},
			100 / math.Sqrt(170*200), 100 / math.Sqrt(100*200), 0.5, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareSpectra(tt.exp, tt.ref, 0.01)
			assert.InDelta(t, tt.wdot, got.WeightedDotProduct, 1e-9)
			assert.InDelta(t, tt.rdot, got.ReverseDotProduct, 1e-9)
			assert.InDelta(t, tt.matchedPct, got.MatchedPeaksPercentage, 1e-9)
			assert.Equal(t, tt.matchedPeak, got.MatchedPeaksCount)
		})
	}
}

func TestCompareSpectraScaleInvariant(t *testing.T) {
	a := []core.Peak{{MZ: 90, Intensity: 3}, {MZ: 100, Intensity: 10}, {MZ: 110.005, Intensity: 4}}
	b := []core.Peak{{MZ: 90, Intensity: 300}, {MZ: 100, Intensity: 1000}, {MZ: 110, Intensity: 400}}
	got := CompareSpectra(a, b, 0.01)
	assert.InDelta(t, 1.0, got.WeightedDotProduct, 1e-9)
	assert.InDelta(t, 1.0, got.ReverseDotProduct, 1e-9)
}

func TestGaussianSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, GaussianSimilarity(0, 0.01))
	assert.InDelta(t, math.Exp(-0.5), GaussianSimilarity(0.01, 0.01), 1e-12)
	assert.Zero(t, GaussianSimilarity(0.01, 0))
	assert.Zero(t, GaussianSimilarity(math.NaN(), 0.01))
}

func TestWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	refs := make([]*core.MoleculeMsReference, 500)
	for i := range refs {
		refs[i] = &core.MoleculeMsReference{PrecursorMZ: 100 + rng.Float64()*900}
	}
	SortReferences(refs)
	require.True(t, ReferencesSorted(refs))

	for _, mass := range []float64{100, 250.5, 500.1, 999.9, 50, 1200} {
		tol := core.ToleranceAt(mass, 0.01, 500)
		lo, hi := Window(refs, mass, tol)
		for i, r := range refs {
			inside := r.PrecursorMZ >= mass-tol && r.PrecursorMZ <= mass+tol
			assert.Equal(t, inside, i >= lo && i < hi, "mass %v ref %d", mass, i)
		}
	}

	// Boundaries are inclusive
	edge := []*core.MoleculeMsReference{{PrecursorMZ: 99.5}, {PrecursorMZ: 100}, {PrecursorMZ: 100.5}, {PrecursorMZ: 101}}
	lo, hi := Window(edge, 100, 0.5)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 3, hi)

	lo, hi = Window(nil, 100, 0.5)
	assert.Equal(t, lo, hi)
}

func TestSortReferencesRenumbers(t *testing.T) {
	refs := []*core.MoleculeMsReference{
		{Name: "c", PrecursorMZ: 300},
		{Name: "a", PrecursorMZ: 100},
		{Name: "b", PrecursorMZ: 200},
	}
	assert.False(t, ReferencesSorted(refs))
	SortReferences(refs)
	for i, r := range refs {
		assert.Equal(t, i, r.ScanID)
	}
	assert.Equal(t, "a", refs[0].Name)
}

func TestIsotopePattern(t *testing.T) {
	peaks := []core.Peak{
		{MZ: 300.0, Intensity: 1000},
		{MZ: 300.0 + core.C13C12Diff, Intensity: 200},
		{MZ: 300.0 + 2*core.C13C12Diff, Intensity: 30},
	}
	s := IsotopePattern(peaks, 300.0, 0.01)
	assert.InDelta(t, 0.2, s.M1Ratio, 1e-12)
	assert.InDelta(t, 0.03, s.M2Ratio, 1e-12)
	assert.True(t, s.Available())

	s = IsotopePattern(peaks[1:], 300.0, 0.01)
	assert.Equal(t, core.IsotopeRatioUnavailable, s.M1Ratio)
	assert.False(t, math.IsNaN(s.M2Ratio))
}

func TestScoreUsesFormulaIsotopes(t *testing.T) {
	f, err := core.ParseFormula("C10H12N2O")
	require.NoError(t, err)
	m1, m2 := f.IsotopeRatios()

	s := scorer{useIsotopes: true}
	q := query{
		mass:     177.1,
		tol:      0.01,
		isotopes: &core.IsotopeSummary{M1Ratio: m1, M2Ratio: m2},
	}
	res := s.score(q, &core.MoleculeMsReference{PrecursorMZ: 177.1, Formula: "C10H12N2O"}, true)
	assert.InDelta(t, 1.0, res.IsotopeSimilarity, 1e-12)
	assert.InDelta(t, 1.0, res.TotalScore, 1e-12)

	// No formula, no isotope term
	res = s.score(q, &core.MoleculeMsReference{PrecursorMZ: 177.105}, true)
	assert.Zero(t, res.IsotopeSimilarity)
	assert.InDelta(t, res.AccurateMassSimilarity, res.TotalScore, 1e-12)
}

func TestAccepts(t *testing.T) {
	s := scorer{totalCutoff: 0.8}
	tests := []struct {
		name string
		r    core.MsScanMatchResult
		want bool
	}{
		{"precursor only below cutoff", core.MsScanMatchResult{IsPrecursorMzMatch: true, TotalScore: 0.2}, true},
		{"precursor and spectrum", core.MsScanMatchResult{IsPrecursorMzMatch: true, IsSpectrumMatch: true, TotalScore: 0.9}, true},
		{"spectrum above cutoff", core.MsScanMatchResult{IsSpectrumMatch: true, TotalScore: 0.85}, true},
		{"spectrum below cutoff", core.MsScanMatchResult{IsSpectrumMatch: true, TotalScore: 0.5}, false},
		{"neither", core.MsScanMatchResult{TotalScore: 0.95}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.accepts(tt.r))
		})
	}
}

func TestFrameAt(t *testing.T) {
	frames := []*core.RawSpectrum{
		{ScanNumber: 1, ScanStartTime: 0.1},
		{ScanNumber: 2, ScanStartTime: 0.2},
		{ScanNumber: 3, ScanStartTime: 0.3},
	}
	assert.Equal(t, 2, frameAt(frames, 2, 0.2).ScanNumber)
	assert.Equal(t, 3, frameAt(frames, 9, 0.29).ScanNumber)
	assert.Equal(t, 1, frameAt(frames, 9, -1).ScanNumber)
	assert.Equal(t, 3, frameAt(frames, 9, 10).ScanNumber)
	assert.Nil(t, frameAt(nil, 1, 0))
}
