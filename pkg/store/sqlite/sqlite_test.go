package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/internal/synth"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
)

func TestLibraryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.sqlite")
	w, err := NewLibraryWriter(path)
	require.NoError(t, err)

	refs := []*core.MoleculeMsReference{
		{
			Name:          "Tryptophan",
			PrecursorMZ:   205.0972,
			PrecursorType: "[M+H]+",
			Formula:       "C11H12N2O2",
			InChIKey:      "QIVBCDIJIAJPQS-VIFPVBQESA-N",
			Ontology:      "Indolyl carboxylic acids",
			RetentionTime: 3.21,
			CCS:           145.3,
			Spectrum:      []core.Peak{{MZ: 188.0706, Intensity: 1000}, {MZ: 146.06, Intensity: 620}},
			SourceFile:    "a.msp",
		},
		{
			Name:          "Citrate",
			PrecursorMZ:   191.0197,
			PrecursorType: "[M-H]-",
			Polarity:      core.Negative,
			Spectrum:      []core.Peak{},
		},
	}
	for _, r := range refs {
		require.NoError(t, w.WriteReference(r))
	}
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Finalize())

	got, err := ReadLibrary(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by precursor m/z
	cit, trp := got[0], got[1]
	assert.Equal(t, "Citrate", cit.Name)
	assert.Equal(t, 0, cit.ScanID)
	assert.Equal(t, core.Negative, cit.Polarity)
	assert.Empty(t, cit.Spectrum)

	assert.Equal(t, 1, trp.ScanID)
	assert.Equal(t, 205.0972, trp.PrecursorMZ)
	assert.Equal(t, "C11H12N2O2", trp.Formula)
	assert.Equal(t, "Indolyl carboxylic acids", trp.Ontology)
	assert.Equal(t, 145.3, trp.CCS)
	assert.Equal(t, 3.21, trp.RetentionTime)
	assert.Equal(t, "a.msp", trp.SourceFile)
	// Stored sorted
	assert.Equal(t, []core.Peak{{MZ: 146.06, Intensity: 620}, {MZ: 188.0706, Intensity: 1000}}, trp.Spectrum)
	// The caller's slice is untouched
	assert.Equal(t, 188.0706, refs[0].Spectrum[0].MZ)
}

func TestLibraryWriterRejectsInvalid(t *testing.T) {
	w, err := NewLibraryWriter(filepath.Join(t.TempDir(), "lib.sqlite"))
	require.NoError(t, err)
	defer w.Finalize()

	assert.Error(t, w.WriteReference(&core.MoleculeMsReference{Name: "x"}))
	assert.Equal(t, 0, w.Count())
}

func TestReadLibraryMissingFile(t *testing.T) {
	_, err := ReadLibrary(context.Background(), filepath.Join(t.TempDir(), "missing.sqlite"))
	assert.Error(t, err)
}

func TestRawSourceMatchesMemory(t *testing.T) {
	run := synth.Run{
		Scans:      6,
		RTStep:     0.1,
		DriftScans: 3,
		DriftStep:  2.0,
		Compounds: []synth.Compound{
			{MZ: 300.1, RT: 0.3, RTSigma: 0.1, Drift: 2, DriftSigma: 1, Height: 1e4,
				Fragments: []core.Peak{{MZ: 120.1, Intensity: 1}}},
		},
		MS2Windows: []core.Precursor{
			{SelectedMZ: 300.1, IsolationLower: 1, IsolationUpper: 1, CollisionEnergy: 20},
			{SelectedMZ: 300.1, IsolationLower: 1, IsolationUpper: 1, CollisionEnergy: 40},
		},
	}

	path := filepath.Join(t.TempDir(), "raw.sqlite")
	w, err := NewRawWriter(path)
	require.NoError(t, err)
	for _, s := range run.Spectra() {
		require.NoError(t, w.WriteSpectrum(s))
	}
	require.NoError(t, w.Close())

	src, err := OpenRawSource(path, nil)
	require.NoError(t, err)
	defer src.Close()
	mem := source.NewMemory(run.Spectra())

	ctx := context.Background()
	for _, level := range []int{1, 2} {
		want, err := mem.LoadMsNSpectra(ctx, level)
		require.NoError(t, err)
		got, err := src.LoadMsNSpectra(ctx, level)
		require.NoError(t, err)
		assert.Equal(t, want, got, "level %d", level)
	}

	all, err := src.LoadAllSpectra(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6*3*3)
	for i, s := range all {
		assert.Equal(t, i, s.Index)
	}

	ces, err := src.LoadCollisionEnergyTargets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 40}, ces)

	// Works behind the accumulating decorator
	frames, err := source.NewAccumulated(src, 0).LoadMS1Spectra(ctx)
	require.NoError(t, err)
	assert.Len(t, frames, 6)
}

func TestRawSourceCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.sqlite")
	w, err := NewRawWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	src, err := OpenRawSource(path, nil)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.LoadMS1Spectra(ctx)
	assert.Error(t, err)
}

func TestDecodePeaksRejectsCorruptBlobs(t *testing.T) {
	_, err := decodePeaks(make([]byte, 8), make([]byte, 16))
	assert.Error(t, err)
	_, err = decodePeaks(make([]byte, 7), make([]byte, 7))
	assert.Error(t, err)

	peaks := []core.Peak{{MZ: 1.5, Intensity: 2.5}}
	got, err := decodePeaks(encodePeaksFloat64(peaks, true), encodePeaksFloat64(peaks, false))
	require.NoError(t, err)
	assert.Equal(t, peaks, got)
}
