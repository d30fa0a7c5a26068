// Package source defines the spectrum source capability consumed by the
// processing pipeline, with an in-memory adapter and a drift-accumulating decorator.
package source

import (
	"context"
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Source supplies raw scans. Returned spectra are shared and must not be modified.
type Source interface {
	// LoadMS1Spectra returns every MS1 scan ordered by scan start time.
	LoadMS1Spectra(ctx context.Context) ([]*core.RawSpectrum, error)
	// LoadAllSpectra returns every scan in acquisition order.
	LoadAllSpectra(ctx context.Context) ([]*core.RawSpectrum, error)
	// LoadMsNSpectra returns the scans of one MS level ordered by scan start time.
	LoadMsNSpectra(ctx context.Context, level int) ([]*core.RawSpectrum, error)
	// LoadCollisionEnergyTargets returns the distinct MS2 collision energies in ascending order.
	LoadCollisionEnergyTargets(ctx context.Context) ([]float64, error)
}

// Loaded is the outcome of an asynchronous load.
type Loaded struct {
	Spectra []*core.RawSpectrum
	Err     error
}

// LoadMsNSpectraAsync starts loading one MS level in the background. The
// returned channel delivers exactly one value and is then closed.
func LoadMsNSpectraAsync(ctx context.Context, src Source, level int) <-chan Loaded {
	out := make(chan Loaded, 1)
	go func() {
		defer close(out)
		spectra, err := src.LoadMsNSpectra(ctx, level)
		out <- Loaded{Spectra: spectra, Err: err}
	}()
	return out
}

// Memory is a Source over spectra already held in memory.
type Memory struct {
	spectra []*core.RawSpectrum
}

// NewMemory creates a Memory source. Index fields are renumbered to match the
// order of spectra and every scan's summary fields are refreshed.
func NewMemory(spectra []*core.RawSpectrum) *Memory {
	for i, s := range spectra {
		s.Index = i
		s.UpdateSummary()
	}
	return &Memory{spectra: spectra}
}

// LoadMS1Spectra implements Source.
func (m *Memory) LoadMS1Spectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	return m.LoadMsNSpectra(ctx, 1)
}

// LoadAllSpectra implements Source.
func (m *Memory) LoadAllSpectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*core.RawSpectrum, len(m.spectra))
	copy(out, m.spectra)
	return out, nil
}

// LoadMsNSpectra implements Source.
func (m *Memory) LoadMsNSpectra(ctx context.Context, level int) ([]*core.RawSpectrum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return SelectLevel(m.spectra, level), nil
}

// LoadCollisionEnergyTargets implements Source.
func (m *Memory) LoadCollisionEnergyTargets(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CollisionEnergies(m.spectra), nil
}

// SelectLevel returns the spectra of one MS level ordered by scan start time,
// then scan number, then drift scan number.
func SelectLevel(spectra []*core.RawSpectrum, level int) []*core.RawSpectrum {
	var out []*core.RawSpectrum
	for _, s := range spectra {
		if s.MSLevel == level {
			out = append(out, s)
		}
	}
	SortByTime(out)
	return out
}

// SortByTime orders spectra by scan start time, scan number and drift scan number.
func SortByTime(spectra []*core.RawSpectrum) {
	sort.SliceStable(spectra, func(i, j int) bool {
		a, b := spectra[i], spectra[j]
		if a.ScanStartTime != b.ScanStartTime {
			return a.ScanStartTime < b.ScanStartTime
		}
		if a.ScanNumber != b.ScanNumber {
			return a.ScanNumber < b.ScanNumber
		}
		return a.DriftScanNumber < b.DriftScanNumber
	})
}

// CollisionEnergies returns the distinct MS2 collision energies in ascending order.
func CollisionEnergies(spectra []*core.RawSpectrum) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, s := range spectra {
		if s.MSLevel < 2 || s.Precursor == nil {
			continue
		}
		ce := s.Precursor.CollisionEnergy
		if _, dup := seen[ce]; dup {
			continue
		}
		seen[ce] = struct{}{}
		out = append(out, ce)
	}
	sort.Float64s(out)
	return out
}
