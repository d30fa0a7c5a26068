package source

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// DefaultBinWidth is the m/z bin width used when accumulating drift slices.
const DefaultBinWidth = 0.0005

// Accumulated decorates a Source so that every frame (all drift slices sharing
// a scan number, MS level and precursor) is summed into one pseudo spectrum.
type Accumulated struct {
	base     Source
	binWidth float64

	mu    sync.Mutex
	cache map[int][]*core.RawSpectrum
}

// NewAccumulated wraps base. binWidth <= 0 selects DefaultBinWidth.
func NewAccumulated(base Source, binWidth float64) *Accumulated {
	if binWidth <= 0 || math.IsNaN(binWidth) {
		binWidth = DefaultBinWidth
	}
	return &Accumulated{
		base:     base,
		binWidth: binWidth,
		cache:    make(map[int][]*core.RawSpectrum),
	}
}

// LoadMS1Spectra implements Source.
func (a *Accumulated) LoadMS1Spectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	return a.LoadMsNSpectra(ctx, 1)
}

// LoadAllSpectra implements Source. Frames of every level are returned in
// time order.
func (a *Accumulated) LoadAllSpectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	all, err := a.base.LoadAllSpectra(ctx)
	if err != nil {
		return nil, err
	}
	levels := make(map[int]struct{})
	for _, s := range all {
		levels[s.MSLevel] = struct{}{}
	}
	var keys []int
	for l := range levels {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	var out []*core.RawSpectrum
	for _, l := range keys {
		frames, err := a.LoadMsNSpectra(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, frames...)
	}
	SortByTime(out)
	return out, nil
}

// LoadMsNSpectra implements Source.
func (a *Accumulated) LoadMsNSpectra(ctx context.Context, level int) ([]*core.RawSpectrum, error) {
	a.mu.Lock()
	if cached, ok := a.cache[level]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	spectra, err := a.base.LoadMsNSpectra(ctx, level)
	if err != nil {
		return nil, err
	}
	frames, err := a.accumulate(ctx, spectra)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[level] = frames
	a.mu.Unlock()
	return frames, nil
}

// LoadCollisionEnergyTargets implements Source.
func (a *Accumulated) LoadCollisionEnergyTargets(ctx context.Context) ([]float64, error) {
	return a.base.LoadCollisionEnergyTargets(ctx)
}

type frameKey struct {
	scan  int
	level int
	prec  float64
	ce    float64
}

func keyOf(s *core.RawSpectrum) frameKey {
	k := frameKey{scan: s.ScanNumber, level: s.MSLevel}
	if s.Precursor != nil {
		k.prec = s.Precursor.SelectedMZ
		k.ce = s.Precursor.CollisionEnergy
	}
	return k
}

func (a *Accumulated) accumulate(ctx context.Context, spectra []*core.RawSpectrum) ([]*core.RawSpectrum, error) {
	groups := make(map[frameKey][]*core.RawSpectrum)
	var order []frameKey
	for _, s := range spectra {
		k := keyOf(s)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	frames := make([]*core.RawSpectrum, 0, len(order))
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames = append(frames, a.sumFrame(groups[k]))
	}
	SortByTime(frames)
	for i, f := range frames {
		f.Index = i
	}
	return frames, nil
}

// sumFrame merges the drift slices of one frame using pooled mass bins.
func (a *Accumulated) sumFrame(slices []*core.RawSpectrum) *core.RawSpectrum {
	bins := acquireBins()
	defer releaseBins(bins)

	first := slices[0]
	for _, s := range slices {
		for _, p := range s.Peaks {
			bins.add(int64(math.Floor(p.MZ/a.binWidth)), p.MZ, p.Intensity)
		}
	}

	out := &core.RawSpectrum{
		ScanNumber:    first.ScanNumber,
		ScanStartTime: first.ScanStartTime,
		MSLevel:       first.MSLevel,
		Polarity:      first.Polarity,
		Peaks:         bins.peaks(),
	}
	if first.Precursor != nil {
		prec := *first.Precursor
		out.Precursor = &prec
	}
	out.UpdateSummary()
	return out
}

type binAcc struct {
	weightedMZ float64
	intensity  float64
}

// massBins is the per-frame accumulation buffer drawn from binPool.
type massBins struct {
	acc  map[int64]binAcc
	keys []int64
}

var binPool = sync.Pool{
	New: func() any {
		return &massBins{acc: make(map[int64]binAcc, 1024)}
	},
}

func acquireBins() *massBins {
	return binPool.Get().(*massBins)
}

func releaseBins(b *massBins) {
	clear(b.acc)
	b.keys = b.keys[:0]
	binPool.Put(b)
}

func (b *massBins) add(key int64, mz, intensity float64) {
	cur, ok := b.acc[key]
	if !ok {
		b.keys = append(b.keys, key)
	}
	cur.weightedMZ += mz * intensity
	cur.intensity += intensity
	b.acc[key] = cur
}

func (b *massBins) peaks() []core.Peak {
	sort.Slice(b.keys, func(i, j int) bool { return b.keys[i] < b.keys[j] })
	out := make([]core.Peak, 0, len(b.keys))
	for _, k := range b.keys {
		acc := b.acc[k]
		if acc.intensity <= 0 {
			continue
		}
		out = append(out, core.Peak{MZ: acc.weightedMZ / acc.intensity, Intensity: acc.intensity})
	}
	return out
}
