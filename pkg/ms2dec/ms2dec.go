// Package ms2dec builds one MS2 spectrum per feature node, separating a
// compound's own fragment ions from co-eluting or co-drifting interference
// by profile correlation.
package ms2dec

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/filter"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/metrics"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
)

// isolationFallback is the half width used for precursors that report no isolation window.
const isolationFallback = 0.5

// Deconvoluter runs MS2 deconvolution over feature nodes.
type Deconvoluter struct {
	logger   *slog.Logger
	metrics  *metrics.Collector
	progress func(done, total int)
}

// Option configures a Deconvoluter.
type Option func(*Deconvoluter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Deconvoluter) { d.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(d *Deconvoluter) { d.metrics = c } }

// WithProgress sets the progress callback. It is called from worker goroutines.
func WithProgress(fn func(done, total int)) Option {
	return func(d *Deconvoluter) { d.progress = fn }
}

// New creates a Deconvoluter.
func New(opts ...Option) *Deconvoluter {
	d := &Deconvoluter{}
	for _, o := range opts {
		o(d)
	}
	d.logger = logging.OrDefault(d.logger)
	return d
}

// node is one feature node with the context needed to process it.
type node struct {
	feature *core.ChromatogramPeakFeature
	parent  *core.ChromatogramPeakFeature
}

// run is the read-only state shared by every node of one Run call.
type run struct {
	p           params.Params
	frames      []*core.RawSpectrum // accumulated MS2 frames at the selected energy
	scans       []*core.RawSpectrum // non-accumulated MS2 scans at the selected energy
	rtBounds    chrom.WidthBounds
	driftBounds chrom.WidthBounds
	filter      filter.Config
}

// Run returns exactly one result per feature node, in node traversal order
// (RT feature, then its drift sub-features), so results[i].ScanID equals the
// MasterPeakID of the i-th node. Features must carry assigned ids.
//
// On cancellation Run returns nil and the context error.
func (d *Deconvoluter) Run(ctx context.Context, raw, acc source.Source, features []*core.ChromatogramPeakFeature, p params.Params) ([]*core.MSDecResult, error) {
	start := time.Now()

	var nodes []node
	var rtWidths, driftWidths []float64
	core.WalkNodes(features, func(f, parent *core.ChromatogramPeakFeature) {
		nodes = append(nodes, node{feature: f, parent: parent})
		if f.IsRT() {
			rtWidths = append(rtWidths, f.Width())
		} else {
			driftWidths = append(driftWidths, f.Width())
		}
	})

	r := &run{
		p:           p,
		rtBounds:    chrom.NewWidthBounds(rtWidths),
		driftBounds: chrom.NewWidthBounds(driftWidths),
		filter: filter.Config{
			AmplitudeCutoff:      p.Deconvolution.AmplitudeCutoff,
			RelativeCutoff:       p.Deconvolution.RelativeCutoff,
			RemoveAfterPrecursor: p.Deconvolution.RemoveAfterPrecursor,
			KeepIsotopeRange:     p.Deconvolution.KeepIsotopeRange,
		},
	}

	targets, err := acc.LoadCollisionEnergyTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collision energy targets: %w", err)
	}
	ce, selectCE := energyTarget(targets, p.Deconvolution.CollisionEnergy)

	frames, err := acc.LoadMsNSpectra(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load ms2 frames: %w", err)
	}
	r.frames = atEnergy(frames, ce, selectCE)
	if len(driftWidths) > 0 {
		scans, err := raw.LoadMsNSpectra(ctx, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to load ms2 spectra: %w", err)
		}
		r.scans = atEnergy(scans, ce, selectCE)
	}
	d.logger.Info("deconvolution started",
		"nodes", len(nodes), "ms2_frames", len(r.frames), "collision_energy", ce, "threads", p.Run.Threads)

	results := make([]*core.MSDecResult, len(nodes))
	var done atomic.Int64
	process := func(i int) {
		res, outcome := r.process(nodes[i])
		results[i] = res
		d.metrics.AddMSDec(outcome)
		if d.progress != nil {
			d.progress(int(done.Add(1)), len(nodes))
		}
	}

	threads := p.Run.Threads
	if threads < 2 {
		for i := range nodes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			process(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(threads)
		for i := range nodes {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				process(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.metrics.ObserveStage(metrics.StageDeconvolution, time.Since(start))
	d.logger.Info("deconvolution finished", "results", len(results), "elapsed", time.Since(start))
	return results, nil
}

// energyTarget picks the collision energy to use. When the acquisition has
// at most one energy no selection is applied.
func energyTarget(targets []float64, configured *float64) (float64, bool) {
	if configured != nil {
		return *configured, true
	}
	if len(targets) > 1 {
		return targets[0], true
	}
	if len(targets) == 1 {
		return targets[0], false
	}
	return 0, false
}

func atEnergy(spectra []*core.RawSpectrum, ce float64, selectCE bool) []*core.RawSpectrum {
	if !selectCE {
		return spectra
	}
	out := make([]*core.RawSpectrum, 0, len(spectra))
	for _, s := range spectra {
		if s.Precursor != nil && math.Abs(s.Precursor.CollisionEnergy-ce) < 1e-6 {
			out = append(out, s)
		}
	}
	return out
}

// process builds the result of one node and names its outcome.
func (r *run) process(n node) (*core.MSDecResult, string) {
	f := n.feature
	res := core.NewEmptyMSDecResult(f.MasterPeakID)
	res.PrecursorMZ = f.Mass
	res.Axis = f.Axis
	if f.IsRT() {
		res.RetentionTime = f.Apex.Time
	} else {
		res.RetentionTime = n.parent.Apex.Time
		res.DriftTime = f.Apex.Time
	}

	bounds := r.rtBounds
	if !f.IsRT() {
		bounds = r.driftBounds
	}
	w := bounds.Clamp(f.Width())
	lo := math.Min(f.Left.Time, f.Apex.Time-1.5*w)
	hi := math.Max(f.Right.Time, f.Apex.Time+1.5*w)

	tol := core.ToleranceAt(f.Mass, r.p.Tolerance.MS2, r.p.Tolerance.CrossoverMass)
	var slots []slot
	if f.IsRT() {
		slots = rtSlots(r.frames, f.Mass, lo, hi)
	} else {
		slots = driftSlots(r.scans, f.Mass, n.parent, lo, hi, tol)
	}
	if len(slots) == 0 {
		return res, metrics.OutcomeEmpty
	}

	apex := nearest(slots, f.Apex.Time)
	res.RawSpectrumID = slots[apex].index

	candidate := r.candidate(slots, apex, f, tol)
	if len(candidate) == 0 {
		res.Spectrum = []core.Peak{}
		return res, metrics.OutcomeEmpty
	}

	raw := candidate
	if r.p.Deconvolution.IsotopeModel {
		raw = Deisotope(candidate, tol)
	}
	res.Spectrum = raw

	dp := r.p.Deconvolution
	if !dp.Enabled || r.p.Acquisition.Type == params.DDA {
		return res, metrics.OutcomeRaw
	}

	// Profiles only cover the bounded window around the apex
	var window []slot
	for _, s := range slots {
		if s.axis >= f.Apex.Time-1.5*w && s.axis <= f.Apex.Time+1.5*w {
			window = append(window, s)
		}
	}
	minPoints := dp.MinimumProfilePoints
	if minPoints < 3 {
		minPoints = 3
	}
	if len(window) < minPoints {
		return res, metrics.OutcomeRaw
	}

	method, _ := chrom.ParseSmoothingMethod(r.p.Peak.SmoothingMethod)
	grouped, ok := groupByCorrelation(window, nearest(window, f.Apex.Time), candidate, tol, method, dp.MinCorrelation)
	if !ok {
		return res, metrics.OutcomeRaw
	}

	spectrum := grouped.peaks
	if dp.KeepPrecursorIsotopes {
		spectrum = restorePrecursorIsotopes(spectrum, candidate, f.Mass, tol)
	}
	res.Spectrum = spectrum
	res.ModelMasses = grouped.modelMasses
	res.Correlation = grouped.correlation
	res.Deconvoluted = true
	return res, metrics.OutcomeDeconvoluted
}

// candidate builds the filtered candidate spectrum, either accumulated over
// the node's boundaries or from the slot nearest the apex.
func (r *run) candidate(slots []slot, apex int, f *core.ChromatogramPeakFeature, tol float64) []core.Peak {
	var peaks []core.Peak
	if r.p.Deconvolution.AccumulateMS2 {
		for _, s := range slots {
			if s.axis < f.Left.Time || s.axis > f.Right.Time {
				continue
			}
			peaks = append(peaks, r.centroided(s.peaks, tol)...)
		}
		if len(peaks) == 0 {
			peaks = r.centroided(slots[apex].peaks, tol)
		}
		peaks = MergePeaks(peaks, tol)
	} else {
		peaks = r.centroided(slots[apex].peaks, tol)
	}
	out := r.filter.Apply(peaks, f.Mass)
	if out == nil {
		out = []core.Peak{}
	}
	return out
}

func (r *run) centroided(peaks []core.Peak, tol float64) []core.Peak {
	if r.p.Acquisition.MS2Profile {
		return Centroid(peaks, tol)
	}
	return peaks
}

// restorePrecursorIsotopes replaces the M, M+1 and M+2 peaks of the precursor
// in spectrum with the peaks of the raw candidate spectrum.
func restorePrecursorIsotopes(spectrum, raw []core.Peak, precursor, tol float64) []core.Peak {
	inIsotope := func(mz float64) bool {
		for k := 0; k <= 2; k++ {
			if math.Abs(mz-(precursor+float64(k)*core.C13C12Diff)) <= tol {
				return true
			}
		}
		return false
	}

	out := make([]core.Peak, 0, len(spectrum)+3)
	for _, p := range spectrum {
		if !inIsotope(p.MZ) {
			out = append(out, p)
		}
	}
	for _, p := range raw {
		if inIsotope(p.MZ) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MZ < out[j].MZ })
	return out
}
