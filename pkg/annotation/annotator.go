// Package annotation matches feature nodes against reference libraries
// sorted by precursor m/z and attaches the scored results to the features.
package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/metrics"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
)

// Annotator scores feature nodes against reference libraries.
type Annotator struct {
	logger   *slog.Logger
	metrics  *metrics.Collector
	progress func(done, total int)
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Annotator) { a.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(a *Annotator) { a.metrics = c } }

// WithProgress sets the progress callback, called once per RT feature from
// worker goroutines.
func WithProgress(fn func(done, total int)) Option {
	return func(a *Annotator) { a.progress = fn }
}

// New creates an Annotator.
func New(opts ...Option) *Annotator {
	a := &Annotator{}
	for _, o := range opts {
		o(a)
	}
	a.logger = logging.OrDefault(a.logger)
	return a
}

// Libraries are the reference collections of one run. Both must be sorted by
// precursor m/z (see SortReferences) and are only read.
type Libraries struct {
	// Spectral is matched on precursor, spectrum, CCS and isotopes
	Spectral []*core.MoleculeMsReference
	// Text is matched on precursor only; CCS and isotopes still contribute
	// to the score and every entry inside the tolerance window is kept
	Text []*core.MoleculeMsReference
}

// Run annotates every feature node in place. msdec holds the result of each
// node keyed by ScanID == MasterPeakID.
//
// Each RT feature and its drift sub-features are written together by one
// worker. On cancellation Run stops between features and returns the context
// error; features already visited keep their matches.
func (a *Annotator) Run(ctx context.Context, acc source.Source, features []*core.ChromatogramPeakFeature, msdec []*core.MSDecResult, libs Libraries, p params.Params) error {
	start := time.Now()

	frames, err := acc.LoadMS1Spectra(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ms1 frames: %w", err)
	}

	byScan := make(map[int]*core.MSDecResult, len(msdec))
	for _, r := range msdec {
		if r != nil {
			byScan[r.ScanID] = r
		}
	}

	ap := p.Annotation
	w := &worker{
		p:      p,
		frames: frames,
		msdec:  byScan,
		libs:   libs,
		scorer: scorer{
			totalCutoff:   ap.TotalScoreCutoff,
			wdotCutoff:    ap.WeightedDotProductCutoff,
			rdotCutoff:    ap.ReverseDotProductCutoff,
			matchedCutoff: ap.MatchedPeaksPercentCutoff,
			minMatched:    ap.MinimumMatchedPeaks,
			useCCS:        ap.UseCCS,
			ccsTolerance:  ap.CCSTolerance,
			useIsotopes:   ap.UseIsotopes,
		},
	}
	a.logger.Info("annotation started",
		"features", len(features), "library", len(libs.Spectral), "text_db", len(libs.Text))

	var done, spectral, text atomic.Int64
	annotate := func(i int) {
		s, t := w.annotate(features[i])
		spectral.Add(int64(s))
		text.Add(int64(t))
		if a.progress != nil {
			a.progress(int(done.Add(1)), len(features))
		}
	}

	if p.Run.Threads < 2 {
		for i := range features {
			if err := ctx.Err(); err != nil {
				return err
			}
			annotate(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Run.Threads)
		for i := range features {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				annotate(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.metrics.AddMatches(core.SourceMSP, int(spectral.Load()))
	a.metrics.AddMatches(core.SourceTextDB, int(text.Load()))
	a.metrics.ObserveStage(metrics.StageAnnotation, time.Since(start))
	a.logger.Info("annotation finished",
		"annotated", spectral.Load(), "text_db_annotated", text.Load(), "elapsed", time.Since(start))
	return nil
}

// worker holds the read-only state shared by every feature of one Run call.
type worker struct {
	p      params.Params
	frames []*core.RawSpectrum
	msdec  map[int]*core.MSDecResult
	libs   Libraries
	scorer scorer
}

// annotate scores one RT feature and its drift sub-features and returns the
// number of nodes that received a spectral and a text representative.
func (w *worker) annotate(f *core.ChromatogramPeakFeature) (spectral, text int) {
	iso := &core.IsotopeSummary{M1Ratio: core.IsotopeRatioUnavailable, M2Ratio: core.IsotopeRatioUnavailable}
	if frame := frameAt(w.frames, f.Apex.ScanNumber, f.Apex.Time); frame != nil {
		iso = IsotopePattern(frame.Peaks, f.Mass, w.ms1Tolerance(f.Mass))
	}

	nodes := f.DriftFeatures
	if len(nodes) == 0 {
		nodes = []*core.ChromatogramPeakFeature{f}
	}

	containers := make([]core.MatchResultContainer, len(nodes))
	for i, n := range nodes {
		q := query{
			mass:     n.Mass,
			tol:      w.ms1Tolerance(n.Mass),
			ccs:      n.CollisionCrossSection,
			isotopes: iso,
			ms2Tol:   core.ToleranceAt(n.Mass, w.p.Tolerance.MS2, w.p.Tolerance.CrossoverMass),
		}
		if r, ok := w.msdec[n.MasterPeakID]; ok {
			q.spectrum = r.Spectrum
		}
		c := &containers[i]
		c.Candidates, c.Representative = w.match(q, w.libs.Spectral, true)
		c.TextDBCandidates, c.TextDBRepresentative = w.match(q, w.libs.Text, false)
	}

	// Every node is written after all of them were scored
	f.Isotopes = iso
	for i, n := range nodes {
		n.Isotopes = iso
		n.MatchResults = containers[i]
		if containers[i].Representative != nil {
			spectral++
		}
		if containers[i].TextDBRepresentative != nil {
			text++
		}
	}
	if len(f.DriftFeatures) > 0 {
		f.MatchResults = core.MatchResultContainer{
			Representative:       bestOf(containers, func(c core.MatchResultContainer) *core.MsScanMatchResult { return c.Representative }),
			TextDBRepresentative: bestOf(containers, func(c core.MatchResultContainer) *core.MsScanMatchResult { return c.TextDBRepresentative }),
		}
	}
	return spectral, text
}

func (w *worker) ms1Tolerance(mass float64) float64 {
	return core.ToleranceAt(mass, w.p.Tolerance.MS1, w.p.Tolerance.CrossoverMass)
}

// match scores every reference in the tolerance window of q and returns the
// kept candidates, best first, with the representative.
func (w *worker) match(q query, refs []*core.MoleculeMsReference, spectral bool) ([]core.MsScanMatchResult, *core.MsScanMatchResult) {
	lo, hi := Window(refs, q.mass, q.tol)
	var kept []core.MsScanMatchResult
	for _, ref := range refs[lo:hi] {
		r := w.scorer.score(q, ref, spectral)
		ok := w.scorer.accepts(r)
		if !spectral {
			r.Source = core.SourceTextDB
			ok = r.IsPrecursorMzMatch
		}
		if ok {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return rankBefore(kept[i], kept[j]) })
	// Zero keeps every candidate
	if limit := w.p.Annotation.MaxCandidates; limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	best := kept[0]
	return kept, &best
}

// bestOf returns a copy of the best representative across drift sub-features,
// the earlier sub-feature on ties.
func bestOf(containers []core.MatchResultContainer, get func(core.MatchResultContainer) *core.MsScanMatchResult) *core.MsScanMatchResult {
	var best *core.MsScanMatchResult
	for _, c := range containers {
		r := get(c)
		if r == nil {
			continue
		}
		if best == nil || rankBefore(*r, *best) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
