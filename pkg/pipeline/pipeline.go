// Package pipeline runs peak spotting, MS2 deconvolution and annotation over
// one acquisition with a fixed parameter snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/annotation"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/metrics"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/ms2dec"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/spotting"
)

// ErrCanceled is returned, wrapping the context error, when a run is
// canceled. A canceled run never returns a partial result.
var ErrCanceled = errors.New("run canceled")

// Stage names reported through Progress.
const (
	StageSpotting      = metrics.StageSpotting
	StageDeconvolution = metrics.StageDeconvolution
	StageAnnotation    = metrics.StageAnnotation
)

// Progress is one progress report: Done of Total work units of Stage.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// Percent returns the completed share of the stage in percent.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return 100 * float64(p.Done) / float64(p.Total)
}

// Stats summarizes a finished run.
type Stats struct {
	Features      int // RT features
	DriftFeatures int
	Deconvoluted  int
	RawFallback   int
	EmptySpectra  int
	Annotated     int // Nodes with a spectral library representative
	TextAnnotated int // Nodes with a text database representative
	Elapsed       time.Duration
}

// Result is the output of one run.
type Result struct {
	RunID        string
	Features     []*core.ChromatogramPeakFeature
	MSDecResults []*core.MSDecResult // Indexed by MasterPeakID
	Stats        Stats
}

// Pipeline runs the processing stages. It holds no per-run state.
type Pipeline struct {
	logger   *slog.Logger
	metrics  *metrics.Collector
	progress func(Progress)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithMetrics sets the metrics collector shared by every stage.
func WithMetrics(c *metrics.Collector) Option { return func(p *Pipeline) { p.metrics = c } }

// WithProgress sets the progress callback. It may be called concurrently.
func WithProgress(fn func(Progress)) Option { return func(p *Pipeline) { p.progress = fn } }

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, o := range opts {
		o(p)
	}
	p.logger = logging.OrDefault(p.logger)
	return p
}

func (pl *Pipeline) report(stage string) func(done, total int) {
	if pl.progress == nil {
		return nil
	}
	return func(done, total int) {
		pl.progress(Progress{Stage: stage, Done: done, Total: total})
	}
}

// Run processes raw with the parameter snapshot prm. For ion mobility data
// the drift slices are accumulated per frame for the RT pass; libraries must
// be sorted by precursor m/z.
func (pl *Pipeline) Run(ctx context.Context, raw source.Source, libs annotation.Libraries, prm params.Params) (*Result, error) {
	if err := prm.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := pl.logger.With("run_id", runID)
	logger.Info("run started",
		"separation", prm.Acquisition.Separation, "type", prm.Acquisition.Type, "threads", prm.Run.Threads)

	acc := raw
	var prefetch <-chan source.Loaded
	if prm.HasIonMobility() {
		accumulated := source.NewAccumulated(raw, prm.IonMobility.AccumulationBinWidth)
		acc = accumulated
		// MS2 frames are accumulated while spotting runs
		prefetch = source.LoadMsNSpectraAsync(ctx, accumulated, 2)
	}

	features, err := spotting.New(
		spotting.WithLogger(logger),
		spotting.WithMetrics(pl.metrics),
		spotting.WithProgress(pl.report(StageSpotting)),
	).Run(ctx, raw, acc, prm)
	if err != nil {
		return nil, stageError(StageSpotting, err)
	}

	if prefetch != nil {
		if loaded := <-prefetch; loaded.Err != nil {
			return nil, stageError(StageDeconvolution, loaded.Err)
		}
	}
	msdec, err := ms2dec.New(
		ms2dec.WithLogger(logger),
		ms2dec.WithMetrics(pl.metrics),
		ms2dec.WithProgress(pl.report(StageDeconvolution)),
	).Run(ctx, raw, acc, features, prm)
	if err != nil {
		return nil, stageError(StageDeconvolution, err)
	}

	err = annotation.New(
		annotation.WithLogger(logger),
		annotation.WithMetrics(pl.metrics),
		annotation.WithProgress(pl.report(StageAnnotation)),
	).Run(ctx, acc, features, msdec, libs, prm)
	if err != nil {
		return nil, stageError(StageAnnotation, err)
	}

	res := &Result{
		RunID:        runID,
		Features:     features,
		MSDecResults: msdec,
		Stats:        collectStats(features, msdec),
	}
	res.Stats.Elapsed = time.Since(start)
	logger.Info("run finished",
		"features", res.Stats.Features, "drift_features", res.Stats.DriftFeatures,
		"annotated", res.Stats.Annotated, "elapsed", res.Stats.Elapsed)
	return res, nil
}

func stageError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w during %s: %w", ErrCanceled, stage, err)
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}

func collectStats(features []*core.ChromatogramPeakFeature, msdec []*core.MSDecResult) Stats {
	var s Stats
	s.Features = len(features)
	core.WalkNodes(features, func(n, parent *core.ChromatogramPeakFeature) {
		if parent != nil {
			s.DriftFeatures++
		}
		// RT parents with drift children carry a copy of the best child's match
		if parent == nil && len(n.DriftFeatures) > 0 {
			return
		}
		if n.MatchResults.Representative != nil {
			s.Annotated++
		}
		if n.MatchResults.TextDBRepresentative != nil {
			s.TextAnnotated++
		}
	})
	for _, r := range msdec {
		switch {
		case r.IsEmpty():
			s.EmptySpectra++
		case r.Deconvoluted:
			s.Deconvoluted++
		default:
			s.RawFallback++
		}
	}
	return s
}
