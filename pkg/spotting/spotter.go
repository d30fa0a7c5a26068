// Package spotting detects chromatographic features across mass, retention
// time and drift time.
package spotting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/metrics"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
)

// ProgressFunc receives the number of completed work units and the total.
type ProgressFunc func(done, total int)

// Spotter runs peak spotting. It holds no per-run state and may be reused.
type Spotter struct {
	logger   *slog.Logger
	metrics  *metrics.Collector
	progress ProgressFunc
}

// Option configures a Spotter.
type Option func(*Spotter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Spotter) { s.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(s *Spotter) { s.metrics = c } }

// WithProgress sets the progress callback. It is called from worker goroutines.
func WithProgress(fn ProgressFunc) Option { return func(s *Spotter) { s.progress = fn } }

// New creates a Spotter.
func New(opts ...Option) *Spotter {
	s := &Spotter{}
	for _, o := range opts {
		o(s)
	}
	s.logger = logging.OrDefault(s.logger)
	return s
}

// candidate is one mass slice (grid mode) or one target (targeted mode).
type candidate struct {
	mass      float64
	halfWidth float64
}

// Run detects features. raw supplies the non-accumulated scans used for the
// drift pass and acc the drift-accumulated scans used for the RT pass; for
// data without ion mobility both may be the same source.
//
// On cancellation Run returns a nil feature list and the context error.
func (s *Spotter) Run(ctx context.Context, raw, acc source.Source, p params.Params) ([]*core.ChromatogramPeakFeature, error) {
	start := time.Now()

	frames, err := acc.LoadMS1Spectra(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accumulated ms1 spectra: %w", err)
	}
	var scans []*core.RawSpectrum
	if p.HasIonMobility() {
		if scans, err = raw.LoadMS1Spectra(ctx); err != nil {
			return nil, fmt.Errorf("failed to load ms1 spectra: %w", err)
		}
	}

	cands := candidates(p)
	s.logger.Info("peak spotting started",
		"candidates", len(cands), "frames", len(frames), "targeted", len(p.Peak.TargetedMasses) > 0,
		"threads", p.Run.Threads)

	slots, err := s.detectAll(ctx, frames, cands, p)
	if err != nil {
		return nil, err
	}

	var merged []*core.ChromatogramPeakFeature
	for _, slot := range slots {
		merged = append(merged, slot...)
	}
	features := RemoveRedundant(merged, ConflictWidth(p))
	s.logger.Debug("redundancy removal", "before", len(merged), "after", len(features))

	if p.HasIonMobility() {
		if features, err = s.driftPass(ctx, scans, features, p); err != nil {
			return nil, err
		}
	}
	AssignIDs(features)

	driftCount := core.NodeCount(features) - len(features)
	s.metrics.AddFeatures(core.AxisRT, len(features))
	s.metrics.AddFeatures(core.AxisDrift, driftCount)
	s.metrics.ObserveStage(metrics.StageSpotting, time.Since(start))
	s.logger.Info("peak spotting finished",
		"features", len(features), "drift_features", driftCount, "elapsed", time.Since(start))
	return features, nil
}

// candidates enumerates the grid or the target list.
func candidates(p params.Params) []candidate {
	tol := p.Tolerance
	if len(p.Peak.TargetedMasses) > 0 {
		out := make([]candidate, 0, len(p.Peak.TargetedMasses))
		for _, m := range p.Peak.TargetedMasses {
			w := core.ToleranceAt(m, tol.MS1, tol.CrossoverMass)
			out = append(out, candidate{mass: m, halfWidth: w})
		}
		return out
	}

	step := p.SliceStep()
	begin, end := p.Peak.MassRangeBegin, p.Peak.MassRangeEnd
	if !(step > 0) || math.IsInf(step, 0) || !(end > begin) {
		return nil
	}
	n := int(math.Floor((end-begin)/step+1e-9)) + 1
	out := make([]candidate, 0, n)
	for i := 0; i < n; i++ {
		m := begin + float64(i)*step
		half := step / 2
		if !p.Peak.NominalMass {
			half += core.ToleranceAt(m, tol.MS1, tol.CrossoverMass)
		}
		out = append(out, candidate{mass: m, halfWidth: half})
	}
	return out
}

// detectAll runs the RT pass for every candidate. Each candidate writes only
// its own slot so the merged order never depends on scheduling.
func (s *Spotter) detectAll(ctx context.Context, frames []*core.RawSpectrum, cands []candidate, p params.Params) ([][]*core.ChromatogramPeakFeature, error) {
	slots := make([][]*core.ChromatogramPeakFeature, len(cands))
	var done atomic.Int64
	finish := func() {
		n := int(done.Add(1))
		s.metrics.AddSlices(1)
		if s.progress != nil {
			s.progress(n, len(cands))
		}
	}

	if p.Run.Threads < 2 {
		for i, c := range cands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slots[i] = detectSlice(frames, c, p)
			finish()
		}
		return slots, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Run.Threads)
	for i, c := range cands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = detectSlice(frames, c, p)
			finish()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// detectSlice extracts the EIC of one candidate and turns its peaks into features.
func detectSlice(frames []*core.RawSpectrum, c candidate, p params.Params) []*core.ChromatogramPeakFeature {
	pk := p.Peak
	eic := chrom.ExtractEIC(frames, c.mass, c.halfWidth, pk.RetentionTimeBegin, pk.RetentionTimeEnd)
	if eic.IsEmpty() {
		return nil
	}
	if p.Acquisition.Separation == params.SeparationIM {
		return []*core.ChromatogramPeakFeature{infusionFeature(eic)}
	}

	method, _ := chrom.ParseSmoothingMethod(pk.SmoothingMethod)
	raw := eic.Intensities()
	smoothed := chrom.Smooth(raw, method, pk.SmoothingLevel)
	found := chrom.DetectPeaks(smoothed, chrom.DetectorConfig{
		MinimumDatapoints: pk.MinimumDatapoints,
		MinimumAmplitude:  pk.MinimumAmplitude,
	})
	if len(found) == 0 {
		return nil
	}

	times := make([]float64, len(eic.Points))
	for i, pt := range eic.Points {
		times[i] = pt.Time
	}
	noise := chrom.EstimateNoise(raw)

	var out []*core.ChromatogramPeakFeature
	for _, r := range found {
		baseline := chrom.LinearBaseline(raw, r.Left, r.Apex, r.Right)
		height := raw[r.Apex]
		if pk.BackgroundSubtraction && height-baseline < pk.MinimumAmplitude {
			continue
		}
		apex := eic.Points[r.Apex]
		out = append(out, &core.ChromatogramPeakFeature{
			ParentPeakID:          -1,
			Axis:                  core.AxisRT,
			Mass:                  apex.MZ,
			Left:                  toPeak(eic.Points[r.Left], r.Left, core.AxisRT),
			Apex:                  toPeak(apex, r.Apex, core.AxisRT),
			Right:                 toPeak(eic.Points[r.Right], r.Right, core.AxisRT),
			PeakHeightTop:         height,
			PeakAreaAboveZero:     chrom.TrapezoidArea(times, raw, r.Left, r.Right, 0),
			PeakAreaAboveBaseline: chrom.TrapezoidArea(times, raw, r.Left, r.Right, baseline),
			Baseline:              baseline,
			EstimatedNoise:        noise,
			SignalToNoise:         (height - baseline) / noise,
		})
	}
	return out
}

// infusionFeature spans the whole acquisition for data without chromatography.
func infusionFeature(eic chrom.Chromatogram) *core.ChromatogramPeakFeature {
	apex := 0
	for i, pt := range eic.Points {
		if pt.Intensity > eic.Points[apex].Intensity {
			apex = i
		}
	}
	last := len(eic.Points) - 1
	return &core.ChromatogramPeakFeature{
		ParentPeakID:  -1,
		Axis:          core.AxisRT,
		Mass:          eic.Points[apex].MZ,
		Left:          toPeak(eic.Points[0], 0, core.AxisRT),
		Apex:          toPeak(eic.Points[apex], apex, core.AxisRT),
		Right:         toPeak(eic.Points[last], last, core.AxisRT),
		PeakHeightTop: eic.Points[apex].Intensity,
	}
}

func toPeak(pt chrom.Point, index int, axis core.Axis) core.ChromatogramPeak {
	cp := core.ChromatogramPeak{
		Index:      index,
		ScanNumber: pt.ScanNumber,
		Time:       pt.Time,
		MZ:         pt.MZ,
		Intensity:  pt.Intensity,
	}
	if axis == core.AxisDrift {
		cp.DriftScanNumber = pt.DriftScanNumber
	}
	return cp
}
