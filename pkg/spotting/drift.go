package spotting

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
)

// driftPass nests drift sub-features inside every RT feature. RT features
// without a drift peak are kept or dropped according to
// KeepWithoutDriftPeaks; in infusion mode they are always dropped.
func (s *Spotter) driftPass(ctx context.Context, scans []*core.RawSpectrum, features []*core.ChromatogramPeakFeature, p params.Params) ([]*core.ChromatogramPeakFeature, error) {
	threads := p.Run.Threads
	if threads < 1 {
		threads = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, f := range features {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f.DriftFeatures = detectDrift(scans, f, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keep := p.IonMobility.KeepWithoutDriftPeaks && p.Acquisition.Separation != params.SeparationIM
	out := features[:0:0]
	for _, f := range features {
		if len(f.DriftFeatures) > 0 || keep {
			out = append(out, f)
		}
	}
	return out, nil
}

// detectDrift extracts the mobilogram of f over its RT boundaries and runs
// the detector on the drift axis.
func detectDrift(scans []*core.RawSpectrum, f *core.ChromatogramPeakFeature, p params.Params) []*core.ChromatogramPeakFeature {
	tol := core.ToleranceAt(f.Mass, p.Tolerance.MS1, p.Tolerance.CrossoverMass)
	mob := chrom.ExtractMobilogram(scans, f.Mass, tol, f.Left.Time, f.Right.Time)
	if len(mob.Points) < 3 || mob.IsEmpty() {
		return nil
	}

	im := p.IonMobility
	method, _ := chrom.ParseSmoothingMethod(p.Peak.SmoothingMethod)
	raw := mob.Intensities()
	smoothed := chrom.Smooth(raw, method, im.SmoothingLevel)
	found := chrom.DetectPeaks(smoothed, chrom.DetectorConfig{
		MinimumDatapoints: im.MinimumDatapoints,
		MinimumAmplitude:  im.MinimumAmplitude,
	})
	if len(found) == 0 {
		return nil
	}

	times := make([]float64, len(mob.Points))
	for i, pt := range mob.Points {
		times[i] = pt.Time
	}
	noise := chrom.EstimateNoise(raw)

	out := make([]*core.ChromatogramPeakFeature, 0, len(found))
	for _, r := range found {
		apex := mob.Points[r.Apex]
		baseline := chrom.LinearBaseline(raw, r.Left, r.Apex, r.Right)
		height := raw[r.Apex]
		mass := apex.MZ
		out = append(out, &core.ChromatogramPeakFeature{
			Axis:                  core.AxisDrift,
			Mass:                  mass,
			Left:                  toPeak(mob.Points[r.Left], r.Left, core.AxisDrift),
			Apex:                  toPeak(apex, r.Apex, core.AxisDrift),
			Right:                 toPeak(mob.Points[r.Right], r.Right, core.AxisDrift),
			PeakHeightTop:         height,
			PeakAreaAboveZero:     chrom.TrapezoidArea(times, raw, r.Left, r.Right, 0),
			PeakAreaAboveBaseline: chrom.TrapezoidArea(times, raw, r.Left, r.Right, baseline),
			Baseline:              baseline,
			EstimatedNoise:        noise,
			SignalToNoise:         (height - baseline) / noise,
			CollisionCrossSection: im.Calibration.CCS(apex.Time, mass, im.Charge),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Apex.Time < out[j].Apex.Time })
	return out
}
