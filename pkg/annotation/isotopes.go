package annotation

import (
	"math"
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// IsotopePattern reads the M, M+1 and M+2 intensities of mass from an MS1
// spectrum. Each isotope takes the most intense peak within tol of its
// expected position. When no monoisotopic signal is present the ratios are
// core.IsotopeRatioUnavailable.
func IsotopePattern(peaks []core.Peak, mass, tol float64) *core.IsotopeSummary {
	at := func(k int) float64 {
		target := mass + float64(k)*core.C13C12Diff
		_, _, top := core.SumInWindow(peaks, target-tol, target+tol)
		return top
	}
	s := &core.IsotopeSummary{
		M0Intensity: at(0),
		M1Intensity: at(1),
		M2Intensity: at(2),
		M1Ratio:     core.IsotopeRatioUnavailable,
		M2Ratio:     core.IsotopeRatioUnavailable,
	}
	if s.M0Intensity > 0 {
		s.M1Ratio = s.M1Intensity / s.M0Intensity
		s.M2Ratio = s.M2Intensity / s.M0Intensity
	}
	return s
}

// frameAt returns the MS1 frame with the given scan number, or the frame
// nearest in time when no scan number matches. frames are ordered by time.
func frameAt(frames []*core.RawSpectrum, scan int, t float64) *core.RawSpectrum {
	if len(frames) == 0 {
		return nil
	}
	i := sort.Search(len(frames), func(k int) bool { return frames[k].ScanStartTime >= t })
	for _, k := range []int{i, i - 1, i + 1} {
		if k >= 0 && k < len(frames) && frames[k].ScanNumber == scan {
			return frames[k]
		}
	}
	switch {
	case i >= len(frames):
		return frames[len(frames)-1]
	case i == 0:
		return frames[0]
	}
	if math.Abs(frames[i-1].ScanStartTime-t) <= math.Abs(frames[i].ScanStartTime-t) {
		return frames[i-1]
	}
	return frames[i]
}
