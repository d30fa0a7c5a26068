// Package chrom extracts chromatograms and mobilograms from raw scans and
// finds peaks in one-dimensional intensity series.
package chrom

import (
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Point is one datapoint of a chromatogram or mobilogram.
type Point struct {
	Index           int // Index of the contributing spectrum in the extraction input
	ScanNumber      int
	DriftScanNumber int
	Time            float64 // RT (EIC) or drift time (mobilogram)
	MZ              float64 // m/z of the most intense peak in the window, or the target m/z
	Intensity       float64
}

// Chromatogram is an intensity series along one axis.
type Chromatogram struct {
	Axis   core.Axis
	Points []Point
}

// Intensities returns the intensity series.
func (c Chromatogram) Intensities() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Intensity
	}
	return out
}

// IsEmpty reports whether the chromatogram has no positive intensity.
func (c Chromatogram) IsEmpty() bool {
	for _, p := range c.Points {
		if p.Intensity > 0 {
			return false
		}
	}
	return true
}

// ExtractEIC builds an extracted-ion chromatogram over spectra ordered by scan
// start time, summing intensities within [mz-tol, mz+tol] for every scan
// whose time lies in [rtBegin, rtEnd].
func ExtractEIC(spectra []*core.RawSpectrum, mz, tol, rtBegin, rtEnd float64) Chromatogram {
	c := Chromatogram{Axis: core.AxisRT}
	if tol <= 0 || rtEnd < rtBegin {
		return c
	}

	start := sort.Search(len(spectra), func(i int) bool { return spectra[i].ScanStartTime >= rtBegin })
	for i := start; i < len(spectra); i++ {
		s := spectra[i]
		if s.ScanStartTime > rtEnd {
			break
		}
		sum, apexMZ, _ := core.SumInWindow(s.Peaks, mz-tol, mz+tol)
		if sum == 0 {
			apexMZ = mz
		}
		c.Points = append(c.Points, Point{
			Index:      i,
			ScanNumber: s.ScanNumber,
			Time:       s.ScanStartTime,
			MZ:         apexMZ,
			Intensity:  sum,
		})
	}
	return c
}

// ExtractMobilogram builds a mobilogram from non-accumulated spectra ordered by
// scan start time. Intensities within [mz-tol, mz+tol] of every scan in
// [rtBegin, rtEnd] are summed per drift scan number and ordered by drift time.
func ExtractMobilogram(spectra []*core.RawSpectrum, mz, tol, rtBegin, rtEnd float64) Chromatogram {
	c := Chromatogram{Axis: core.AxisDrift}
	if tol <= 0 || rtEnd < rtBegin {
		return c
	}

	type slot struct {
		point   Point
		apexInt float64
	}
	slots := make(map[int]*slot)

	start := sort.Search(len(spectra), func(i int) bool { return spectra[i].ScanStartTime >= rtBegin })
	for i := start; i < len(spectra); i++ {
		s := spectra[i]
		if s.ScanStartTime > rtEnd {
			break
		}
		sum, apexMZ, apexInt := core.SumInWindow(s.Peaks, mz-tol, mz+tol)
		sl, ok := slots[s.DriftScanNumber]
		if !ok {
			sl = &slot{point: Point{
				Index:           i,
				ScanNumber:      s.ScanNumber,
				DriftScanNumber: s.DriftScanNumber,
				Time:            s.DriftTime,
				MZ:              mz,
			}}
			slots[s.DriftScanNumber] = sl
		}
		sl.point.Intensity += sum
		if apexInt > sl.apexInt {
			sl.apexInt = apexInt
			sl.point.MZ = apexMZ
			sl.point.Index = i
			sl.point.ScanNumber = s.ScanNumber
		}
	}

	c.Points = make([]Point, 0, len(slots))
	for _, sl := range slots {
		c.Points = append(c.Points, sl.point)
	}
	sort.Slice(c.Points, func(i, j int) bool {
		if c.Points[i].Time != c.Points[j].Time {
			return c.Points[i].Time < c.Points[j].Time
		}
		return c.Points[i].DriftScanNumber < c.Points[j].DriftScanNumber
	})
	return c
}
