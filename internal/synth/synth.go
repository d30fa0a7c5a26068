// Package synth generates synthetic LC-IM-MS acquisitions with Gaussian
// elution and mobility profiles for tests.
package synth

import (
	"math"
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Compound is one analyte of a synthetic run.
type Compound struct {
	MZ      float64
	RT      float64 // Apex retention time (min)
	RTSigma float64
	// Drift apex and width in drift scan units; ignored when the run has one drift scan
	Drift      float64
	DriftSigma float64
	Height     float64
	// Fragments carry relative intensities (0..1) of the compound's MS2 peaks
	Fragments []core.Peak
	// Isotopes adds M+1 and M+2 peaks at these ratios of the monoisotopic peak
	M1Ratio, M2Ratio float64
}

// Run describes a synthetic acquisition.
type Run struct {
	Scans      int     // RT scans, numbered from 1
	RTStep     float64 // Minutes between scans
	DriftScans int     // Drift slices per RT scan, numbered from 1; <= 1 means no mobility
	DriftStep  float64 // Milliseconds per drift scan
	Compounds  []Compound
	// MS2Windows lists the isolation windows acquired for every frame. Empty disables MS2.
	MS2Windows []core.Precursor
	// MinIntensity drops generated peaks below this value (default 1)
	MinIntensity float64
}

// Spectra generates every scan of the run in acquisition order: for each RT
// scan, the MS1 drift slices then the MS2 drift slices of every window.
func (r Run) Spectra() []*core.RawSpectrum {
	drifts := r.DriftScans
	if drifts < 1 {
		drifts = 1
	}
	minInt := r.MinIntensity
	if minInt <= 0 {
		minInt = 1
	}

	var out []*core.RawSpectrum
	for scan := 1; scan <= r.Scans; scan++ {
		rt := float64(scan) * r.RTStep
		for level := 1; level <= 2; level++ {
			windows := []core.Precursor{{}}
			if level == 2 {
				windows = r.MS2Windows
			}
			for _, w := range windows {
				for d := 1; d <= drifts; d++ {
					s := &core.RawSpectrum{
						ScanNumber:    scan,
						ScanStartTime: rt,
						MSLevel:       level,
					}
					if drifts > 1 {
						s.DriftScanNumber = d
						s.DriftTime = float64(d) * r.DriftStep
					}
					if level == 2 {
						prec := w
						s.Precursor = &prec
					}
					s.Peaks = r.peaks(rt, d, drifts, level, w, minInt)
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func (r Run) peaks(rt float64, drift, drifts, level int, w core.Precursor, minInt float64) []core.Peak {
	acc := make(map[float64]float64)
	for _, c := range r.Compounds {
		amp := c.Height * gauss(rt, c.RT, c.RTSigma)
		if drifts > 1 {
			amp *= gauss(float64(drift), c.Drift, c.DriftSigma)
		}
		if amp < minInt {
			continue
		}
		if level == 1 {
			acc[c.MZ] += amp
			if c.M1Ratio > 0 {
				acc[round(c.MZ+core.C13C12Diff)] += amp * c.M1Ratio
			}
			if c.M2Ratio > 0 {
				acc[round(c.MZ+2*core.C13C12Diff)] += amp * c.M2Ratio
			}
			continue
		}
		if !w.Contains(c.MZ, 0.5) {
			continue
		}
		for _, f := range c.Fragments {
			acc[f.MZ] += amp * f.Intensity
		}
	}

	peaks := make([]core.Peak, 0, len(acc))
	for mz, v := range acc {
		if v >= minInt {
			peaks = append(peaks, core.Peak{MZ: mz, Intensity: v})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })
	return peaks
}

func gauss(x, mu, sigma float64) float64 {
	if sigma <= 0 {
		if x == mu {
			return 1
		}
		return 0
	}
	d := (x - mu) / sigma
	return math.Exp(-d * d / 2)
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
