package ms2dec

import (
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// MergePeaks combines peaks lying within tol of the first peak of their group
// into one peak at the intensity-weighted m/z with the summed intensity.
// The result is ordered by m/z; the input is not modified.
func MergePeaks(peaks []core.Peak, tol float64) []core.Peak {
	if len(peaks) == 0 {
		return []core.Peak{}
	}
	sorted := core.ClonePeaks(peaks)
	core.SortPeaks(sorted)

	out := make([]core.Peak, 0, len(sorted))
	groupStart := sorted[0].MZ
	var wsum, isum float64
	flush := func() {
		if isum > 0 {
			out = append(out, core.Peak{MZ: wsum / isum, Intensity: isum})
		}
		wsum, isum = 0, 0
	}
	for _, p := range sorted {
		if p.MZ-groupStart > tol {
			flush()
			groupStart = p.MZ
		}
		wsum += p.MZ * p.Intensity
		isum += p.Intensity
	}
	flush()
	return out
}

// Centroid reduces profile data to one peak per local intensity maximum.
// Points further apart than tol split a profile. Each centroid's m/z is the
// intensity-weighted mean of the points on its flanks and its intensity is
// the local maximum.
func Centroid(profile []core.Peak, tol float64) []core.Peak {
	n := len(profile)
	if n == 0 {
		return []core.Peak{}
	}
	pts := core.ClonePeaks(profile)
	core.SortPeaks(pts)

	out := make([]core.Peak, 0)
	for i := 0; i < n; i++ {
		y := pts[i].Intensity
		if y <= 0 {
			continue
		}
		leftOK := i == 0 || pts[i].MZ-pts[i-1].MZ > tol || pts[i-1].Intensity < y
		rightOK := i == n-1 || pts[i+1].MZ-pts[i].MZ > tol || pts[i+1].Intensity <= y
		if !leftOK || !rightOK {
			continue
		}

		lo := i
		for lo > 0 && pts[lo].MZ-pts[lo-1].MZ <= tol && pts[lo-1].Intensity <= pts[lo].Intensity && pts[lo-1].Intensity > 0 {
			lo--
		}
		hi := i
		for hi < n-1 && pts[hi+1].MZ-pts[hi].MZ <= tol && pts[hi+1].Intensity <= pts[hi].Intensity && pts[hi+1].Intensity > 0 {
			hi++
		}
		var wsum, isum float64
		for k := lo; k <= hi; k++ {
			wsum += pts[k].MZ * pts[k].Intensity
			isum += pts[k].Intensity
		}
		out = append(out, core.Peak{MZ: wsum / isum, Intensity: y})
	}
	return out
}

// Deisotope folds 13C isotope peaks into their monoisotopic peak. Peaks are
// visited by descending intensity; a peak at +1 or +2 isotope spacing (within
// tol) that is less intense than the claimed parent is added to it and removed.
func Deisotope(peaks []core.Peak, tol float64) []core.Peak {
	if len(peaks) == 0 {
		return []core.Peak{}
	}
	sorted := core.ClonePeaks(peaks)
	core.SortPeaks(sorted)

	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sorted[order[a]].Intensity > sorted[order[b]].Intensity
	})

	absorbed := make([]bool, len(sorted))
	for _, i := range order {
		if absorbed[i] {
			continue
		}
		for k := 1; k <= 2; k++ {
			target := sorted[i].MZ + float64(k)*core.C13C12Diff
			lo, hi := core.PeakRange(sorted, target-tol, target+tol)
			for j := lo; j < hi; j++ {
				if j == i || absorbed[j] || sorted[j].Intensity >= sorted[i].Intensity {
					continue
				}
				sorted[i].Intensity += sorted[j].Intensity
				absorbed[j] = true
			}
		}
	}

	out := make([]core.Peak, 0, len(sorted))
	for i, p := range sorted {
		if !absorbed[i] {
			out = append(out, p)
		}
	}
	return out
}
