package ms2dec

import (
	"math"
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// slot is one position on a node's axis: an RT scan for RT nodes, a drift
// scan for drift nodes.
type slot struct {
	axis  float64     // Retention time or drift time
	index int         // Index of the representative MS2 spectrum
	peaks []core.Peak // Ordered by m/z
}

// rtSlots collects the MS2 frames whose isolation window contains mass and
// whose time lies in [lo, hi], one slot per scan number.
func rtSlots(frames []*core.RawSpectrum, mass, lo, hi float64) []slot {
	start := sort.Search(len(frames), func(i int) bool { return frames[i].ScanStartTime >= lo })
	var out []slot
	last := -1
	for i := start; i < len(frames); i++ {
		s := frames[i]
		if s.ScanStartTime > hi {
			break
		}
		if s.Precursor == nil || !s.Precursor.Contains(mass, isolationFallback) {
			continue
		}
		if last >= 0 && frames[last].ScanNumber == s.ScanNumber {
			// Overlapping windows of one scan
			sl := &out[len(out)-1]
			sl.peaks = append(core.ClonePeaks(sl.peaks), s.Peaks...)
			core.SortPeaks(sl.peaks)
			last = i
			continue
		}
		out = append(out, slot{axis: s.ScanStartTime, index: s.Index, peaks: s.Peaks})
		last = i
	}
	return out
}

// driftSlots collects non-accumulated MS2 scans within the parent's RT
// boundaries whose isolation window contains mass, summed per drift scan
// number and restricted to drift times in [lo, hi]. Peaks of one drift scan
// number within tol are merged into one. The representative scan of a slot
// is the one closest to the parent's apex time.
func driftSlots(scans []*core.RawSpectrum, mass float64, parent *core.ChromatogramPeakFeature, lo, hi, tol float64) []slot {
	type acc struct {
		slot
		dist  float64
		parts []core.Peak
	}
	groups := make(map[int]*acc)

	start := sort.Search(len(scans), func(i int) bool { return scans[i].ScanStartTime >= parent.Left.Time })
	for i := start; i < len(scans); i++ {
		s := scans[i]
		if s.ScanStartTime > parent.Right.Time {
			break
		}
		if s.DriftTime < lo || s.DriftTime > hi {
			continue
		}
		if s.Precursor == nil || !s.Precursor.Contains(mass, isolationFallback) {
			continue
		}
		dist := math.Abs(s.ScanStartTime - parent.Apex.Time)
		g, ok := groups[s.DriftScanNumber]
		if !ok {
			g = &acc{slot: slot{axis: s.DriftTime, index: s.Index}, dist: dist}
			groups[s.DriftScanNumber] = g
		}
		if dist < g.dist {
			g.dist = dist
			g.index = s.Index
		}
		g.parts = append(g.parts, s.Peaks...)
	}

	out := make([]slot, 0, len(groups))
	for _, g := range groups {
		g.peaks = MergePeaks(g.parts, tol)
		out = append(out, g.slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].axis < out[j].axis })
	return out
}

// nearest returns the index of the slot closest to t, the earlier one on ties.
func nearest(slots []slot, t float64) int {
	best := 0
	for i, s := range slots {
		if math.Abs(s.axis-t) < math.Abs(slots[best].axis-t) {
			best = i
		}
	}
	return best
}
