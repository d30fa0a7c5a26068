package spotting

import (
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
)

// WidthFunc returns the mass distance within which two features at mass may
// be duplicates of one another.
type WidthFunc func(mass float64) float64

// ConflictWidth returns the duplicate distance for p: the slice step in grid
// mode, the MS1 tolerance in targeted mode.
func ConflictWidth(p params.Params) WidthFunc {
	if len(p.Peak.TargetedMasses) > 0 {
		tol := p.Tolerance
		return func(mass float64) float64 {
			return core.ToleranceAt(mass, tol.MS1, tol.CrossoverMass)
		}
	}
	step := p.SliceStep()
	return func(float64) float64 { return step }
}

// rankBefore orders features for suppression: taller first, then lighter,
// then earlier.
func rankBefore(a, b *core.ChromatogramPeakFeature) bool {
	if a.PeakHeightTop != b.PeakHeightTop {
		return a.PeakHeightTop > b.PeakHeightTop
	}
	if a.Mass != b.Mass {
		return a.Mass < b.Mass
	}
	if a.Apex.Time != b.Apex.Time {
		return a.Apex.Time < b.Apex.Time
	}
	return a.Left.Time < b.Left.Time
}

// conflicts reports whether a and b describe the same physical peak: their
// masses lie within width and each apex falls inside the other's boundaries.
func conflicts(a, b *core.ChromatogramPeakFeature, width float64) bool {
	d := a.Mass - b.Mass
	if d < 0 {
		d = -d
	}
	if d > width {
		return false
	}
	return within(a.Apex.Time, b) && within(b.Apex.Time, a)
}

func within(t float64, f *core.ChromatogramPeakFeature) bool {
	return t >= f.Left.Time && t <= f.Right.Time
}

// RemoveRedundant suppresses duplicate detections of the same peak from
// overlapping slices, keeping the higher-ranked one, and returns the
// survivors sorted by mass then apex time. The input slice is not modified.
// Applying it to its own output returns the same list.
func RemoveRedundant(features []*core.ChromatogramPeakFeature, width WidthFunc) []*core.ChromatogramPeakFeature {
	ranked := make([]*core.ChromatogramPeakFeature, len(features))
	copy(ranked, features)
	sort.SliceStable(ranked, func(i, j int) bool { return rankBefore(ranked[i], ranked[j]) })

	// accepted is kept ordered by mass for windowed lookups
	var accepted []*core.ChromatogramPeakFeature
	for _, f := range ranked {
		w := width(f.Mass)
		lo := sort.Search(len(accepted), func(i int) bool { return accepted[i].Mass >= f.Mass-w })
		dup := false
		for i := lo; i < len(accepted) && accepted[i].Mass <= f.Mass+w; i++ {
			if conflicts(f, accepted[i], w) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		at := sort.Search(len(accepted), func(i int) bool { return accepted[i].Mass > f.Mass })
		accepted = append(accepted, nil)
		copy(accepted[at+1:], accepted[at:])
		accepted[at] = f
	}

	SortFeatures(accepted)
	return accepted
}

// SortFeatures orders features by mass, apex time, then height descending.
func SortFeatures(features []*core.ChromatogramPeakFeature) {
	sort.SliceStable(features, func(i, j int) bool {
		a, b := features[i], features[j]
		if a.Mass != b.Mass {
			return a.Mass < b.Mass
		}
		if a.Apex.Time != b.Apex.Time {
			return a.Apex.Time < b.Apex.Time
		}
		return a.PeakHeightTop > b.PeakHeightTop
	})
}

// AssignIDs numbers features in order. PeakID is the position within the
// parent list, MasterPeakID is unique over RT features and their drift
// sub-features in traversal order, and ParentPeakID links a drift
// sub-feature to its RT feature (-1 for RT features).
func AssignIDs(features []*core.ChromatogramPeakFeature) {
	master := 0
	for i, f := range features {
		f.PeakID = i
		f.MasterPeakID = master
		f.ParentPeakID = -1
		master++
		for j, d := range f.DriftFeatures {
			d.PeakID = j
			d.MasterPeakID = master
			d.ParentPeakID = f.MasterPeakID
			master++
		}
	}
}
