package annotation

import (
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// SortReferences orders refs by precursor m/z (stable) and renumbers ScanID
// to the resulting rank. Loaders call it once; Run assumes sorted input and
// does not check.
func SortReferences(refs []*core.MoleculeMsReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].PrecursorMZ < refs[j].PrecursorMZ
	})
	for i, r := range refs {
		r.ScanID = i
	}
}

// ReferencesSorted reports whether refs are in ascending precursor m/z order.
func ReferencesSorted(refs []*core.MoleculeMsReference) bool {
	for i := 1; i < len(refs); i++ {
		if refs[i].PrecursorMZ < refs[i-1].PrecursorMZ {
			return false
		}
	}
	return true
}

// Window returns the half-open index range [lo, hi) of refs whose precursor
// m/z lies in [mass-tol, mass+tol]. refs must be sorted by precursor m/z.
func Window(refs []*core.MoleculeMsReference, mass, tol float64) (int, int) {
	if tol < 0 || len(refs) == 0 {
		return 0, 0
	}
	lo := sort.Search(len(refs), func(i int) bool { return refs[i].PrecursorMZ >= mass-tol })
	hi := lo
	for hi < len(refs) && refs[hi].PrecursorMZ <= mass+tol {
		hi++
	}
	return lo, hi
}
