package ms2dec

import (
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

type groupResult struct {
	peaks       []core.Peak
	modelMasses []float64
	correlation float64
}

// groupByCorrelation extracts the smoothed profile of every candidate
// fragment across the window slots. Fragments whose profile peaks at the
// apex slot (within one slot) form the model; the sum of their normalized
// profiles is the model profile. Every fragment correlating with the model
// at minCorr or better is kept with its intensity at the apex slot.
// ok is false when no fragment is apex-consistent or none is kept.
func groupByCorrelation(window []slot, apex int, candidate []core.Peak, tol float64, method chrom.SmoothingMethod, minCorr float64) (groupResult, bool) {
	profiles := make([][]float64, len(candidate))
	for i, p := range candidate {
		prof := make([]float64, len(window))
		for k, s := range window {
			prof[k], _, _ = core.SumInWindow(s.peaks, p.MZ-tol, p.MZ+tol)
		}
		profiles[i] = chrom.Smooth(prof, method, 1)
	}

	model := make([]float64, len(window))
	var res groupResult
	for i, prof := range profiles {
		top := argmax(prof)
		if prof[top] <= 0 || top < apex-1 || top > apex+1 {
			continue
		}
		for k, v := range prof {
			model[k] += v / prof[top]
		}
		res.modelMasses = append(res.modelMasses, candidate[i].MZ)
	}
	if len(res.modelMasses) == 0 {
		return groupResult{}, false
	}

	var corrSum float64
	for i, prof := range profiles {
		if prof[apex] <= 0 {
			continue
		}
		r := chrom.Pearson(prof, model)
		if r < minCorr {
			continue
		}
		res.peaks = append(res.peaks, core.Peak{MZ: candidate[i].MZ, Intensity: prof[apex]})
		corrSum += r
	}
	if len(res.peaks) == 0 {
		return groupResult{}, false
	}
	res.correlation = corrSum / float64(len(res.peaks))
	return res, true
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
