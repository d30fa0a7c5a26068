package annotation

import (
	"math"
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// isotopeRatioTolerance is the summed M+1/M+2 ratio deviation scored at one sigma.
const isotopeRatioTolerance = 0.1

// SpectrumSimilarity holds the spectral sub-scores of one comparison.
type SpectrumSimilarity struct {
	WeightedDotProduct     float64
	ReverseDotProduct      float64
	MatchedPeaksPercentage float64
	MatchedPeaksCount      int
}

// Average is the mean of the three spectral scores.
func (s SpectrumSimilarity) Average() float64 {
	return (s.WeightedDotProduct + s.ReverseDotProduct + s.MatchedPeaksPercentage) / 3
}

// CompareSpectra scores an experimental spectrum against a reference.
// Each experimental peak is assigned to the nearest reference peak within
// tol. Intensities are compared on a square-root scale:
//
//	weighted dot = Σ sqrt(Ie·Ir) / sqrt(ΣIe_all · ΣIr)
//	reverse dot  = Σ sqrt(Ie·Ir) / sqrt(ΣIe_matched · ΣIr)
//
// Both spectra must be ordered by m/z. Empty inputs score zero.
func CompareSpectra(exp, ref []core.Peak, tol float64) SpectrumSimilarity {
	var s SpectrumSimilarity
	if len(exp) == 0 || len(ref) == 0 || tol <= 0 {
		return s
	}

	matched := make([]float64, len(ref))
	var expTotal float64
	for _, p := range exp {
		if p.Intensity <= 0 {
			continue
		}
		expTotal += p.Intensity
		if j := nearestPeak(ref, p.MZ, tol); j >= 0 {
			matched[j] += p.Intensity
		}
	}

	var refTotal, matchedTotal, cross float64
	for j, r := range ref {
		if r.Intensity <= 0 {
			continue
		}
		refTotal += r.Intensity
		if matched[j] > 0 {
			matchedTotal += matched[j]
			cross += math.Sqrt(matched[j] * r.Intensity)
			s.MatchedPeaksCount++
		}
	}
	if expTotal <= 0 || refTotal <= 0 {
		return SpectrumSimilarity{}
	}

	s.WeightedDotProduct = cross / math.Sqrt(expTotal*refTotal)
	if matchedTotal > 0 {
		s.ReverseDotProduct = cross / math.Sqrt(matchedTotal*refTotal)
	}
	s.MatchedPeaksPercentage = float64(s.MatchedPeaksCount) / float64(countPositive(ref))
	return s
}

// nearestPeak returns the index of the reference peak closest to mz within
// tol, or -1.
func nearestPeak(peaks []core.Peak, mz, tol float64) int {
	i := sort.Search(len(peaks), func(k int) bool { return peaks[k].MZ >= mz-tol })
	best := -1
	for ; i < len(peaks) && peaks[i].MZ <= mz+tol; i++ {
		if best < 0 || math.Abs(peaks[i].MZ-mz) < math.Abs(peaks[best].MZ-mz) {
			best = i
		}
	}
	return best
}

func countPositive(peaks []core.Peak) int {
	n := 0
	for _, p := range peaks {
		if p.Intensity > 0 {
			n++
		}
	}
	return n
}

// GaussianSimilarity maps a deviation onto (0, 1], scoring exp(-0.5) at one tolerance.
func GaussianSimilarity(diff, tol float64) float64 {
	if tol <= 0 || math.IsNaN(diff) {
		return 0
	}
	z := diff / tol
	return math.Exp(-0.5 * z * z)
}

// referenceIsotopes returns the reference's M+1/M and M+2/M ratios, derived
// from its formula when not given explicitly.
func referenceIsotopes(ref *core.MoleculeMsReference) (m1, m2 float64, ok bool) {
	if ref.IsotopeM1Ratio > 0 {
		return ref.IsotopeM1Ratio, ref.IsotopeM2Ratio, true
	}
	if ref.Formula == "" {
		return 0, 0, false
	}
	f, err := core.ParseFormula(ref.Formula)
	if err != nil {
		return 0, 0, false
	}
	m1, m2 = f.IsotopeRatios()
	return m1, m2, m1 > 0
}

// query is one feature node as seen by the scorer.
type query struct {
	mass     float64
	tol      float64
	ccs      float64
	isotopes *core.IsotopeSummary
	spectrum []core.Peak
	ms2Tol   float64
}

// scorer holds the annotation settings shared by every comparison.
type scorer struct {
	totalCutoff   float64
	wdotCutoff    float64
	rdotCutoff    float64
	matchedCutoff float64
	minMatched    int
	useCCS        bool
	ccsTolerance  float64 // percent
	useIsotopes   bool
}

// score compares a node against one reference. spectral selects full
// spectrum matching; without it only precursor, CCS and isotopes count.
func (s scorer) score(q query, ref *core.MoleculeMsReference, spectral bool) core.MsScanMatchResult {
	res := core.MsScanMatchResult{
		LibraryID: ref.ScanID,
		Name:      ref.Name,
		InChIKey:  ref.InChIKey,
	}

	diff := math.Abs(q.mass - ref.PrecursorMZ)
	res.AccurateMassSimilarity = GaussianSimilarity(diff, q.tol)
	res.IsPrecursorMzMatch = diff <= q.tol
	total, weights := res.AccurateMassSimilarity, 1.0

	if s.useIsotopes && q.isotopes.Available() {
		if m1, m2, ok := referenceIsotopes(ref); ok {
			dev := math.Abs(q.isotopes.M1Ratio-m1) + math.Abs(q.isotopes.M2Ratio-m2)
			res.IsotopeSimilarity = GaussianSimilarity(dev, isotopeRatioTolerance)
			total += res.IsotopeSimilarity
			weights++
		}
	}

	if spectral && len(q.spectrum) > 0 && len(ref.Spectrum) > 0 {
		sim := CompareSpectra(q.spectrum, ref.Spectrum, q.ms2Tol)
		res.WeightedDotProduct = sim.WeightedDotProduct
		res.ReverseDotProduct = sim.ReverseDotProduct
		res.MatchedPeaksPercentage = sim.MatchedPeaksPercentage
		res.MatchedPeaksCount = sim.MatchedPeaksCount
		res.IsSpectrumMatch = sim.WeightedDotProduct >= s.wdotCutoff &&
			sim.ReverseDotProduct >= s.rdotCutoff &&
			sim.MatchedPeaksPercentage >= s.matchedCutoff &&
			sim.MatchedPeaksCount >= s.minMatched
		total += 3 * sim.Average()
		weights += 3
	}

	if s.useCCS && q.ccs > 0 && ref.CCS > 0 {
		ccsTol := ref.CCS * s.ccsTolerance / 100
		ccsDiff := math.Abs(q.ccs - ref.CCS)
		res.CCSSimilarity = GaussianSimilarity(ccsDiff, ccsTol)
		res.IsCCSMatch = ccsDiff <= ccsTol
		total += res.CCSSimilarity
		weights++
	}

	res.TotalScore = total / weights
	return res
}

// accepts reports whether a scored candidate is kept. A precursor match is
// always kept; a spectrum match alone must also reach the total score cutoff.
func (s scorer) accepts(r core.MsScanMatchResult) bool {
	return r.IsPrecursorMzMatch || (r.IsSpectrumMatch && r.TotalScore >= s.totalCutoff)
}

// rankBefore orders candidates by total score descending, then library rank.
func rankBefore(a, b core.MsScanMatchResult) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.LibraryID < b.LibraryID
}
