// Package core provides the intermediate representation (IR) models and validation logic
// for raw LC-IM-MS scans, detected features and reference library entries.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Polarity is the ionization polarity of a scan or reference entry.
type Polarity int

const (
	// Positive ion mode
	Positive Polarity = iota
	// Negative ion mode
	Negative
)

// String returns "+" or "-".
func (p Polarity) String() string {
	if p == Negative {
		return "-"
	}
	return "+"
}

// ParsePolarity accepts "+", "-", "positive", "negative" (case-insensitive).
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "positive", "pos", "p":
		return Positive, nil
	case "-", "negative", "neg", "n":
		return Negative, nil
	}
	return Positive, fmt.Errorf("unknown polarity %q", s)
}

// RawSpectrum represents one scan as delivered by a spectrum source.
// It is treated as immutable once produced.
type RawSpectrum struct {
	Index         int     // Position in the source's spectrum list
	ScanNumber    int     // RT scan (frame) number
	ScanStartTime float64 // Retention time in minutes
	MSLevel       int
	Polarity      Polarity

	// Optional metadata
	Precursor       *Precursor
	DriftScanNumber int     // 0 when the acquisition has no ion mobility
	DriftTime       float64 // Drift time in milliseconds

	Peaks []Peak // Ordered by m/z

	// Summary fields, see UpdateSummary
	BasePeakMZ        float64
	BasePeakIntensity float64
	TotalIonCurrent   float64
	LowestObservedMZ  float64
	HighestObservedMZ float64
}

// Precursor describes the ion selected for fragmentation.
type Precursor struct {
	SelectedMZ      float64
	IsolationLower  float64 // Offset below SelectedMZ
	IsolationUpper  float64 // Offset above SelectedMZ
	CollisionEnergy float64
}

// Contains reports whether mz falls inside the isolation window. A window with
// zero offsets falls back to ±fallback around the selected m/z.
func (p *Precursor) Contains(mz, fallback float64) bool {
	lo, hi := p.IsolationLower, p.IsolationUpper
	if lo <= 0 && hi <= 0 {
		lo, hi = fallback, fallback
	}
	return mz >= p.SelectedMZ-lo && mz <= p.SelectedMZ+hi
}

// Peak represents a single m/z, intensity pair.
type Peak struct {
	MZ        float64
	Intensity float64
	Comment   string // Free-form annotation carried by library spectra
}

// ValidationError represents an error found during validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a scan is internally consistent.
func (s *RawSpectrum) Validate() error {
	var errs []string

	if s.MSLevel <= 0 {
		errs = append(errs, "ms level must be positive")
	}
	if s.ScanStartTime < 0 || math.IsNaN(s.ScanStartTime) {
		errs = append(errs, "scan start time must be non-negative")
	}
	if s.MSLevel > 1 && s.Precursor == nil {
		errs = append(errs, "msn scan requires a precursor")
	}
	errs = append(errs, validatePeaks(s.Peaks)...)

	if !PeaksSorted(s.Peaks) {
		errs = append(errs, "peaks must be sorted by m/z")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   fmt.Sprintf("RawSpectrum[%d]", s.Index),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

func validatePeaks(peaks []Peak) []string {
	var errs []string
	for i, peak := range peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.MZ <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d m/z must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}
	return errs
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *RawSpectrum) ArePeaksSorted() bool {
	return PeaksSorted(s.Peaks)
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *RawSpectrum) SortPeaks() {
	SortPeaks(s.Peaks)
}

// UpdateSummary recomputes base peak, TIC and observed m/z bounds.
func (s *RawSpectrum) UpdateSummary() {
	s.BasePeakMZ, s.BasePeakIntensity, s.TotalIonCurrent = 0, 0, 0
	s.LowestObservedMZ, s.HighestObservedMZ = 0, 0
	if len(s.Peaks) == 0 {
		return
	}
	s.LowestObservedMZ = s.Peaks[0].MZ
	s.HighestObservedMZ = s.Peaks[0].MZ
	for _, p := range s.Peaks {
		s.TotalIonCurrent += p.Intensity
		if p.Intensity > s.BasePeakIntensity {
			s.BasePeakIntensity = p.Intensity
			s.BasePeakMZ = p.MZ
		}
		if p.MZ < s.LowestObservedMZ {
			s.LowestObservedMZ = p.MZ
		}
		if p.MZ > s.HighestObservedMZ {
			s.HighestObservedMZ = p.MZ
		}
	}
}

// PeaksSorted reports whether peaks are in ascending m/z order.
func PeaksSorted(peaks []Peak) bool {
	for i := 1; i < len(peaks); i++ {
		if peaks[i].MZ < peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func SortPeaks(peaks []Peak) {
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].MZ < peaks[j].MZ
	})
}

// PeakRange returns the half-open index range [lo, hi) of peaks with m/z in
// [mzMin, mzMax]. Peaks must be ordered by m/z.
func PeakRange(peaks []Peak, mzMin, mzMax float64) (int, int) {
	lo := sort.Search(len(peaks), func(i int) bool { return peaks[i].MZ >= mzMin })
	hi := sort.Search(len(peaks), func(i int) bool { return peaks[i].MZ > mzMax })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// SumInWindow returns the summed intensity of peaks in [mzMin, mzMax] together
// with the m/z of the most intense peak in the window.
func SumInWindow(peaks []Peak, mzMin, mzMax float64) (sum, apexMZ, apexIntensity float64) {
	lo, hi := PeakRange(peaks, mzMin, mzMax)
	for i := lo; i < hi; i++ {
		sum += peaks[i].Intensity
		if peaks[i].Intensity > apexIntensity {
			apexIntensity = peaks[i].Intensity
			apexMZ = peaks[i].MZ
		}
	}
	return sum, apexMZ, apexIntensity
}

// ClonePeaks returns a copy of peaks.
func ClonePeaks(peaks []Peak) []Peak {
	if peaks == nil {
		return nil
	}
	out := make([]Peak, len(peaks))
	copy(out, peaks)
	return out
}
