// Package filter provides peak filtering functions for MS2 candidate spectra
package filter

import (
	"sort"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	AmplitudeCutoff      float64 // Drop peaks below this absolute intensity (0 = no cutoff)
	RelativeCutoff       float64 // Drop peaks below this % of base peak (0 = no cutoff)
	TopN                 int     // Keep only top N most intense peaks (0 = no limit)
	RemoveAfterPrecursor bool    // Drop peaks above precursor m/z + KeepIsotopeRange
	KeepIsotopeRange     float64 // Da above the precursor kept when RemoveAfterPrecursor is set
}

// Apply applies all configured filters and returns the kept peaks sorted by m/z.
// precursorMZ is ignored when RemoveAfterPrecursor is false.
func (c *Config) Apply(peaks []core.Peak, precursorMZ float64) []core.Peak {
	peaks = RemoveZeroIntensityPeaks(peaks)

	// Post-precursor interference removal first so the base peak is the compound's own
	if c.RemoveAfterPrecursor && precursorMZ > 0 {
		peaks = c.filterAfterPrecursor(peaks, precursorMZ)
	}

	if c.AmplitudeCutoff > 0 {
		peaks = filterByAmplitude(peaks, c.AmplitudeCutoff)
	}

	if c.RelativeCutoff > 0 {
		peaks = c.filterByIntensity(peaks)
	}

	if c.TopN > 0 {
		peaks = c.filterTopN(peaks)
	}

	// Ensure peaks are sorted after all filtering
	core.SortPeaks(peaks)

	return peaks
}

// filterAfterPrecursor removes peaks heavier than the precursor isotope window
func (c *Config) filterAfterPrecursor(peaks []core.Peak, precursorMZ float64) []core.Peak {
	limit := precursorMZ + c.KeepIsotopeRange

	filtered := peaks[:0:0]
	for _, peak := range peaks {
		if peak.MZ <= limit {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}

// filterByAmplitude removes peaks below an absolute intensity
func filterByAmplitude(peaks []core.Peak, cutoff float64) []core.Peak {
	filtered := peaks[:0:0]
	for _, peak := range peaks {
		if peak.Intensity >= cutoff {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(peaks []core.Peak) []core.Peak {
	if len(peaks) == 0 {
		return peaks
	}

	// Find maximum intensity
	maxIntensity := 0.0
	for _, peak := range peaks {
		if peak.Intensity > maxIntensity {
			maxIntensity = peak.Intensity
		}
	}

	// Calculate threshold
	threshold := (c.RelativeCutoff / 100.0) * maxIntensity

	return filterByAmplitude(peaks, threshold)
}

// filterTopN keeps only the N most intense peaks
func (c *Config) filterTopN(peaks []core.Peak) []core.Peak {
	if len(peaks) <= c.TopN {
		return peaks
	}

	// Create a copy and sort by intensity descending, lighter m/z first on ties
	sorted := core.ClonePeaks(peaks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Intensity != sorted[j].Intensity {
			return sorted[i].Intensity > sorted[j].Intensity
		}
		return sorted[i].MZ < sorted[j].MZ
	})

	return sorted[:c.TopN]
}

// RemoveZeroIntensityPeaks returns the peaks with positive intensity
func RemoveZeroIntensityPeaks(peaks []core.Peak) []core.Peak {
	filtered := make([]core.Peak, 0, len(peaks))
	for _, peak := range peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}
