// Package params holds the processing parameter snapshot passed into every
// pipeline stage.
package params

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/chrom"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Separation names the separation axes present in the acquisition.
type Separation string

const (
	// SeparationLC is liquid chromatography without ion mobility
	SeparationLC Separation = "lc"
	// SeparationLCIM is liquid chromatography coupled with ion mobility
	SeparationLCIM Separation = "lcim"
	// SeparationIM is ion mobility without chromatography (infusion)
	SeparationIM Separation = "im"
)

// AcquisitionType names the MS2 acquisition scheme.
type AcquisitionType string

const (
	// DDA is data-dependent acquisition (narrow isolation)
	DDA AcquisitionType = "dda"
	// SWATH is sequential wide-window data-independent acquisition
	SWATH AcquisitionType = "swath"
	// AIF is all-ion fragmentation
	AIF AcquisitionType = "aif"
)

// Params is the complete parameter snapshot of one run
type Params struct {
	Acquisition   AcquisitionParams   `yaml:"acquisition"`
	Tolerance     ToleranceParams     `yaml:"tolerance"`
	Peak          PeakParams          `yaml:"peak"`
	IonMobility   IonMobilityParams   `yaml:"ion_mobility"`
	Deconvolution DeconvolutionParams `yaml:"deconvolution"`
	Annotation    AnnotationParams    `yaml:"annotation"`
	Run           RunParams           `yaml:"run"`
}

// AcquisitionParams describes how the raw data was acquired
type AcquisitionParams struct {
	Separation Separation      `yaml:"separation"`
	Type       AcquisitionType `yaml:"type"`
	// MS2Profile is true when MS2 scans are profile data that need centroiding
	MS2Profile bool `yaml:"ms2_profile"`
}

// ToleranceParams configures the adaptive m/z tolerances (see core.ToleranceAt)
type ToleranceParams struct {
	// MS1 is the absolute MS1 tolerance in Da below the crossover mass
	MS1 float64 `yaml:"ms1"`
	// MS2 is the absolute MS2 tolerance in Da below the crossover mass
	MS2 float64 `yaml:"ms2"`
	// CrossoverMass is the m/z above which tolerances scale as ppm
	CrossoverMass float64 `yaml:"crossover_mass"`
}

// PeakParams configures peak spotting
type PeakParams struct {
	MassRangeBegin     float64 `yaml:"mass_range_begin"`
	MassRangeEnd       float64 `yaml:"mass_range_end"`
	RetentionTimeBegin float64 `yaml:"rt_begin"`
	RetentionTimeEnd   float64 `yaml:"rt_end"`
	MassSliceWidth     float64 `yaml:"mass_slice_width"`
	// NominalMass steps the grid by 1.0 regardless of MassSliceWidth
	NominalMass       bool    `yaml:"nominal_mass"`
	MinimumDatapoints int     `yaml:"minimum_datapoints"`
	MinimumAmplitude  float64 `yaml:"minimum_amplitude"`
	SmoothingMethod   string  `yaml:"smoothing_method"`
	SmoothingLevel    int     `yaml:"smoothing_level"`
	// BackgroundSubtraction drops peaks that do not clear MinimumAmplitude
	// above their local linear baseline
	BackgroundSubtraction bool `yaml:"background_subtraction"`
	// TargetedMasses switches to targeted mode when non-empty
	TargetedMasses []float64 `yaml:"targeted_masses,omitempty"`
}

// IonMobilityParams configures the drift-axis pass
type IonMobilityParams struct {
	MinimumDatapoints int     `yaml:"minimum_datapoints"`
	MinimumAmplitude  float64 `yaml:"minimum_amplitude"`
	SmoothingLevel    int     `yaml:"smoothing_level"`
	// AccumulationBinWidth is the m/z bin width used when summing drift slices
	AccumulationBinWidth float64             `yaml:"accumulation_bin_width"`
	Calibration          core.CCSCalibration `yaml:"calibration"`
	Charge               int                 `yaml:"charge"`
	// KeepWithoutDriftPeaks retains RT features that have no drift sub-feature
	KeepWithoutDriftPeaks bool `yaml:"keep_without_drift_peaks"`
}

// DeconvolutionParams configures Ms2Dec
type DeconvolutionParams struct {
	Enabled bool `yaml:"enabled"`
	// AccumulateMS2 sums MS2 peaks across the peak width instead of using the scan nearest the apex
	AccumulateMS2        bool    `yaml:"accumulate_ms2"`
	AmplitudeCutoff      float64 `yaml:"amplitude_cutoff"`
	RelativeCutoff       float64 `yaml:"relative_cutoff"`
	RemoveAfterPrecursor bool    `yaml:"remove_after_precursor"`
	KeepIsotopeRange     float64 `yaml:"keep_isotope_range"`
	MinCorrelation       float64 `yaml:"min_correlation"`
	MinimumProfilePoints int     `yaml:"minimum_profile_points"`
	// IsotopeModel re-expresses raw spectra with isotope clusters collapsed
	IsotopeModel bool `yaml:"isotope_model"`
	// KeepPrecursorIsotopes restores the raw precursor isotope peaks after grouping
	KeepPrecursorIsotopes bool `yaml:"keep_precursor_isotopes"`
	// CollisionEnergy selects the MS2 scans of one energy; nil takes the lowest acquired
	CollisionEnergy *float64 `yaml:"collision_energy,omitempty"`
}

// AnnotationParams configures library matching
type AnnotationParams struct {
	TotalScoreCutoff          float64 `yaml:"total_score_cutoff"`
	WeightedDotProductCutoff  float64 `yaml:"weighted_dot_product_cutoff"`
	ReverseDotProductCutoff   float64 `yaml:"reverse_dot_product_cutoff"`
	MatchedPeaksPercentCutoff float64 `yaml:"matched_peaks_percent_cutoff"`
	MinimumMatchedPeaks       int     `yaml:"minimum_matched_peaks"`
	// UseCCS includes CCS similarity in the total score when both sides carry CCS
	UseCCS bool `yaml:"use_ccs"`
	// CCSTolerance is the relative CCS tolerance in percent
	CCSTolerance float64 `yaml:"ccs_tolerance"`
	// UseIsotopes includes isotope-ratio similarity in the total score
	UseIsotopes bool `yaml:"use_isotopes"`
	// MaxCandidates caps the candidate list of a node; 0 keeps all
	MaxCandidates int `yaml:"max_candidates"`
}

// RunParams configures execution
type RunParams struct {
	// Threads bounds the worker count; values below 2 run single-threaded
	Threads int `yaml:"threads"`
}

// Default returns Params with sensible defaults
func Default() Params {
	return Params{
		Acquisition: AcquisitionParams{
			Separation: SeparationLCIM,
			Type:       DDA,
		},
		Tolerance: ToleranceParams{
			MS1:           0.01,
			MS2:           0.025,
			CrossoverMass: 500,
		},
		Peak: PeakParams{
			MassRangeBegin:        0,
			MassRangeEnd:          2000,
			RetentionTimeBegin:    0,
			RetentionTimeEnd:      100,
			MassSliceWidth:        0.1,
			MinimumDatapoints:     5,
			MinimumAmplitude:      1000,
			SmoothingMethod:       string(chrom.LinearWeightedMovingAverage),
			SmoothingLevel:        3,
			BackgroundSubtraction: true,
		},
		IonMobility: IonMobilityParams{
			MinimumDatapoints:     5,
			MinimumAmplitude:      1000,
			SmoothingLevel:        3,
			AccumulationBinWidth:  0.0005,
			Charge:                1,
			KeepWithoutDriftPeaks: true,
		},
		Deconvolution: DeconvolutionParams{
			Enabled:              true,
			AccumulateMS2:        true,
			AmplitudeCutoff:      0,
			RelativeCutoff:       0,
			RemoveAfterPrecursor: true,
			KeepIsotopeRange:     5,
			MinCorrelation:       0.7,
			MinimumProfilePoints: 3,
		},
		Annotation: AnnotationParams{
			TotalScoreCutoff:          0.8,
			WeightedDotProductCutoff:  0.5,
			ReverseDotProductCutoff:   0.5,
			MatchedPeaksPercentCutoff: 0.25,
			MinimumMatchedPeaks:       1,
			CCSTolerance:              5,
			UseIsotopes:               true,
			MaxCandidates:             0,
		},
		Run: RunParams{
			Threads: 1,
		},
	}
}

// Validate checks every section and reports all problems at once
func (p Params) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch p.Acquisition.Separation {
	case SeparationLC, SeparationLCIM, SeparationIM:
	default:
		add("acquisition.separation must be lc, lcim or im, got %q", p.Acquisition.Separation)
	}
	switch p.Acquisition.Type {
	case DDA, SWATH, AIF:
	default:
		add("acquisition.type must be dda, swath or aif, got %q", p.Acquisition.Type)
	}

	if !positive(p.Tolerance.MS1) {
		add("tolerance.ms1 must be positive")
	}
	if !positive(p.Tolerance.MS2) {
		add("tolerance.ms2 must be positive")
	}
	if p.Tolerance.CrossoverMass < 0 || math.IsNaN(p.Tolerance.CrossoverMass) {
		add("tolerance.crossover_mass must not be negative")
	}

	pk := p.Peak
	if len(pk.TargetedMasses) == 0 {
		if !(pk.MassRangeEnd > pk.MassRangeBegin) {
			add("peak.mass_range_end must be greater than peak.mass_range_begin")
		}
		if !pk.NominalMass && !positive(pk.MassSliceWidth) {
			add("peak.mass_slice_width must be positive")
		}
	}
	for i, m := range pk.TargetedMasses {
		if !positive(m) {
			add("peak.targeted_masses[%d] must be positive", i)
		}
	}
	if !(pk.RetentionTimeEnd > pk.RetentionTimeBegin) {
		add("peak.rt_end must be greater than peak.rt_begin")
	}
	if pk.MinimumDatapoints < 1 {
		add("peak.minimum_datapoints must be at least 1")
	}
	if pk.MinimumAmplitude < 0 {
		add("peak.minimum_amplitude must not be negative")
	}
	if _, err := chrom.ParseSmoothingMethod(pk.SmoothingMethod); err != nil {
		add("peak.smoothing_method: %v", err)
	}
	if pk.SmoothingLevel < 0 {
		add("peak.smoothing_level must not be negative")
	}

	if p.IonMobility.SmoothingLevel < 0 {
		add("ion_mobility.smoothing_level must not be negative")
	}
	if p.IonMobility.AccumulationBinWidth < 0 {
		add("ion_mobility.accumulation_bin_width must not be negative")
	}
	if p.IonMobility.Calibration.Beta < 0 {
		add("ion_mobility.calibration.beta must not be negative")
	}

	d := p.Deconvolution
	if d.MinCorrelation < -1 || d.MinCorrelation > 1 {
		add("deconvolution.min_correlation must be between -1 and 1")
	}
	if d.RelativeCutoff < 0 || d.RelativeCutoff > 100 {
		add("deconvolution.relative_cutoff must be between 0 and 100")
	}
	if d.AmplitudeCutoff < 0 || d.KeepIsotopeRange < 0 {
		add("deconvolution cutoffs must not be negative")
	}

	a := p.Annotation
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"total_score_cutoff", a.TotalScoreCutoff},
		{"weighted_dot_product_cutoff", a.WeightedDotProductCutoff},
		{"reverse_dot_product_cutoff", a.ReverseDotProductCutoff},
		{"matched_peaks_percent_cutoff", a.MatchedPeaksPercentCutoff},
	} {
		if c.value < 0 || c.value > 1 {
			add("annotation.%s must be between 0 and 1", c.name)
		}
	}
	if a.CCSTolerance < 0 {
		add("annotation.ccs_tolerance must not be negative")
	}
	if a.MaxCandidates < 0 {
		add("annotation.max_candidates must not be negative")
	}

	if p.Run.Threads < 0 {
		add("run.threads must not be negative")
	}

	if len(errs) > 0 {
		return &core.ValidationError{Field: "params", Message: strings.Join(errs, "; ")}
	}
	return nil
}

// SliceStep returns the grid step of mass slicing.
func (p Params) SliceStep() float64 {
	if p.Peak.NominalMass {
		return 1.0
	}
	return p.Peak.MassSliceWidth
}

// HasIonMobility reports whether the drift axis is processed.
func (p Params) HasIonMobility() bool {
	return p.Acquisition.Separation == SeparationLCIM || p.Acquisition.Separation == SeparationIM
}

// LoadFromFile loads parameters from a YAML file on top of Default
func LoadFromFile(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("failed to parse params file: %w", err)
	}
	return p, nil
}

// SaveToFile writes parameters as YAML
func (p Params) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write params file: %w", err)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
