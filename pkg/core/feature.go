package core

import "strings"

// Axis names the separation dimension a peak was detected on.
type Axis int

const (
	// AxisRT is the retention-time axis (minutes)
	AxisRT Axis = iota
	// AxisDrift is the ion-mobility drift-time axis (milliseconds)
	AxisDrift
)

func (a Axis) String() string {
	if a == AxisDrift {
		return "drift"
	}
	return "rt"
}

// ChromatogramPeak is one point on a peak boundary or apex.
type ChromatogramPeak struct {
	Index           int     // Point index in the chromatogram the peak was found on
	ScanNumber      int     // RT scan number
	DriftScanNumber int     // Drift scan number (drift axis only)
	Time            float64 // RT or drift time depending on the feature axis
	MZ              float64
	Intensity       float64
}

// IsotopeSummary holds the observed MS1 isotope envelope of a feature.
// Ratios are IsotopeRatioUnavailable when no monoisotopic signal was found.
type IsotopeSummary struct {
	M0Intensity float64
	M1Intensity float64
	M2Intensity float64
	M1Ratio     float64
	M2Ratio     float64
}

// IsotopeRatioUnavailable marks isotope ratios that could not be computed.
const IsotopeRatioUnavailable = -1.0

// Available reports whether the ratios were computed from real signal.
func (s *IsotopeSummary) Available() bool {
	return s != nil && s.M1Ratio != IsotopeRatioUnavailable
}

// ChromatogramPeakFeature is a detected peak on the RT axis, or a drift-axis
// sub-feature nested inside one.
type ChromatogramPeakFeature struct {
	PeakID       int // Index within the parent list
	MasterPeakID int // Unique over every RT feature and drift sub-feature
	ParentPeakID int // MasterPeakID of the RT parent, -1 for RT features
	Axis         Axis

	Mass  float64
	Left  ChromatogramPeak
	Apex  ChromatogramPeak
	Right ChromatogramPeak

	PeakHeightTop         float64
	PeakAreaAboveZero     float64
	PeakAreaAboveBaseline float64
	Baseline              float64
	EstimatedNoise        float64
	SignalToNoise         float64

	// Ion mobility
	CollisionCrossSection float64
	DriftFeatures         []*ChromatogramPeakFeature

	Isotopes     *IsotopeSummary
	MatchResults MatchResultContainer
}

// Width returns the boundary width on the feature's own axis.
func (f *ChromatogramPeakFeature) Width() float64 {
	return f.Right.Time - f.Left.Time
}

// IsRT reports whether f is a retention-time feature.
func (f *ChromatogramPeakFeature) IsRT() bool {
	return f.Axis == AxisRT
}

// NodeCount returns the number of feature nodes (RT features plus drift sub-features).
func NodeCount(features []*ChromatogramPeakFeature) int {
	n := 0
	for _, f := range features {
		n += 1 + len(f.DriftFeatures)
	}
	return n
}

// WalkNodes calls fn for every RT feature followed by its drift sub-features.
func WalkNodes(features []*ChromatogramPeakFeature, fn func(node, parent *ChromatogramPeakFeature)) {
	for _, f := range features {
		fn(f, nil)
		for _, d := range f.DriftFeatures {
			fn(d, f)
		}
	}
}

// MSDecResult is the deconvoluted (or raw-fallback) MS2 spectrum of one feature node.
type MSDecResult struct {
	ScanID        int // MasterPeakID of the node
	RawSpectrumID int // Index of the representative MS2 scan, -1 when none
	PrecursorMZ   float64
	RetentionTime float64
	DriftTime     float64
	Axis          Axis

	Spectrum     []Peak
	ModelMasses  []float64 // Fragment masses whose profiles defined the model
	Deconvoluted bool
	Correlation  float64 // Mean profile correlation of the kept fragments
}

// NewEmptyMSDecResult returns the default result for a node without usable MS2 data.
func NewEmptyMSDecResult(scanID int) *MSDecResult {
	return &MSDecResult{
		ScanID:        scanID,
		RawSpectrumID: -1,
		Spectrum:      []Peak{},
	}
}

// IsEmpty reports whether the result carries no spectrum.
func (r *MSDecResult) IsEmpty() bool {
	return len(r.Spectrum) == 0
}

// MoleculeMsReference is one entry of a reference library.
type MoleculeMsReference struct {
	ScanID         int // Rank in the sorted library
	Name           string
	PrecursorMZ    float64
	PrecursorType  string
	Polarity       Polarity
	Formula        string
	InChIKey       string
	SMILES         string
	Ontology       string
	RetentionTime  float64
	CCS            float64
	IsotopeM1Ratio float64 // 0 when unknown
	IsotopeM2Ratio float64
	Spectrum       []Peak

	SourceFile string
}

// Validate checks the fields required for matching.
func (r *MoleculeMsReference) Validate() error {
	var errs []string
	if r.Name == "" {
		errs = append(errs, "name is required")
	}
	if !finite(r.PrecursorMZ) || r.PrecursorMZ <= 0 {
		errs = append(errs, "precursor m/z must be positive")
	}
	errs = append(errs, validatePeaks(r.Spectrum)...)
	if len(errs) > 0 {
		return &ValidationError{Field: "MoleculeMsReference " + r.Name, Message: strings.Join(errs, "; ")}
	}
	return nil
}

// MatchSource names the database a match result came from.
type MatchSource int

const (
	// SourceMSP is the spectral reference library
	SourceMSP MatchSource = iota
	// SourceTextDB is the precursor-only text database
	SourceTextDB
)

// MsScanMatchResult is one scored pairing of a feature node with a reference entry.
type MsScanMatchResult struct {
	LibraryID int // ScanID (rank) of the reference entry
	Name      string
	InChIKey  string
	Source    MatchSource

	AccurateMassSimilarity float64
	WeightedDotProduct     float64
	ReverseDotProduct      float64
	MatchedPeaksPercentage float64
	MatchedPeaksCount      int
	CCSSimilarity          float64
	IsotopeSimilarity      float64
	TotalScore             float64

	IsPrecursorMzMatch bool
	IsSpectrumMatch    bool
	IsCCSMatch         bool
}

// MatchResultContainer holds the representative match and ranked candidates of a node.
type MatchResultContainer struct {
	Representative       *MsScanMatchResult
	Candidates           []MsScanMatchResult
	TextDBRepresentative *MsScanMatchResult
	TextDBCandidates     []MsScanMatchResult
}

// IsAnnotated reports whether any representative match is set.
func (c *MatchResultContainer) IsAnnotated() bool {
	return c.Representative != nil || c.TextDBRepresentative != nil
}
