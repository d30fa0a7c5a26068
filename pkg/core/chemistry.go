// Package core provides chemistry calculations for precursor, isotope and CCS handling
package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Atomic masses (monoisotopic)
const (
	MassH  = 1.00782503207
	MassC  = 12.0000000000
	MassN  = 14.0030740048
	MassO  = 15.99491461956
	MassS  = 31.97207100
	MassP  = 30.97376163
	MassF  = 18.99840322
	MassCl = 34.96885268
	MassBr = 78.9183371
	MassI  = 126.904473
	MassSi = 27.9769265325
	MassNa = 22.9897692809
	MassK  = 38.96370668

	// Proton and electron masses for charge calculations
	ProtonMass   = 1.00727646688
	ElectronMass = 0.00054858

	// C13C12Diff is the mass spacing of the carbon isotope envelope
	C13C12Diff = 1.003354838

	// MassN2 is the drift gas mass used by the default CCS calibration
	MassN2 = 28.006148
)

// ElementMasses maps element symbols to monoisotopic masses
var ElementMasses = map[string]float64{
	"H": MassH, "C": MassC, "N": MassN, "O": MassO, "S": MassS, "P": MassP,
	"F": MassF, "Cl": MassCl, "Br": MassBr, "I": MassI, "Si": MassSi,
	"Na": MassNa, "K": MassK,
}

// Heavy-isotope abundance ratios relative to the lightest isotope.
var (
	m1Ratios = map[string]float64{
		"C": 0.010816, "H": 0.000115, "N": 0.003654, "O": 0.000381,
		"S": 0.007895, "Si": 0.050634,
	}
	m2Ratios = map[string]float64{
		"O": 0.002055, "S": 0.044741, "Cl": 0.319924, "Br": 0.972780,
		"Si": 0.033612,
	}
)

// Formula is an elemental composition
type Formula map[string]int

var formulaToken = regexp.MustCompile(`([A-Z][a-z]?)(\d*)`)

// ParseFormula parses a Hill-style formula such as "C6H12O6".
func ParseFormula(s string) (Formula, error) {
	if s == "" {
		return nil, fmt.Errorf("empty formula")
	}
	f := Formula{}
	consumed := 0
	for _, m := range formulaToken.FindAllStringSubmatchIndex(s, -1) {
		if m[0] != consumed {
			return nil, fmt.Errorf("invalid formula %q at offset %d", s, consumed)
		}
		consumed = m[1]
		elem := s[m[2]:m[3]]
		if _, ok := ElementMasses[elem]; !ok {
			return nil, fmt.Errorf("unknown element %q in formula %q", elem, s)
		}
		n := 1
		if m[5] > m[4] {
			v, err := strconv.Atoi(s[m[4]:m[5]])
			if err != nil {
				return nil, fmt.Errorf("invalid count in formula %q: %w", s, err)
			}
			n = v
		}
		f[elem] += n
	}
	if consumed != len(s) {
		return nil, fmt.Errorf("invalid formula %q at offset %d", s, consumed)
	}
	return f, nil
}

// ExactMass computes the neutral monoisotopic mass of the formula.
func (f Formula) ExactMass() float64 {
	mass := 0.0
	for elem, n := range f {
		mass += float64(n) * ElementMasses[elem]
	}
	return mass
}

// IsotopeRatios returns the theoretical M+1/M and M+2/M intensity ratios.
func (f Formula) IsotopeRatios() (m1, m2 float64) {
	for elem, n := range f {
		m1 += float64(n) * m1Ratios[elem]
		m2 += float64(n) * m2Ratios[elem]
	}
	// Two independent single-heavy substitutions also land on M+2
	m2 += m1 * m1 / 2
	return m1, m2
}

// ToleranceAt returns the absolute m/z tolerance at mass. Below the crossover
// point the fixed tolerance applies; above it the equivalent ppm is scaled so
// heavier ions get proportionally wider windows. Invalid inputs return 0.
func ToleranceAt(mass, tolDa, crossover float64) float64 {
	if !finite(mass) || !finite(tolDa) || tolDa <= 0 || mass <= 0 {
		return 0
	}
	if !finite(crossover) || crossover <= 0 || mass <= crossover {
		return tolDa
	}
	ppm := tolDa / crossover * 1e6
	return ppm * mass / 1e6
}

// PPM returns the mass error of observed against reference in parts per million.
func PPM(observed, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (observed - reference) / reference * 1e6
}

// CCSCalibration holds single-field drift tube calibration constants:
// driftTime = Beta * gamma * CCS + TFix, gamma = sqrt(m/(m+mGas)) / z.
type CCSCalibration struct {
	Beta    float64 `yaml:"beta"`
	TFix    float64 `yaml:"tfix"`
	GasMass float64 `yaml:"gas_mass"`
}

// Enabled reports whether the calibration can convert drift times.
func (c CCSCalibration) Enabled() bool {
	return c.Beta > 0 && finite(c.Beta)
}

// CCS converts a drift time (ms) of an ion at mz with the given charge to a
// collision cross-section in Å². Returns 0 when the calibration is disabled.
func (c CCSCalibration) CCS(driftTime, mz float64, charge int) float64 {
	if !c.Enabled() || driftTime <= c.TFix || mz <= 0 {
		return 0
	}
	if charge == 0 {
		charge = 1
	}
	z := math.Abs(float64(charge))
	gas := c.GasMass
	if gas <= 0 {
		gas = MassN2
	}
	ionMass := mz * z
	gamma := math.Sqrt(ionMass/(ionMass+gas)) / z
	return (driftTime - c.TFix) / (c.Beta * gamma)
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
