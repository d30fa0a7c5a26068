// Package core provides adduct (precursor type) parsing and management
package core

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Adduct describes how a neutral molecule becomes the observed precursor ion.
type Adduct struct {
	Name      string  // e.g. "[M+H]+"
	MassShift float64 // Added to Multimer*M before dividing by |Charge|
	Charge    int
	Multimer  int
}

// PrecursorMZ returns the m/z of the ion formed from a neutral mass.
func (a Adduct) PrecursorMZ(neutralMass float64) float64 {
	z := a.Charge
	if z < 0 {
		z = -z
	}
	if z == 0 {
		z = 1
	}
	n := a.Multimer
	if n <= 0 {
		n = 1
	}
	return (float64(n)*neutralMass + a.MassShift) / float64(z)
}

// AdductDatabase stores adduct definitions
type AdductDatabase struct {
	adducts map[string]Adduct
}

// NewAdductDatabase creates an empty adduct database
func NewAdductDatabase() *AdductDatabase {
	return &AdductDatabase{
		adducts: make(map[string]Adduct),
	}
}

// LoadFromCSV loads adducts from a CSV file (format: name,massshift,charge[,multimer])
func (db *AdductDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return fmt.Errorf("line %d: invalid format, expected at least 3 comma-separated fields", lineNum)
		}

		name := strings.TrimSpace(parts[0])
		shift, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass shift '%s': %w", lineNum, parts[1], err)
		}
		charge, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return fmt.Errorf("line %d: invalid charge '%s': %w", lineNum, parts[2], err)
		}
		multimer := 1
		if len(parts) > 3 {
			multimer, err = strconv.Atoi(strings.TrimSpace(parts[3]))
			if err != nil {
				return fmt.Errorf("line %d: invalid multimer '%s': %w", lineNum, parts[3], err)
			}
		}

		db.Add(Adduct{Name: name, MassShift: shift, Charge: charge, Multimer: multimer})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Get returns the adduct for a precursor type name
func (db *AdductDatabase) Get(name string) (Adduct, bool) {
	a, ok := db.adducts[normalizeAdduct(name)]
	return a, ok
}

// Add adds or updates an adduct
func (db *AdductDatabase) Add(a Adduct) {
	db.adducts[normalizeAdduct(a.Name)] = a
}

// PrecursorMZ computes the ion m/z for a formula and precursor type.
func (db *AdductDatabase) PrecursorMZ(formula, precursorType string) (float64, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return 0, err
	}
	a, ok := db.Get(precursorType)
	if !ok {
		return 0, fmt.Errorf("unknown precursor type '%s'", precursorType)
	}
	return a.PrecursorMZ(f.ExactMass()), nil
}

func normalizeAdduct(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "")
}

// DefaultAdductDatabase returns an AdductDatabase pre-loaded with common ESI adducts
func DefaultAdductDatabase() *AdductDatabase {
	db := NewAdductDatabase()
	e := ElectronMass

	// Positive mode
	db.Add(Adduct{Name: "[M+H]+", MassShift: MassH - e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M+NH4]+", MassShift: MassN + 4*MassH - e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M+Na]+", MassShift: MassNa - e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M+K]+", MassShift: MassK - e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M+H-H2O]+", MassShift: MassH - (2*MassH + MassO) - e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M]+", MassShift: -e, Charge: 1, Multimer: 1})
	db.Add(Adduct{Name: "[M+2H]2+", MassShift: 2*MassH - 2*e, Charge: 2, Multimer: 1})
	db.Add(Adduct{Name: "[2M+H]+", MassShift: MassH - e, Charge: 1, Multimer: 2})

	// Negative mode
	db.Add(Adduct{Name: "[M-H]-", MassShift: -MassH + e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M+Cl]-", MassShift: MassCl + e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M+HCOO]-", MassShift: MassH + MassC + 2*MassO + e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M+CH3COO]-", MassShift: 3*MassH + 2*MassC + 2*MassO + e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M-H2O-H]-", MassShift: -(3*MassH + MassO) + e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M]-", MassShift: e, Charge: -1, Multimer: 1})
	db.Add(Adduct{Name: "[M-2H]2-", MassShift: -2*MassH + 2*e, Charge: -2, Multimer: 1})
	db.Add(Adduct{Name: "[2M-H]-", MassShift: -MassH + e, Charge: -1, Multimer: 2})

	return db
}
