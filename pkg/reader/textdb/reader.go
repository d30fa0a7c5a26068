// Package textdb reads tab-separated post-identification text databases:
// one compound per line with a precursor m/z, or a formula and adduct from
// which it is computed.
package textdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Column identifies one field of a text database line.
type Column int

const (
	ColName Column = iota
	ColMZ
	ColRT
	ColAdduct
	ColInChIKey
	ColFormula
	ColSMILES
	ColOntology
	ColCCS
	numColumns
)

// headerNames maps lower-cased header cells to columns.
var headerNames = map[string]Column{
	"name":           ColName,
	"metabolite":     ColName,
	"m/z":            ColMZ,
	"mz":             ColMZ,
	"precursor m/z":  ColMZ,
	"precursormz":    ColMZ,
	"rt":             ColRT,
	"rt(min)":        ColRT,
	"retention time": ColRT,
	"adduct":         ColAdduct,
	"precursor type": ColAdduct,
	"inchikey":       ColInChIKey,
	"formula":        ColFormula,
	"smiles":         ColSMILES,
	"ontology":       ColOntology,
	"ccs":            ColCCS,
}

// defaultLayout is the column order of files without a header line.
var defaultLayout = []Column{ColName, ColMZ, ColRT, ColAdduct, ColInChIKey, ColFormula, ColSMILES, ColOntology, ColCCS}

// Read parses a text database. The first non-empty line is treated as a
// header when its first cell is a known column name; otherwise the default
// column order applies. Lines starting with '#' are skipped.
func Read(r io.Reader, adducts *core.AdductDatabase) ([]*core.MoleculeMsReference, error) {
	if adducts == nil {
		adducts = core.DefaultAdductDatabase()
	}
	scanner := bufio.NewScanner(r)

	var layout []Column
	var refs []*core.MoleculeMsReference
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells := strings.Split(line, "\t")

		if layout == nil {
			if h, ok := parseHeader(cells); ok {
				layout = h
				continue
			}
			layout = defaultLayout
		}

		ref, err := parseLine(cells, layout, adducts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		refs = append(refs, ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading text database: %w", err)
	}
	return refs, nil
}

// ReadFile reads a text database file and records the file name on each entry.
func ReadFile(path string, adducts *core.AdductDatabase) ([]*core.MoleculeMsReference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open text database: %w", err)
	}
	defer f.Close()

	refs, err := Read(f, adducts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, r := range refs {
		r.SourceFile = path
	}
	return refs, nil
}

// parseHeader returns the column layout of a header line. Unknown header
// cells map to -1 and are ignored.
func parseHeader(cells []string) ([]Column, bool) {
	if _, ok := headerNames[strings.ToLower(strings.TrimSpace(cells[0]))]; !ok {
		return nil, false
	}
	layout := make([]Column, len(cells))
	for i, c := range cells {
		col, ok := headerNames[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			col = -1
		}
		layout[i] = col
	}
	return layout, true
}

func parseLine(cells []string, layout []Column, adducts *core.AdductDatabase) (*core.MoleculeMsReference, error) {
	var values [numColumns]string
	for i, c := range cells {
		if i < len(layout) && layout[i] >= 0 {
			values[layout[i]] = strings.TrimSpace(c)
		}
	}

	ref := &core.MoleculeMsReference{
		Name:          values[ColName],
		PrecursorType: values[ColAdduct],
		InChIKey:      values[ColInChIKey],
		Formula:       values[ColFormula],
		SMILES:        values[ColSMILES],
		Ontology:      values[ColOntology],
	}
	if ref.PrecursorType == "" {
		ref.PrecursorType = "[M+H]+"
	}
	if strings.HasSuffix(ref.PrecursorType, "-") {
		ref.Polarity = core.Negative
	}

	var err error
	if ref.PrecursorMZ, err = optionalFloat(values[ColMZ]); err != nil {
		return nil, fmt.Errorf("invalid m/z '%s': %w", values[ColMZ], err)
	}
	if ref.RetentionTime, err = optionalFloat(values[ColRT]); err != nil {
		return nil, fmt.Errorf("invalid retention time '%s': %w", values[ColRT], err)
	}
	if ref.CCS, err = optionalFloat(values[ColCCS]); err != nil {
		return nil, fmt.Errorf("invalid ccs '%s': %w", values[ColCCS], err)
	}

	if ref.PrecursorMZ == 0 && ref.Formula != "" {
		mz, err := adducts.PrecursorMZ(ref.Formula, ref.PrecursorType)
		if err != nil {
			return nil, fmt.Errorf("entry '%s': %w", ref.Name, err)
		}
		ref.PrecursorMZ = mz
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

func optionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
