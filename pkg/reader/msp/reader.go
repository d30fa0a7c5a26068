// Package msp provides a streaming reader for MSP format metabolite spectral libraries
package msp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner    *bufio.Scanner
	adducts    *core.AdductDatabase
	sourceFile string
	lineNum    int
	current    *core.MoleculeMsReference
	err        error
}

// NewReader creates a new MSP reader. The adduct database is used to derive
// the precursor m/z of entries that give a formula and precursor type but no
// PRECURSORMZ; nil selects core.DefaultAdductDatabase.
func NewReader(r io.Reader, adducts *core.AdductDatabase) *Reader {
	if adducts == nil {
		adducts = core.DefaultAdductDatabase()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Reader{
		scanner: scanner,
		adducts: adducts,
	}
}

// WithSourceFile records the file name on every entry read.
func (r *Reader) WithSourceFile(name string) *Reader {
	r.sourceFile = name
	return r
}

// Next advances to the next entry. Returns false when no more entries or error.
func (r *Reader) Next() bool {
	r.current = nil

	ref, err := r.readEntry()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.current = ref
	return true
}

// Reference returns the current entry
func (r *Reader) Reference() *core.MoleculeMsReference {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every remaining entry.
func (r *Reader) ReadAll() ([]*core.MoleculeMsReference, error) {
	var refs []*core.MoleculeMsReference
	for r.Next() {
		refs = append(refs, r.Reference())
	}
	return refs, r.Err()
}

// ReadFile reads every entry of an MSP file.
func ReadFile(path string, adducts *core.AdductDatabase) ([]*core.MoleculeMsReference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open msp file: %w", err)
	}
	defer f.Close()

	refs, err := NewReader(f, adducts).WithSourceFile(path).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return refs, nil
}

// readEntry reads a single entry. An entry ends after its declared number of
// peaks or at a blank line.
func (r *Reader) readEntry() (*core.MoleculeMsReference, error) {
	ref := &core.MoleculeMsReference{
		SourceFile: r.sourceFile,
		Spectrum:   []core.Peak{},
	}

	started := false
	inPeaks := false
	numPeaks := 0

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" {
			if started {
				break
			}
			continue
		}
		started = true

		if inPeaks {
			peaks, err := parsePeaks(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			ref.Spectrum = append(ref.Spectrum, peaks...)
			if len(ref.Spectrum) >= numPeaks {
				break
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'KEY: value', got '%s'", r.lineNum, line)
		}
		value = strings.TrimSpace(value)

		if strings.EqualFold(strings.TrimSpace(key), "Num Peaks") {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
			}
			numPeaks = n
			inPeaks = n > 0
			continue
		}
		if err := r.parseField(ref, key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if !started {
		return nil, io.EOF
	}
	if inPeaks && len(ref.Spectrum) < numPeaks {
		return nil, fmt.Errorf("line %d: entry '%s' declares %d peaks, found %d", r.lineNum, ref.Name, numPeaks, len(ref.Spectrum))
	}

	if ref.PrecursorMZ == 0 && ref.Formula != "" && ref.PrecursorType != "" {
		mz, err := r.adducts.PrecursorMZ(ref.Formula, ref.PrecursorType)
		if err != nil {
			return nil, fmt.Errorf("entry '%s': %w", ref.Name, err)
		}
		ref.PrecursorMZ = mz
	}
	core.SortPeaks(ref.Spectrum)
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// parseField stores one header field. Unknown keys are ignored.
func (r *Reader) parseField(ref *core.MoleculeMsReference, key, value string) error {
	switch strings.ToUpper(strings.TrimSpace(key)) {
	case "NAME":
		ref.Name = value
	case "PRECURSORMZ", "PEPMASS":
		mz, err := parseFloat(value)
		if err != nil {
			return fmt.Errorf("invalid precursor m/z: %w", err)
		}
		ref.PrecursorMZ = mz
	case "PRECURSORTYPE", "ADDUCT":
		ref.PrecursorType = value
	case "FORMULA":
		ref.Formula = value
	case "INCHIKEY":
		ref.InChIKey = value
	case "SMILES":
		ref.SMILES = value
	case "ONTOLOGY", "COMPOUNDCLASS":
		if ref.Ontology == "" || strings.EqualFold(key, "ONTOLOGY") {
			ref.Ontology = value
		}
	case "RETENTIONTIME", "RT":
		rt, err := parseFloat(value)
		if err == nil {
			ref.RetentionTime = rt
		}
	case "CCS", "COLLISIONCROSSSECTION":
		ccs, err := parseFloat(value)
		if err == nil {
			ref.CCS = ccs
		}
	case "IONMODE", "ION_MODE":
		pol, err := core.ParsePolarity(value)
		if err != nil {
			return err
		}
		ref.Polarity = pol
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	// Some libraries append units, e.g. "12.3 min"
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	return strconv.ParseFloat(s, 64)
}

// parsePeaks parses a peak line. A line holds either one "mz intensity
// ["comment"]" pair or several pairs separated by ';'.
func parsePeaks(line string) ([]core.Peak, error) {
	var peaks []core.Peak
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := parsePeak(part)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, p)
	}
	return peaks, nil
}

func parsePeak(s string) (core.Peak, error) {
	fields := strings.FieldsFunc(s, func(c rune) bool { return c == ' ' || c == '\t' || c == ':' })
	if len(fields) < 2 {
		return core.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}
	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	peak := core.Peak{MZ: mz, Intensity: intensity}
	if len(fields) >= 3 {
		peak.Comment = strings.Trim(strings.Join(fields[2:], " "), "\"")
	}
	return peak, nil
}
