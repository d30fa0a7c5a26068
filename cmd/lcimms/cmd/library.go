package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/annotation"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/filter"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/reader/msp"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/store/sqlite"
)

var (
	// Flags for library import command
	importInput   string
	importOutput  string
	importAdducts string
	importTopN    int
	importCutoff  float64
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage reference libraries",
}

var libraryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Convert an MSP library to a SQLite library",
	Long: `Convert a metabolomics MSP library to a SQLite library database with
CompoundTable and SpectrumTable. Precursor m/z is derived from formula and
adduct when the entry does not state it.

Examples:
  # Convert with default settings
  lcimms library import --in library.msp --out library.sqlite

  # Keep the 50 most intense peaks above 1% of the base peak
  lcimms library import --in library.msp --out library.sqlite --top-n 50 --cutoff 1`,
	RunE: runLibraryImport,
}

var librarySummarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize reference library contents",
	Long:  `Print summary statistics about an MSP or SQLite library including entry count, precursor m/z range and metadata coverage.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adducts, err := loadAdducts(importAdducts)
		if err != nil {
			return err
		}
		refs, err := readLibraryFile(cmd.Context(), args[0], adducts)
		if err != nil {
			return err
		}
		return summarize(refs).write(cmd.OutOrStdout())
	},
}

func init() {
	libraryCmd.AddCommand(libraryImportCmd)
	libraryCmd.AddCommand(librarySummarizeCmd)
	libraryCmd.PersistentFlags().StringVar(&importAdducts, "adducts", "", "Path to additional adduct CSV file (name,massshift,charge[,multimer])")

	libraryImportCmd.Flags().StringVarP(&importInput, "in", "i", "", "Input MSP file (required)")
	libraryImportCmd.Flags().StringVarP(&importOutput, "out", "o", "", "Output database file (required)")
	libraryImportCmd.Flags().IntVar(&importTopN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	libraryImportCmd.Flags().Float64Var(&importCutoff, "cutoff", 0, "Intensity cutoff as % of base peak (0 = no cutoff)")

	libraryImportCmd.MarkFlagRequired("in")
	libraryImportCmd.MarkFlagRequired("out")
}

func runLibraryImport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(importInput); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", importInput)
	}
	adducts, err := loadAdducts(importAdducts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Converting %s to %s...\n", importInput, importOutput)
	count, skipped, err := importMSP(cmd.Context(), importInput, importOutput, adducts, importTopN, importCutoff)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConversion complete!\n")
	fmt.Fprintf(out, "Processed: %d entries\n", count)
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped: %d entries (validation errors)\n", skipped)
	}
	fmt.Fprintf(out, "Output: %s\n", importOutput)
	return nil
}

// importMSP streams an MSP file into a new SQLite library. Entries that fail
// validation after filtering are skipped and counted.
func importMSP(ctx context.Context, in, out string, adducts *core.AdductDatabase, topN int, cutoff float64) (count, skipped int, err error) {
	inFile, err := os.Open(in)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	reader := msp.NewReader(inFile, adducts).WithSourceFile(in)
	peakFilter := &filter.Config{TopN: topN, RelativeCutoff: cutoff}
	writer, err := sqlite.NewLibraryWriter(out)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create output database: %w", err)
	}

	for reader.Next() {
		if ctx != nil && ctx.Err() != nil {
			writer.Finalize()
			return count, skipped, ctx.Err()
		}
		ref := reader.Reference()
		ref.Spectrum = peakFilter.Apply(ref.Spectrum, 0)

		if err := writer.WriteReference(ref); err != nil {
			logger.Warn("invalid library entry", "name", ref.Name, "error", err)
			skipped++
			continue
		}
		count++
		if count%1000 == 0 {
			logger.Info("library import progress", "entries", count)
		}
	}
	if err := reader.Err(); err != nil {
		writer.Finalize()
		return count, skipped, fmt.Errorf("error reading input file: %w", err)
	}

	if err := writer.Finalize(); err != nil {
		return count, skipped, fmt.Errorf("failed to finalize database: %w", err)
	}
	return count, skipped, nil
}

// librarySummary holds coverage statistics of a library.
type librarySummary struct {
	Entries     int
	MinMZ       float64
	MaxMZ       float64
	WithCCS     int
	WithFormula int
	WithRT      int
	WithPeaks   int
	Negative    int
	Sorted      bool
}

func summarize(refs []*core.MoleculeMsReference) librarySummary {
	s := librarySummary{Entries: len(refs), Sorted: annotation.ReferencesSorted(refs)}
	for i, r := range refs {
		if i == 0 || r.PrecursorMZ < s.MinMZ {
			s.MinMZ = r.PrecursorMZ
		}
		if r.PrecursorMZ > s.MaxMZ {
			s.MaxMZ = r.PrecursorMZ
		}
		if r.CCS > 0 {
			s.WithCCS++
		}
		if r.Formula != "" {
			s.WithFormula++
		}
		if r.RetentionTime > 0 {
			s.WithRT++
		}
		if len(r.Spectrum) > 0 {
			s.WithPeaks++
		}
		if r.Polarity == core.Negative {
			s.Negative++
		}
	}
	return s
}

func (s librarySummary) write(w io.Writer) error {
	pct := func(n int) float64 {
		if s.Entries == 0 {
			return 0
		}
		return 100 * float64(n) / float64(s.Entries)
	}
	_, err := fmt.Fprintf(w, `Entries: %d
Precursor m/z: %.4f - %.4f
With spectrum: %d (%.1f%%)
With formula: %d (%.1f%%)
With CCS: %d (%.1f%%)
With retention time: %d (%.1f%%)
Negative mode: %d
Sorted by precursor m/z: %t
`, s.Entries, s.MinMZ, s.MaxMZ,
		s.WithPeaks, pct(s.WithPeaks),
		s.WithFormula, pct(s.WithFormula),
		s.WithCCS, pct(s.WithCCS),
		s.WithRT, pct(s.WithRT),
		s.Negative, s.Sorted)
	return err
}
