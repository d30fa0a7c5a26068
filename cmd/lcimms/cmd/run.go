package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/metrics"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/pipeline"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/store/sqlite"
)

var (
	// Flags for run command
	rawFile         string
	libraryPatterns []string
	textDBFile      string
	adductCSV       string
	paramsFile      string
	outputFile      string
	metricsTextfile string
	threads         int
	mzBegin         float64
	mzEnd           float64
	rtBegin         float64
	rtEnd           float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect, deconvolute and annotate features of one acquisition",
	Long: `Run peak spotting, MS2 deconvolution and annotation over an acquisition
stored as a SQLite raw spectrum database, and print the feature table.

Examples:
  # Process with default parameters and every MSP library under libs/
  lcimms run --raw sample.sqlite --library 'libs/**/*.msp'

  # Use a parameter file, a text database and 8 worker threads
  lcimms run --raw sample.sqlite --params params.yaml --text-db lipids.tsv --threads 8

  # Export metrics for a node-exporter textfile collector
  lcimms run --raw sample.sqlite --library lib.sqlite --metrics-textfile /var/lib/node_exporter/lcimms.prom`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&rawFile, "raw", "i", "", "SQLite raw spectrum database (required)")
	runCmd.Flags().StringArrayVarP(&libraryPatterns, "library", "l", nil, "Spectral library file or glob (.msp, .sqlite); repeatable, supports **")
	runCmd.Flags().StringVar(&textDBFile, "text-db", "", "Tab-separated text database matched on precursor only")
	runCmd.Flags().StringVar(&adductCSV, "adducts", "", "Path to additional adduct CSV file (name,massshift,charge[,multimer])")
	runCmd.Flags().StringVarP(&paramsFile, "params", "p", "", "YAML parameter file (defaults when not given)")
	runCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Write the feature table to this file instead of stdout")
	runCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this textfile after the run")
	runCmd.Flags().IntVar(&threads, "threads", 1, "Number of worker threads")
	runCmd.Flags().Float64Var(&mzBegin, "mz-begin", 0, "Override peak.mass_range_begin")
	runCmd.Flags().Float64Var(&mzEnd, "mz-end", 0, "Override peak.mass_range_end")
	runCmd.Flags().Float64Var(&rtBegin, "rt-begin", 0, "Override peak.rt_begin")
	runCmd.Flags().Float64Var(&rtEnd, "rt-end", 0, "Override peak.rt_end")

	runCmd.MarkFlagRequired("raw")
}

// loadParams reads the parameter file (or defaults) and applies the flags
// the user set explicitly.
func loadParams(cmd *cobra.Command) (params.Params, error) {
	p := params.Default()
	if paramsFile != "" {
		var err error
		if p, err = params.LoadFromFile(paramsFile); err != nil {
			return p, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("threads") {
		p.Run.Threads = threads
	}
	if flags.Changed("mz-begin") {
		p.Peak.MassRangeBegin = mzBegin
	}
	if flags.Changed("mz-end") {
		p.Peak.MassRangeEnd = mzEnd
	}
	if flags.Changed("rt-begin") {
		p.Peak.RetentionTimeBegin = rtBegin
	}
	if flags.Changed("rt-end") {
		p.Peak.RetentionTimeEnd = rtEnd
	}
	return p, p.Validate()
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := loadParams(cmd)
	if err != nil {
		return err
	}

	adducts, err := loadAdducts(adductCSV)
	if err != nil {
		return err
	}
	libs, err := loadLibraries(ctx, libraryPatterns, textDBFile, adducts)
	if err != nil {
		return err
	}

	raw, err := sqlite.OpenRawSource(rawFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open raw database: %w", err)
	}
	defer raw.Close()

	collector := metrics.NewCollector()
	pl := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(collector),
		pipeline.WithProgress(progressLogger()),
	)
	res, err := pl.Run(ctx, raw, libs, p)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeFeatureTable(out, res); err != nil {
		return fmt.Errorf("failed to write feature table: %w", err)
	}

	if metricsTextfile != "" {
		if err := collector.WriteTextfile(metricsTextfile); err != nil {
			return err
		}
	}

	s := res.Stats
	fmt.Fprintf(os.Stderr, "\nRun %s complete!\n", res.RunID)
	fmt.Fprintf(os.Stderr, "Features: %d (%d drift)\n", s.Features, s.DriftFeatures)
	fmt.Fprintf(os.Stderr, "MS2: %d deconvoluted, %d raw, %d empty\n", s.Deconvoluted, s.RawFallback, s.EmptySpectra)
	fmt.Fprintf(os.Stderr, "Annotated: %d library, %d text database\n", s.Annotated, s.TextAnnotated)
	fmt.Fprintf(os.Stderr, "Elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
	return nil
}

// progressLogger logs each stage at every tenth of its work.
func progressLogger() func(pipeline.Progress) {
	return func(pr pipeline.Progress) {
		step := pr.Total / 10
		if step == 0 {
			step = 1
		}
		if pr.Done%step == 0 || pr.Done == pr.Total {
			logger.Debug("progress", "stage", pr.Stage, "done", pr.Done, "total", pr.Total,
				"percent", fmt.Sprintf("%.0f", pr.Percent()))
		}
	}
}

// writeFeatureTable prints one row per feature node, drift sub-features
// directly after their RT parent.
func writeFeatureTable(w io.Writer, res *pipeline.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tParent\tAxis\tm/z\tTime\tHeight\tArea\tS/N\tCCS\tMS2\tAnnotation\tScore\tTextDB")

	var werr error
	core.WalkNodes(res.Features, func(f, _ *core.ChromatogramPeakFeature) {
		if werr != nil {
			return
		}
		ms2 := "-"
		if f.MasterPeakID < len(res.MSDecResults) {
			if dec := res.MSDecResults[f.MasterPeakID]; dec != nil && !dec.IsEmpty() {
				kind := "raw"
				if dec.Deconvoluted {
					kind = "dec"
				}
				ms2 = fmt.Sprintf("%d %s", len(dec.Spectrum), kind)
			}
		}
		name, score, text := "-", "-", "-"
		if rep := f.MatchResults.Representative; rep != nil {
			name, score = rep.Name, fmt.Sprintf("%.3f", rep.TotalScore)
		}
		if rep := f.MatchResults.TextDBRepresentative; rep != nil {
			text = rep.Name
		}
		parent, ccs := "-", "-"
		if f.ParentPeakID >= 0 {
			parent = fmt.Sprint(f.ParentPeakID)
		}
		if f.CollisionCrossSection > 0 {
			ccs = fmt.Sprintf("%.2f", f.CollisionCrossSection)
		}
		_, werr = fmt.Fprintf(tw, "%d\t%s\t%s\t%.5f\t%.3f\t%.0f\t%.0f\t%.1f\t%s\t%s\t%s\t%s\t%s\n",
			f.MasterPeakID, parent, f.Axis, f.Mass, f.Apex.Time, f.PeakHeightTop,
			f.PeakAreaAboveZero, f.SignalToNoise, ccs, ms2, name, score, text)
	})
	if werr != nil {
		return werr
	}
	return tw.Flush()
}
