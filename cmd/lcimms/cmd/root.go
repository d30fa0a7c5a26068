// Package cmd provides CLI command implementations
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
)

var (
	// Global flags
	logLevel string
	logFile  string

	logger       = slog.Default()
	closeLogFile = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "lcimms",
	Short: "lcimms - LC-IM-MS feature detection and annotation",
	Long: `lcimms detects chromatographic and ion mobility features in LC-IM-MS
acquisitions, deconvolutes their MS2 spectra and annotates them against
reference libraries.

Pipeline:
- Peak spotting over mass slices, with a drift-axis pass for ion mobility data
- Ms2Dec: correlation-based MS2 deconvolution per feature
- Annotation against MSP/SQLite spectral libraries and text databases`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger, closeLogFile = logging.Setup(logging.ParseLevel(logLevel), logFile)
		slog.SetDefault(logger)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogFile()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN or ERROR")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(paramsCmd)
}
