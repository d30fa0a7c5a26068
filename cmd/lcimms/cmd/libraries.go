package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/annotation"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/reader/msp"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/reader/textdb"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/store/sqlite"
)

// loadAdducts returns the built-in adduct table, extended by a CSV file when given.
func loadAdducts(path string) (*core.AdductDatabase, error) {
	db := core.DefaultAdductDatabase()
	if path == "" {
		return db, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open adduct file: %w", err)
	}
	defer f.Close()
	if err := db.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("failed to load adduct file: %w", err)
	}
	return db, nil
}

// expandPatterns resolves glob patterns (with ** support) to a sorted,
// de-duplicated file list. A pattern without glob characters must name an
// existing file.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("library file does not exist: %s", pattern)
			}
			if !seen[pattern] {
				seen[pattern] = true
				files = append(files, pattern)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob error: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// readLibraryFile loads one spectral library by extension: .msp or a SQLite library.
func readLibraryFile(ctx context.Context, path string, adducts *core.AdductDatabase) ([]*core.MoleculeMsReference, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".msp":
		return msp.ReadFile(path, adducts)
	case ".db", ".sqlite", ".sqlite3":
		return sqlite.ReadLibrary(ctx, path)
	default:
		return nil, fmt.Errorf("cannot detect library format from extension '%s': %s", ext, path)
	}
}

// loadLibraries reads every spectral library matched by patterns plus the
// optional text database, and sorts both by precursor m/z.
func loadLibraries(ctx context.Context, patterns []string, textDBPath string, adducts *core.AdductDatabase) (annotation.Libraries, error) {
	var libs annotation.Libraries

	files, err := expandPatterns(patterns)
	if err != nil {
		return libs, err
	}
	for _, path := range files {
		refs, err := readLibraryFile(ctx, path, adducts)
		if err != nil {
			return libs, fmt.Errorf("failed to load library %s: %w", path, err)
		}
		logger.Info("library loaded", "path", path, "entries", len(refs))
		libs.Spectral = append(libs.Spectral, refs...)
	}

	if textDBPath != "" {
		if libs.Text, err = textdb.ReadFile(textDBPath, adducts); err != nil {
			return libs, fmt.Errorf("failed to load text database: %w", err)
		}
		logger.Info("text database loaded", "path", textDBPath, "entries", len(libs.Text))
	}

	annotation.SortReferences(libs.Spectral)
	annotation.SortReferences(libs.Text)
	return libs, nil
}
