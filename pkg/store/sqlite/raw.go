package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/logging"
	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/source"
)

const rawSchema = `
CREATE TABLE IF NOT EXISTS RawSpectrumTable (
	SpectrumIndex INTEGER PRIMARY KEY,
	ScanNumber INTEGER NOT NULL,
	ScanStartTime DOUBLE NOT NULL,
	MSLevel INTEGER NOT NULL,
	Polarity TEXT,
	PrecursorMZ DOUBLE,
	IsolationLower DOUBLE,
	IsolationUpper DOUBLE,
	CollisionEnergy DOUBLE,
	DriftScanNumber INTEGER,
	DriftTime DOUBLE,
	blobMass BLOB,
	blobIntensity BLOB
);

CREATE INDEX IF NOT EXISTS RawLevelTimeIndex ON RawSpectrumTable (MSLevel, ScanStartTime);
`

const rawColumns = `SpectrumIndex, ScanNumber, ScanStartTime, MSLevel, Polarity,
	PrecursorMZ, IsolationLower, IsolationUpper, CollisionEnergy,
	DriftScanNumber, DriftTime, blobMass, blobIntensity`

// RawWriter writes raw scans to an acquisition database file.
type RawWriter struct {
	db    *sql.DB
	tx    *sql.Tx
	stmt  *sql.Stmt
	count int
}

// NewRawWriter creates an acquisition database at outputPath. Scans are
// written in one transaction committed by Close.
func NewRawWriter(outputPath string) (*RawWriter, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(rawSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO RawSpectrumTable (` + rawColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}
	return &RawWriter{db: db, tx: tx, stmt: stmt}, nil
}

// WriteSpectrum appends one scan. Its SpectrumIndex is the write order.
func (w *RawWriter) WriteSpectrum(s *core.RawSpectrum) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var prec, lower, upper, ce any
	if s.Precursor != nil {
		prec, lower, upper, ce = s.Precursor.SelectedMZ, s.Precursor.IsolationLower,
			s.Precursor.IsolationUpper, s.Precursor.CollisionEnergy
	}
	_, err := w.stmt.Exec(
		w.count,
		s.ScanNumber,
		s.ScanStartTime,
		s.MSLevel,
		s.Polarity.String(),
		prec, lower, upper, ce,
		s.DriftScanNumber,
		s.DriftTime,
		encodePeaksFloat64(s.Peaks, true),
		encodePeaksFloat64(s.Peaks, false),
	)
	if err != nil {
		return fmt.Errorf("failed to insert spectrum %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Close commits the written scans and closes the database.
func (w *RawWriter) Close() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit spectra: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// RawSource is a source.Source reading scans from an acquisition database.
// Every call queries the database; wrap it in source.Accumulated for frames.
type RawSource struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenRawSource opens an acquisition database read-only. A nil logger uses slog.Default.
func OpenRawSource(path string, logger *slog.Logger) (*RawSource, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	return &RawSource{db: db, path: path, logger: logging.OrDefault(logger)}, nil
}

// Close closes the database.
func (s *RawSource) Close() error {
	return s.db.Close()
}

var _ source.Source = (*RawSource)(nil)

// LoadMS1Spectra implements source.Source.
func (s *RawSource) LoadMS1Spectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	return s.LoadMsNSpectra(ctx, 1)
}

// LoadAllSpectra implements source.Source.
func (s *RawSource) LoadAllSpectra(ctx context.Context) ([]*core.RawSpectrum, error) {
	return s.query(ctx, `SELECT `+rawColumns+` FROM RawSpectrumTable ORDER BY SpectrumIndex`)
}

// LoadMsNSpectra implements source.Source.
func (s *RawSource) LoadMsNSpectra(ctx context.Context, level int) ([]*core.RawSpectrum, error) {
	return s.query(ctx, `SELECT `+rawColumns+` FROM RawSpectrumTable WHERE MSLevel = ?
		ORDER BY ScanStartTime, ScanNumber, DriftScanNumber, SpectrumIndex`, level)
}

// LoadCollisionEnergyTargets implements source.Source.
func (s *RawSource) LoadCollisionEnergyTargets(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT CollisionEnergy FROM RawSpectrumTable
		WHERE MSLevel >= 2 AND CollisionEnergy IS NOT NULL ORDER BY CollisionEnergy`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collision energies: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var ce float64
		if err := rows.Scan(&ce); err != nil {
			return nil, fmt.Errorf("failed to scan collision energy: %w", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

func (s *RawSource) query(ctx context.Context, q string, args ...any) ([]*core.RawSpectrum, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spectra: %w", err)
	}
	defer rows.Close()

	var out []*core.RawSpectrum
	for rows.Next() {
		var (
			sp                     core.RawSpectrum
			polarity               sql.NullString
			prec, lower, upper, ce sql.NullFloat64
			driftScan              sql.NullInt64
			driftTime              sql.NullFloat64
			mzBlob, intensityBlob  []byte
		)
		err := rows.Scan(&sp.Index, &sp.ScanNumber, &sp.ScanStartTime, &sp.MSLevel, &polarity,
			&prec, &lower, &upper, &ce, &driftScan, &driftTime, &mzBlob, &intensityBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spectrum row: %w", err)
		}
		if polarity.Valid {
			if sp.Polarity, err = core.ParsePolarity(polarity.String); err != nil {
				return nil, fmt.Errorf("spectrum %d: %w", sp.Index, err)
			}
		}
		if prec.Valid {
			sp.Precursor = &core.Precursor{
				SelectedMZ:      prec.Float64,
				IsolationLower:  lower.Float64,
				IsolationUpper:  upper.Float64,
				CollisionEnergy: ce.Float64,
			}
		}
		sp.DriftScanNumber, sp.DriftTime = int(driftScan.Int64), driftTime.Float64
		if sp.Peaks, err = decodePeaks(mzBlob, intensityBlob); err != nil {
			return nil, fmt.Errorf("spectrum %d: %w", sp.Index, err)
		}
		sp.UpdateSummary()
		out = append(out, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spectra: %w", err)
	}
	s.logger.Debug("spectra loaded", "path", s.path, "count", len(out))
	return out, nil
}
