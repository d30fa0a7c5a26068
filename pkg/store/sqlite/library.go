// Package sqlite stores reference libraries and raw acquisitions in SQLite
// database files. Peak arrays are stored as little-endian float64 blobs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for MaintenanceTable
	maintenanceDateFormat = "2006 01 02"
)

// LibraryWriter writes reference entries to a library database file
type LibraryWriter struct {
	db           *sql.DB
	outputPath   string
	compoundStmt *sql.Stmt
	spectrumStmt *sql.Stmt
	compoundID   int
}

// NewLibraryWriter creates a library database at outputPath
func NewLibraryWriter(outputPath string) (*LibraryWriter, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &LibraryWriter{
		db:         db,
		outputPath: outputPath,
		compoundID: 1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *LibraryWriter) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS CompoundTable (
		CompoundId INTEGER PRIMARY KEY,
		Formula TEXT,
		Name TEXT,
		Tag TEXT,
		CompoundClass TEXT,
		SmilesDescription TEXT,
		InChiKey TEXT
	);

	CREATE TABLE IF NOT EXISTS SpectrumTable (
		SpectrumId INTEGER PRIMARY KEY,
		CompoundId INTEGER REFERENCES CompoundTable(CompoundId),
		RetentionTime DOUBLE,
		PrecursorMass DOUBLE,
		NeutralMass DOUBLE,
		Polarity TEXT,
		IonizationMode TEXT,
		PrecursorIonType TEXT,
		CCS DOUBLE,
		IsotopeM1Ratio DOUBLE,
		IsotopeM2Ratio DOUBLE,
		blobMass BLOB,
		blobIntensity BLOB,
		CreationDate TEXT
	);

	CREATE INDEX IF NOT EXISTS SpectrumPrecursorIndex ON SpectrumTable (PrecursorMass);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofCompoundsModified INTEGER,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *LibraryWriter) prepareStatements() error {
	var err error

	w.compoundStmt, err = w.db.Prepare(`
		INSERT INTO CompoundTable (
			CompoundId, Formula, Name, Tag, CompoundClass, SmilesDescription, InChiKey
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare compound statement: %w", err)
	}

	w.spectrumStmt, err = w.db.Prepare(`
		INSERT INTO SpectrumTable (
			SpectrumId, CompoundId, RetentionTime, PrecursorMass, NeutralMass,
			Polarity, IonizationMode, PrecursorIonType, CCS, IsotopeM1Ratio,
			IsotopeM2Ratio, blobMass, blobIntensity, CreationDate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}

	return nil
}

// WriteReference writes a single reference entry to the database
func (w *LibraryWriter) WriteReference(ref *core.MoleculeMsReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	peaks := ref.Spectrum
	if !core.PeaksSorted(peaks) {
		peaks = core.ClonePeaks(peaks)
		core.SortPeaks(peaks)
	}

	_, err := w.compoundStmt.Exec(
		w.compoundID,   // CompoundId
		ref.Formula,    // Formula
		ref.Name,       // Name
		ref.SourceFile, // Tag
		ref.Ontology,   // CompoundClass
		ref.SMILES,     // SmilesDescription
		ref.InChIKey,   // InChiKey
	)
	if err != nil {
		return fmt.Errorf("failed to insert compound: %w", err)
	}

	// Neutral mass is only known when the formula parses
	var neutralMass any
	if f, err := core.ParseFormula(ref.Formula); err == nil && ref.Formula != "" {
		neutralMass = f.ExactMass()
	}

	_, err = w.spectrumStmt.Exec(
		w.compoundID,                        // SpectrumId (same as CompoundId for 1:1 mapping)
		w.compoundID,                        // CompoundId
		nullIfZero(ref.RetentionTime),       // RetentionTime
		ref.PrecursorMZ,                     // PrecursorMass
		neutralMass,                         // NeutralMass
		ref.Polarity.String(),               // Polarity
		"ESI",                               // IonizationMode
		ref.PrecursorType,                   // PrecursorIonType
		nullIfZero(ref.CCS),                 // CCS
		nullIfZero(ref.IsotopeM1Ratio),      // IsotopeM1Ratio
		nullIfZero(ref.IsotopeM2Ratio),      // IsotopeM2Ratio
		encodePeaksFloat64(peaks, true),     // blobMass
		encodePeaksFloat64(peaks, false),    // blobIntensity
		time.Now().Format(headerDateFormat), // CreationDate
	)
	if err != nil {
		return fmt.Errorf("failed to insert spectrum: %w", err)
	}

	w.compoundID++
	return nil
}

// Count returns the number of entries written so far
func (w *LibraryWriter) Count() int {
	return w.compoundID - 1
}

func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

// Finalize writes the header and maintenance tables and closes the database
func (w *LibraryWriter) Finalize() error {
	now := time.Now()
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description)
		VALUES (?, ?, ?, ?)
	`, 1, now.Format(headerDateFormat), now.Format(headerDateFormat), "lcimms reference library")
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}

	_, err = w.db.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofCompoundsModified, Description)
		VALUES (?, ?, ?)
	`, now.Format(maintenanceDateFormat), w.Count(), "")
	if err != nil {
		return fmt.Errorf("failed to insert maintenance: %w", err)
	}

	if w.compoundStmt != nil {
		w.compoundStmt.Close()
	}
	if w.spectrumStmt != nil {
		w.spectrumStmt.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// openReadOnly opens an existing database file for reading.
func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ReadLibrary loads every entry of a library database ordered by precursor
// m/z. ScanID holds the rank in that order.
func ReadLibrary(ctx context.Context, path string) ([]*core.MoleculeMsReference, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT c.Name, c.Formula, c.Tag, c.CompoundClass, c.SmilesDescription, c.InChiKey,
			s.RetentionTime, s.PrecursorMass, s.Polarity, s.PrecursorIonType,
			s.CCS, s.IsotopeM1Ratio, s.IsotopeM2Ratio, s.blobMass, s.blobIntensity
		FROM SpectrumTable s JOIN CompoundTable c ON c.CompoundId = s.CompoundId
		ORDER BY s.PrecursorMass, s.SpectrumId
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query library: %w", err)
	}
	defer rows.Close()

	var refs []*core.MoleculeMsReference
	for rows.Next() {
		var (
			ref                              core.MoleculeMsReference
			formula, tag, class, smiles, key sql.NullString
			ionType                          sql.NullString
			rt, ccs, m1, m2                  sql.NullFloat64
			polarity                         string
			mzBlob, intBlob                  []byte
		)
		err := rows.Scan(&ref.Name, &formula, &tag, &class, &smiles, &key,
			&rt, &ref.PrecursorMZ, &polarity, &ionType,
			&ccs, &m1, &m2, &mzBlob, &intBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan library row: %w", err)
		}
		ref.Formula, ref.SourceFile, ref.Ontology = formula.String, tag.String, class.String
		ref.SMILES, ref.InChIKey, ref.PrecursorType = smiles.String, key.String, ionType.String
		ref.RetentionTime, ref.CCS = rt.Float64, ccs.Float64
		ref.IsotopeM1Ratio, ref.IsotopeM2Ratio = m1.Float64, m2.Float64
		if ref.Polarity, err = core.ParsePolarity(polarity); err != nil {
			return nil, fmt.Errorf("entry '%s': %w", ref.Name, err)
		}
		if ref.Spectrum, err = decodePeaks(mzBlob, intBlob); err != nil {
			return nil, fmt.Errorf("entry '%s': %w", ref.Name, err)
		}
		ref.ScanID = len(refs)
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}
	return refs, nil
}
