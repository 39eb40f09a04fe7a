package interaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// A SQLite rule pack stores each document section as a JSON blob, one row
// per section, so a pack can be shipped as a single file.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS rule_pack (
	section TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

var packSections = []string{"drug_drug", "allergy_classes", "condition_rules", "lab_rules"}

func sectionTarget(doc *Document, section string) interface{} {
	switch section {
	case "drug_drug":
		return &doc.DrugDrug
	case "allergy_classes":
		return &doc.AllergyClasses
	case "condition_rules":
		return &doc.ConditionRules
	case "lab_rules":
		return &doc.LabRules
	}
	return nil
}

type SQLiteSource struct {
	path string
}

func NewSQLiteSource(path string) *SQLiteSource {
	return &SQLiteSource{path: path}
}

func (s *SQLiteSource) Name() string { return "sqlite:" + s.path }

func (s *SQLiteSource) Load(ctx context.Context) (*Document, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT section, payload FROM rule_pack`)
	if err != nil {
		return nil, fmt.Errorf("select rule_pack: %w", err)
	}
	defer func() { _ = rows.Close() }()

	doc := &Document{}
	for rows.Next() {
		var section string
		var payload []byte
		if err := rows.Scan(&section, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		target := sectionTarget(doc, section)
		if target == nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", section, err)
		}
	}
	return doc, rows.Err()
}

// WriteSQLitePack writes doc to a rule pack at path, replacing any sections
// already there. Rule ids are derived before writing.
func WriteSQLitePack(ctx context.Context, path string, doc *Document) error {
	d := doc.withDerivedIDs()
	if err := d.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create rule_pack table: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, section := range packSections {
		payload, err := json.Marshal(sectionTarget(d, section))
		if err != nil {
			return fmt.Errorf("encode %s: %w", section, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rule_pack (section, payload) VALUES (?, ?)
			 ON CONFLICT(section) DO UPDATE SET payload = excluded.payload`, section, payload); err != nil {
			return fmt.Errorf("write %s: %w", section, err)
		}
	}
	return tx.Commit()
}
