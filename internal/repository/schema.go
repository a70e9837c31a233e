package repository

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

const analysesTable = "kyc_analyses"

// analysis columns in scan order
var analysisColumns = []string{
	"id",
	"document_name",
	"content_hash",
	"person_type",
	"siren",
	"display_name",
	"record",
	"score",
	"band",
	"factors",
	"narrative_status",
	"narrative",
	"narrative_error",
	"ocr_confidence",
	"analyzed_at",
}

const analyzedAtIndex = "kyc_analyses_analyzed_at"

type columnDef struct {
	name string
	typ  string
}

func analysesColumnDefs(d string) []columnDef {
	text := "text"
	if d == dialect.MySQL {
		text = "longtext"
	}
	return []columnDef{
		{"id", "varchar(36)"},
		{"document_name", "varchar(512)"},
		{"content_hash", "varchar(64)"},
		{"person_type", "varchar(16)"},
		{"siren", "varchar(16)"},
		{"display_name", "varchar(512)"},
		{"record", text},
		{"score", "integer"},
		{"band", "varchar(16)"},
		{"factors", text},
		{"narrative_status", "varchar(16)"},
		{"narrative", text},
		{"narrative_error", text},
		{"ocr_confidence", "double precision"},
		{"analyzed_at", "bigint"},
	}
}

// analysesDDL returns the statements creating the journal table and its analyzed_at
// index for dialect d. Every statement is safe to re-run. MySQL has no
// CREATE INDEX IF NOT EXISTS, so there the index is declared inside the table.
func analysesDDL(d string) []string {
	defs := make([]string, 0, len(analysisColumns)+2)
	for _, c := range analysesColumnDefs(d) {
		defs = append(defs, c.name+" "+c.typ+" NOT NULL")
	}
	defs = append(defs, "PRIMARY KEY (id)")
	if d == dialect.MySQL {
		defs = append(defs, "INDEX "+analyzedAtIndex+" (analyzed_at)")
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + analysesTable + " (" + strings.Join(defs, ", ") + ")",
	}
	if d != dialect.MySQL {
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+analyzedAtIndex+" ON "+analysesTable+" (analyzed_at)")
	}
	return stmts
}

// Migrate creates the analysis journal table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range analysesDDL(s.drv.Dialect()) {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			s.logger.Error("journal.migrate.failed", "table", analysesTable, "error", err)
			return fmt.Errorf("migrate %s: %w", analysesTable, err)
		}
	}
	s.logger.Info("journal.migrate.ok", "table", analysesTable)
	return nil
}
