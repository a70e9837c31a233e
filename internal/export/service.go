package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

// SheetName is the worksheet holding one row per analysis.
const SheetName = "Analyses"

// Service is a tiny façade over the journal that produces XLSX bytes for exports.
type Service struct {
	repo   repository.AnalysisRepository
	logger *slog.Logger
}

func NewService(repo repository.AnalysisRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportAnalysesXLSX returns a workbook of the journaled analyses matching filter.
func (s *Service) ExportAnalysesXLSX(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("export: no journal configured: %w", common.ErrUnavailable)
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	return s.AnalysesXLSX(rows)
}

// Headers lists the column titles in sheet order.
func Headers() []string {
	headers := []string{
		"Date d'analyse",
		"Document",
		"Niveau de risque",
		"Score",
		"Facteurs",
		"Analyse IA",
	}
	for _, f := range kyc.Fields() {
		headers = append(headers, f.String())
	}
	return headers
}

// AnalysesXLSX renders rows into a single-sheet workbook.
func (s *Service) AnalysesXLSX(rows []*repository.Analysis) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if index, _ := f.GetSheetIndex(SheetName); index == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)
	// drop the empty default sheet
	if SheetName != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range Headers() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, a := range rows {
		if a == nil {
			continue
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		if !a.AnalyzedAt.IsZero() {
			write(1, a.AnalyzedAt.UTC().Format("2006-01-02 15:04:05"))
		} else {
			write(1, "")
		}
		write(2, a.DocumentName)
		write(3, a.Band)
		write(4, a.Score)
		write(5, strings.Join(a.Factors, "; "))
		write(6, a.NarrativeStatus)
		for i, field := range kyc.Fields() {
			write(7+i, a.Record.Get(field))
		}
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20) // date
	_ = f.SetColWidth(SheetName, "B", "B", 28) // document
	_ = f.SetColWidth(SheetName, "C", "D", 12)
	_ = f.SetColWidth(SheetName, "E", "E", 48) // factors
	_ = f.SetColWidth(SheetName, "F", "F", 12)
	lastCol, _ := excelize.ColumnNumberToName(len(Headers()))
	_ = f.SetColWidth(SheetName, "G", lastCol, 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
