package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/anchit2000/invoice-parsing-llms/internal/repository"
	"github.com/anchit2000/invoice-parsing-llms/internal/validation"
)

// Service is a tiny façade over the result repository that produces XLSX
// bytes for exports.
type Service struct {
	results repository.ResultRepository
	logger  *slog.Logger
}

func NewService(results repository.ResultRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

// fixed columns ahead of the dynamic per-field ones
var baseHeaders = []string{
	"File Name",
	"Uploaded At",
	"Processed At",
	"Pages",
	"Model",
	"Confidence",
	"All Valid",
}

// ExportResultsXLSX returns an XLSX workbook with one row per extraction
// result for the user. Extracted field values expand into their own columns,
// in the order fields first appear across the result set.
func (s *Service) ExportResultsXLSX(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	start := time.Now()

	rows, err := s.results.ListByUser(ctx, userID, 10_000, 0)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	type decoded struct {
		row    *repository.ResultRow
		fields map[string]any
		valid  bool
	}
	items := make([]decoded, 0, len(rows))
	fieldOrder := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range rows {
		var fields map[string]any
		if err := json.Unmarshal(r.Result.ExtractedData, &fields); err != nil {
			s.logger.Warn("export.decode_failed", "result_id", r.Result.ID, "error", err)
			fields = map[string]any{}
		}
		var summary validation.BatchResult
		_ = json.Unmarshal(r.Result.ValidationSummary, &summary)

		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				fieldOrder = append(fieldOrder, name)
			}
		}
		items = append(items, decoded{row: r, fields: fields, valid: summary.AllValid})
	}

	f := excelize.NewFile()
	const sheet = "Results"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := append(append([]string{}, baseHeaders...), fieldOrder...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNum := 2
	for _, it := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			_ = f.SetCellValue(sheet, cell, v)
		}

		doc := it.row.Document
		res := it.row.Result
		write(1, doc.FileName)
		write(2, doc.UploadedAt.Format("2006-01-02 15:04"))
		if doc.ProcessedAt != nil {
			write(3, doc.ProcessedAt.Format("2006-01-02 15:04"))
		} else {
			write(3, "")
		}
		write(4, doc.PageCount)
		write(5, res.Model)
		write(6, fmt.Sprintf("%.2f", res.Confidence))
		write(7, it.valid)

		for i, name := range fieldOrder {
			write(len(baseHeaders)+1+i, cellValue(it.fields[name]))
		}
		rowNum++
	}

	_ = f.SetColWidth(sheet, "A", "A", 36) // file name
	_ = f.SetColWidth(sheet, "B", "C", 18) // timestamps
	_ = f.SetColWidth(sheet, "E", "E", 24) // model

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID.String(),
		"rows", len(items),
		"columns", len(headers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// cellValue flattens extracted values into something a spreadsheet cell can
// hold. Arrays join on "; ", nil stays an empty cell.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprintf("%v", e)
		}
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += "; "
			}
			out += p
		}
		return out
	case string, float64, bool, int:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
