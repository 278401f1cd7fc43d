// Package report renders a reviewed session as an xlsx workbook for download.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

const sheetName = "Lab Results"

var headers = []string{"Section", "Metric", "Value", "Unit", "Reference Range", "Date", "Status", "Match"}

// ExcelBuilder writes one row per reviewed metric, grouped the way the
// review screen shows them.
type ExcelBuilder struct{}

func NewExcelBuilder() *ExcelBuilder {
	return &ExcelBuilder{}
}

func (b *ExcelBuilder) Build(snapshot *domain.SessionSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil session snapshot")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for col, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, metric := range snapshot.Metrics {
		row := i + 2
		values := []any{
			metric.Section,
			metric.Name,
			metric.Value,
			metric.Unit,
			metric.ReferenceRaw,
			metric.DateOfValue,
			string(metric.Status),
			matchLabel(metric.Similarity),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	summaryRow := len(snapshot.Metrics) + 3
	summary := fmt.Sprintf("Document: %s", snapshot.Document.FileName)
	if snapshot.DetectedLanguage != "" {
		summary += fmt.Sprintf(" (language: %s)", snapshot.DetectedLanguage)
	}
	cell, _ := excelize.CoordinatesToCellName(1, summaryRow)
	if err := f.SetCellValue(sheetName, cell, summary); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func matchLabel(ann *domain.SimilarityAnnotation) string {
	if ann == nil {
		return ""
	}
	switch ann.Status {
	case domain.SimilarityExist:
		return "existing metric"
	case domain.SimilaritySimilar:
		if ann.ExistingDisplayName != "" {
			return fmt.Sprintf("similar to %s", ann.ExistingDisplayName)
		}
		return "similar metric"
	default:
		return "new metric"
	}
}
