package report

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// writeXLSX exports the report KPIs and heatmap to an XLSX workbook under
// dir and returns the file path.
func writeXLSX(r *WeeklyReport, dir string) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", fmt.Errorf("report: xlsx sheet: %w", err)
	}

	rows := [][]any{
		{"metric", "value"},
		{"week", r.WeekID},
		{"insightsCount", r.KPI.InsightsCount},
		{"positive", r.KPI.Positive},
		{"negative", r.KPI.Negative},
		{"neutral", r.KPI.Neutral},
		{},
		{"territory", "value"},
	}
	for _, bin := range r.Heatmap {
		rows = append(rows, []any{bin.TerritoryName, bin.Value})
	}

	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return "", fmt.Errorf("report: xlsx cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return "", fmt.Errorf("report: xlsx write: %w", err)
			}
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("weekly_report_%s_%s.xlsx", r.ProductLineID, r.WeekID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("report: xlsx save: %w", err)
	}
	return path, nil
}
