package extract

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetExtractor flattens every sheet of a workbook, row by row.
type SpreadsheetExtractor struct{}

func (e *SpreadsheetExtractor) Format() string { return "spreadsheet" }

func (e *SpreadsheetExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
