package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbookRows loads the first worksheet of an XLSX file and returns
// its cells as rows in the same shape the delimited tokenizer produces,
// so the schema detector and extractors work unchanged. A sheet named
// like "transactions" or "holdings" is preferred over the first sheet.
func ReadWorkbookRows(reader io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := pickSheet(f)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	// drop leading blank rows and pad short rows to header width
	start := 0
	for start < len(rows) && isBlankRow(rows[start]) {
		start++
	}
	rows = rows[start:]
	if len(rows) == 0 {
		return nil, nil
	}

	width := len(rows[0])
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = strings.TrimSpace(row[i])
		}
		out = append(out, cells)
	}
	return out, nil
}

func pickSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}
	for _, name := range sheets {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "transaction") || strings.Contains(lower, "holding") || strings.Contains(lower, "position") {
			return name
		}
	}
	return sheets[0]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
