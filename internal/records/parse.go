package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bannerbuildr/pkg/models"
)

// ParseCSV reads a header row followed by data rows. Blank lines and rows
// with only empty cells are skipped.
func ParseCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv %s: %w", name, err)
		}
		rows = append(rows, rec)
	}
	return TableFromRows(name, rows), nil
}

// TableFromRows converts a header row plus data rows into a Table. Columns
// with a blank header are dropped; a repeated header keeps its first column.
// Empty cells are absent (nil) in the resulting records.
func TableFromRows(name string, rows [][]string) *Table {
	table := &Table{Name: name}
	if len(rows) == 0 {
		return table
	}

	header := append([]string(nil), rows[0]...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	columnIdx := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		table.Columns = append(table.Columns, h)
		columnIdx = append(columnIdx, i)
	}

	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(models.DataRecord, len(table.Columns))
		for n, col := range table.Columns {
			i := columnIdx[n]
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				rec[col] = nil
				continue
			}
			rec[col] = row[i]
		}
		table.Rows = append(table.Rows, rec)
	}
	return table
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
