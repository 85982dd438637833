package records

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

func resolveLocal(root, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty source path")
	}
	if root == "" {
		return filepath.Clean(p), nil
	}
	joined := filepath.Join(root, p)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source path %q escapes %s", p, root)
	}
	return joined, nil
}

// WorkbookSource reads sheets of local .xlsx workbooks. sourceID is the
// workbook path (relative to Root when set) and subset the sheet name; an
// empty subset selects the active sheet.
type WorkbookSource struct {
	Root string
}

// Fetch implements Source.
func (w *WorkbookSource) Fetch(ctx context.Context, sourceID, subset string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := resolveLocal(w.Root, sourceID)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", p, err)
	}
	defer f.Close()
	return readSheet(f, subset)
}

// ParseWorkbook reads one sheet of an .xlsx workbook from r.
func ParseWorkbook(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

// WorkbookSheets lists the sheet names of a workbook.
func WorkbookSheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func readSheet(f *excelize.File, sheet string) (*Table, error) {
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return TableFromRows(sheet, rows), nil
}

// CSVFileSource reads local csv files. With an empty subset sourceID is the
// file; otherwise sourceID is a directory holding "<subset>.csv".
type CSVFileSource struct {
	Root string
}

// Fetch implements Source.
func (c *CSVFileSource) Fetch(ctx context.Context, sourceID, subset string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := sourceID
	name := strings.TrimSuffix(filepath.Base(sourceID), filepath.Ext(sourceID))
	if subset != "" {
		file := subset
		if !strings.EqualFold(filepath.Ext(file), ".csv") {
			file += ".csv"
		}
		rel = filepath.Join(sourceID, file)
		name = subset
	}
	p, err := resolveLocal(c.Root, rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()
	return ParseCSV(name, f)
}
