package tabular

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// WorkbookReader reads the first sheet of an Excel workbook. Legacy selects
// the BIFF (.xls) format instead of OOXML (.xlsx). Only header plus maxRows
// rows are retained, but every row is counted.
type WorkbookReader struct {
	Legacy bool
}

func (w WorkbookReader) Read(ctx context.Context, src io.ReadCloser, maxRows int) (*Preview, error) {
	defer src.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := &grid{maxRows: maxRows, p: &Preview{}}
	var err error
	if w.Legacy {
		err = readXLS(src, g)
	} else {
		err = readXLSX(src, g)
	}
	if err != nil {
		return nil, err
	}
	return g.p, nil
}

func readXLSX(r io.Reader, g *grid) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		g.add(cells)
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return nil
}

func readXLS(r io.Reader, g *grid) (err error) {
	// The BIFF parser needs random access.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	// xls panics on some truncated or corrupt files.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("open workbook: not a valid xls file: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return fmt.Errorf("open workbook: not a valid xls file: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			if i == 0 && sheet.MaxRow == 0 {
				// No rows at all.
				return nil
			}
			g.add(nil)
			continue
		}
		g.add(rowCells(row))
	}
	return nil
}

// maxXLSColumns is the BIFF8 column limit.
const maxXLSColumns = 256

// sheetRow returns row i, or nil when the sheet has no record for it.
// xls dereferences missing rows instead of returning nil.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// rowCells reads a row's values. Rows without a ROW record report no last
// column, so every column is scanned and trailing blanks are dropped.
func rowCells(row *xls.Row) []string {
	width := row.LastCol()
	scanned := width <= 0
	if scanned {
		width = maxXLSColumns
	}

	cells := make([]string, width)
	for j := range cells {
		cells[j] = row.Col(j)
	}
	if scanned {
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
	}
	return cells
}

// grid collects sheet rows into a Preview: the first row becomes the
// headers, later rows are counted and kept up to maxRows.
type grid struct {
	maxRows int
	p       *Preview
	seen    bool
}

func (g *grid) add(cells []string) {
	if !g.seen {
		g.seen = true
		g.p.Headers = append([]string{}, cells...)
		return
	}
	g.p.TotalRowsRead++
	if len(g.p.Rows) < g.maxRows {
		g.p.Rows = append(g.p.Rows, align(cells, len(g.p.Headers)))
		return
	}
	g.p.Truncated = true
}
