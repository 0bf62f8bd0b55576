// Package tabular reads headers and a bounded preview of rows from uploaded
// delimited text and spreadsheet files.
//
// Two readers share one contract. CSVReader streams and stops as soon as the
// preview cap is reached, so its TotalRowsRead is only a lower bound for
// large inputs; use CountRows for an exact figure. WorkbookReader loads the
// whole first sheet, so its TotalRowsRead is always exact.
package tabular

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Preview is the result of reading a tabular source.
type Preview struct {
	// Headers are the first row's cells in source order. Duplicates are kept.
	Headers []string

	// Rows holds at most the requested number of data rows, each aligned to
	// Headers with missing cells as "".
	Rows [][]string

	// TotalRowsRead counts data rows seen before the reader settled.
	TotalRowsRead int

	// Truncated is set when the reader stopped at the cap rather than at the
	// end of input.
	Truncated bool
}

// Reader reads a Preview from src, consuming and closing it.
type Reader interface {
	Read(ctx context.Context, src io.ReadCloser, maxRows int) (*Preview, error)
}

// Kind identifies how a file is parsed.
type Kind int

const (
	KindCSV Kind = iota + 1
	KindXLSX
	KindXLS
)

func (k Kind) String() string {
	switch k {
	case KindCSV:
		return "csv"
	case KindXLSX:
		return "xlsx"
	case KindXLS:
		return "xls"
	}
	return "unknown"
}

// Streaming reports whether previews of this kind may undercount rows.
func (k Kind) Streaming() bool {
	return k == KindCSV
}

var kindsByExt = map[string]Kind{
	".csv":  KindCSV,
	".xlsx": KindXLSX,
	".xls":  KindXLS,
}

// UnsupportedTypeError is returned for files outside the allow-list.
type UnsupportedTypeError struct {
	Ext     string
	Allowed []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q: allowed types are %s", e.Ext, strings.Join(e.Allowed, ", "))
}

// KindFromFilename resolves the parser for name, returning the lowercased
// extension. The extension must be in allowed and have a known parser.
func KindFromFilename(name string, allowed []string) (Kind, string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			if k, ok := kindsByExt[ext]; ok {
				return k, ext, nil
			}
		}
	}
	return 0, ext, &UnsupportedTypeError{Ext: ext, Allowed: allowed}
}

// ReaderFor returns the reader for k.
func ReaderFor(k Kind) Reader {
	switch k {
	case KindXLSX:
		return WorkbookReader{}
	case KindXLS:
		return WorkbookReader{Legacy: true}
	}
	return CSVReader{}
}

// align pads or trims cells to width.
func align(cells []string, width int) []string {
	row := make([]string, width)
	copy(row, cells)
	return row
}
