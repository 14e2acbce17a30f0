package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // overrides SheetIndex
	SkipBlank  bool   // drop rows whose cells are all empty
}

// StreamXLSX sends the rows of one sheet of an in-memory workbook.
func StreamXLSX(ctx context.Context, data []byte, opts XLSXOptions) (<-chan []string, <-chan error) {
	return pump(ctx, "xlsx", func() (nextRow, error) {
		wb, err := xlsx.OpenBinary(data)
		if err != nil {
			return nil, eris.Wrap(err, "xlsx: open workbook")
		}
		sheet, err := pickSheet(wb, opts)
		if err != nil {
			return nil, err
		}

		i := 0
		return func() ([]string, error) {
			for i < len(sheet.Rows) {
				row := cellStrings(sheet.Rows[i])
				i++
				if opts.SkipBlank && blank(row) {
					continue
				}
				return row, nil
			}
			return nil, io.EOF
		}, nil
	})
}

func pickSheet(wb *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		if sheet, ok := wb.Sheet[opts.SheetName]; ok {
			return sheet, nil
		}
		return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
	}
	if n := len(wb.Sheets); opts.SheetIndex < 0 || opts.SheetIndex >= n {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (%d sheets)", opts.SheetIndex, n)
	}
	return wb.Sheets[opts.SheetIndex], nil
}

func cellStrings(row *xlsx.Row) []string {
	if row == nil {
		return []string{}
	}
	out := make([]string, 0, len(row.Cells))
	for _, c := range row.Cells {
		out = append(out, c.String())
	}
	return out
}
