// Package fetcher streams tabular rows from uploaded CSV and XLSX files.
package fetcher

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// rowBuffer is the row channel capacity.
const rowBuffer = 64

// nextRow returns the next row, or io.EOF once the input is exhausted.
type nextRow func() ([]string, error)

// pump drives next on its own goroutine. Rows go to the first channel; at
// most one error goes to the second. Both close when the input ends, next
// fails, or ctx is done.
func pump(ctx context.Context, kind string, open func() (nextRow, error)) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, rowBuffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)

		next, err := open()
		if err != nil {
			errCh <- err
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrapf(err, "%s: context cancelled", kind)
				return
			}
			row, err := next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- err
				return
			}
			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrapf(ctx.Err(), "%s: context cancelled", kind)
				return
			}
		}
	}()

	return rowCh, errCh
}

func trimAll(row []string) []string {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
