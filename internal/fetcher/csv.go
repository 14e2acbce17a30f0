package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
	SkipBlank  bool // drop rows whose fields are all empty
}

// StreamCSV sends every record of r, header included. Records may have
// differing field counts. A leading UTF-8 byte order mark is dropped.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	return pump(ctx, "csv", func() (nextRow, error) {
		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}

		cr := csv.NewReader(br)
		if opts.Delimiter != 0 {
			cr.Comma = opts.Delimiter
		}
		cr.Comment = opts.Comment
		cr.LazyQuotes = opts.LazyQuotes
		cr.FieldsPerRecord = -1

		return func() ([]string, error) {
			for {
				rec, err := cr.Read()
				if err == io.EOF {
					return nil, err
				}
				if err != nil {
					return nil, eris.Wrap(err, "csv: read row")
				}
				if opts.TrimSpace {
					rec = trimAll(rec)
				}
				if opts.SkipBlank && blank(rec) {
					continue
				}
				return rec, nil
			}
		}, nil
	})
}
