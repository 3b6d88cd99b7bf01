package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one parsed record with its 1-based position in the source, so
// callers can report exactly which line of a curated list was malformed.
type Row struct {
	Line   int
	Fields []string
}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Comma      rune // field delimiter, default ','
	Comment    rune // comment character, 0 disables
	SkipHeader bool // drop the first record
}

// StreamCSV parses CSV records from r and sends them on the returned row
// channel. Fields are whitespace-trimmed and records may vary in width.
// Both channels close when parsing finishes; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Comma != 0 {
			reader.Comma = opts.Comma
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		line := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "dataset: csv canceled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "dataset: csv read")
				return
			}

			line++
			if line == 1 && opts.SkipHeader {
				continue
			}

			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- Row{Line: line, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "dataset: csv canceled")
				return
			}
		}
	}()

	return rowCh, errCh
}
