package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// contextCheckInterval is how many rows CountRows reads between checks for
// cancellation.
const contextCheckInterval = 1000

// CSVReader streams delimited text and stops at the preview cap.
type CSVReader struct{}

// Read settles exactly once: on reaching maxRows, at end of input, on the
// first parse error, or when ctx is done, whichever happens first. src is
// closed at settlement, which also unblocks a read pending on it.
func (CSVReader) Read(ctx context.Context, src io.ReadCloser, maxRows int) (*Preview, error) {
	s := newSettlement(src.Close)
	stop := context.AfterFunc(ctx, func() { s.settle(nil, ctx.Err()) })
	defer stop()

	r := newCSVReader(src)
	p := &Preview{}
	for !s.settled() {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			s.settle(p, nil)
			break
		}
		if err != nil {
			s.settle(nil, fmt.Errorf("read csv: %w", err))
			break
		}

		if p.Headers == nil {
			p.Headers = rec
			continue
		}

		p.TotalRowsRead++
		if len(p.Rows) < maxRows {
			p.Rows = append(p.Rows, align(rec, len(p.Headers)))
		}
		if p.TotalRowsRead >= maxRows {
			p.Truncated = true
			s.settle(p, nil)
		}
	}

	return s.wait()
}

// CountRows reads src to the end and returns the number of data rows,
// excluding the header. It does not close src.
func CountRows(ctx context.Context, src io.Reader) (int, error) {
	r := newCSVReader(src)
	r.ReuseRecord = true

	records := 0
	for {
		if records%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count csv rows: %w", err)
		}
		records++
	}

	if records == 0 {
		return 0, nil
	}
	return records - 1, nil
}

// newCSVReader strips a UTF-8 byte order mark, replaces invalid UTF-8 with
// U+FFFD and tolerates ragged rows and stray quotes.
func newCSVReader(r io.Reader) *csv.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// settlement is a single-assignment result cell. The first settle call wins,
// releases the underlying resource and wakes waiters; later calls are no-ops.
type settlement struct {
	once    sync.Once
	done    chan struct{}
	release func() error

	preview *Preview
	err     error
}

func newSettlement(release func() error) *settlement {
	return &settlement{done: make(chan struct{}), release: release}
}

func (s *settlement) settle(p *Preview, err error) {
	s.once.Do(func() {
		s.preview, s.err = p, err
		// The source is read-only; a close failure cannot affect the result.
		_ = s.release()
		close(s.done)
	})
}

func (s *settlement) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *settlement) wait() (*Preview, error) {
	<-s.done
	return s.preview, s.err
}
