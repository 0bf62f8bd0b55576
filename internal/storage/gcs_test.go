package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// recordingWriter commits its buffer on Close unless its context was
// canceled first, the way a cloud storage object writer behaves.
type recordingWriter struct {
	ctx       context.Context
	buf       bytes.Buffer
	committed bool
	closed    bool
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *recordingWriter) Close() error {
	w.closed = true
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.committed = true
	return nil
}

type failingReader struct {
	data string
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func TestWriteObject(t *testing.T) {
	errBroken := errors.New("connection reset")

	tests := []struct {
		name      string
		src       io.Reader
		wantErr   bool
		committed bool
	}{
		{"complete upload commits", strings.NewReader("id,name\n1,Ann\n"), false, true},
		{"failed copy is abandoned", &failingReader{data: "id,na", err: errBroken}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *recordingWriter
			err := writeObject(context.Background(), "abc.csv", tt.src, func(ctx context.Context) io.WriteCloser {
				w = &recordingWriter{ctx: ctx}
				return w
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("writeObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errBroken) {
				t.Errorf("error = %v, want wrapped %v", err, errBroken)
			}
			if !w.closed {
				t.Error("writer not closed")
			}
			if w.committed != tt.committed {
				t.Errorf("committed = %v, want %v", w.committed, tt.committed)
			}
		})
	}
}
