package tabular

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

// trackingSource counts bytes handed out and Close calls.
type trackingSource struct {
	r      io.Reader
	read   atomic.Int64
	closes atomic.Int32
}

func newTrackingSource(r io.Reader) *trackingSource {
	return &trackingSource{r: r}
}

func (s *trackingSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read.Add(int64(n))
	return n, err
}

func (s *trackingSource) Close() error {
	s.closes.Add(1)
	return nil
}

func csvWithRows(n int) string {
	var b strings.Builder
	b.WriteString("id,name,amount\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d,name-%d,%d.50\n", i, i, i*10)
	}
	return b.String()
}

func TestCSVReader_ReadsAllRowsUnderCap(t *testing.T) {
	src := newTrackingSource(strings.NewReader("a,b,c\n1,2,3\n4,5\n6,7,8,9\n"))

	p, err := CSVReader{}.Read(context.Background(), src, 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(p.Headers, "|"); got != "a|b|c" {
		t.Errorf("Headers = %q, want %q", got, "a|b|c")
	}
	want := [][]string{{"1", "2", "3"}, {"4", "5", ""}, {"6", "7", "8"}}
	if len(p.Rows) != len(want) {
		t.Fatalf("len(Rows) = %d, want %d", len(p.Rows), len(want))
	}
	for i := range want {
		if strings.Join(p.Rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("Rows[%d] = %q, want %q", i, p.Rows[i], want[i])
		}
	}
	if p.TotalRowsRead != 3 || p.Truncated {
		t.Errorf("TotalRowsRead = %d, Truncated = %v; want 3, false", p.TotalRowsRead, p.Truncated)
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestCSVReader_StopsAtCap(t *testing.T) {
	input := csvWithRows(20000)
	src := newTrackingSource(strings.NewReader(input))

	p, err := CSVReader{}.Read(context.Background(), src, 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(p.Rows) != 100 {
		t.Errorf("len(Rows) = %d, want 100", len(p.Rows))
	}
	if p.TotalRowsRead != 100 {
		t.Errorf("TotalRowsRead = %d, want 100", p.TotalRowsRead)
	}
	if !p.Truncated {
		t.Error("Truncated = false, want true")
	}
	if p.Rows[99][0] != "100" {
		t.Errorf("last preview row id = %q, want %q", p.Rows[99][0], "100")
	}
	if read := src.read.Load(); read >= int64(len(input)) {
		t.Errorf("reader consumed %d of %d bytes, want early stop", read, len(input))
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestCSVReader_Empty(t *testing.T) {
	src := newTrackingSource(strings.NewReader(""))

	p, err := CSVReader{}.Read(context.Background(), src, 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(p.Headers) != 0 || len(p.Rows) != 0 || p.TotalRowsRead != 0 {
		t.Errorf("Preview = %+v, want empty", p)
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestCSVReader_HeaderOnlyAndDuplicates(t *testing.T) {
	p, err := CSVReader{}.Read(context.Background(), io.NopCloser(strings.NewReader("x,x,y\n")), 10)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := strings.Join(p.Headers, ","); got != "x,x,y" {
		t.Errorf("Headers = %q, want duplicates kept", got)
	}
	if p.TotalRowsRead != 0 {
		t.Errorf("TotalRowsRead = %d, want 0", p.TotalRowsRead)
	}
}

func TestCSVReader_StripsBOMAndRepairsUTF8(t *testing.T) {
	input := "\xef\xbb\xbfname,city\nJos\xe9,Z\xc3\xbcrich\n"

	p, err := CSVReader{}.Read(context.Background(), io.NopCloser(strings.NewReader(input)), 10)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if p.Headers[0] != "name" {
		t.Errorf("Headers[0] = %q, want BOM stripped", p.Headers[0])
	}
	if p.Rows[0][0] != "Jos�" {
		t.Errorf("Rows[0][0] = %q, want replacement character", p.Rows[0][0])
	}
	if p.Rows[0][1] != "Zürich" {
		t.Errorf("Rows[0][1] = %q, want %q", p.Rows[0][1], "Zürich")
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestCSVReader_PropagatesSourceError(t *testing.T) {
	boom := errors.New("disk unplugged")
	src := newTrackingSource(&failingReader{data: []byte("a,b\n1,2\n3,"), err: boom})

	_, err := CSVReader{}.Read(context.Background(), src, 100)
	if !errors.Is(err, boom) {
		t.Fatalf("Read() error = %v, want %v", err, boom)
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestCSVReader_ContextCancelReleasesBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := CSVReader{}.Read(ctx, pr, 10)
		done <- err
	}()

	if _, err := pw.Write([]byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Read() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read() did not return after cancellation")
	}
}

func TestCountRows(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"header only", "a,b\n", 0},
		{"no trailing newline", "a,b\n1,2\n3,4", 2},
		{"quoted newlines", "a,b\n\"multi\nline\",2\n3,4\n", 2},
		{"large", csvWithRows(2500), 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountRows(context.Background(), strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("CountRows() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountRows() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountRows_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := CountRows(ctx, strings.NewReader(csvWithRows(10))); !errors.Is(err, context.Canceled) {
		t.Errorf("CountRows() error = %v, want context.Canceled", err)
	}
}

func TestKindFromFilename(t *testing.T) {
	allowed := []string{".csv", ".xlsx", ".xls"}

	tests := []struct {
		name     string
		wantKind Kind
		wantExt  string
		wantErr  bool
	}{
		{"data.csv", KindCSV, ".csv", false},
		{"REPORT.CSV", KindCSV, ".csv", false},
		{"book.xlsx", KindXLSX, ".xlsx", false},
		{"old.XLS", KindXLS, ".xls", false},
		{"notes.txt", 0, ".txt", true},
		{"noext", 0, "", true},
		{"archive.csv.zip", 0, ".zip", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ext, err := KindFromFilename(tt.name, allowed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("KindFromFilename() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ext != tt.wantExt {
				t.Errorf("ext = %q, want %q", ext, tt.wantExt)
			}
			if kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestKindFromFilename_RespectsAllowList(t *testing.T) {
	_, _, err := KindFromFilename("book.xlsx", []string{".csv"})
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want *UnsupportedTypeError", err)
	}
	if !strings.Contains(err.Error(), ".csv") {
		t.Errorf("error %q should list allowed types", err)
	}
}

func TestReaderFor(t *testing.T) {
	if _, ok := ReaderFor(KindCSV).(CSVReader); !ok {
		t.Error("ReaderFor(csv) is not a CSVReader")
	}
	if r, ok := ReaderFor(KindXLS).(WorkbookReader); !ok || !r.Legacy {
		t.Error("ReaderFor(xls) is not a legacy WorkbookReader")
	}
	if !KindCSV.Streaming() || KindXLSX.Streaming() {
		t.Error("only csv should stream")
	}
}

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestWorkbookReader_CountsAllKeepsCap(t *testing.T) {
	rows := [][]any{{"sku", "qty", "shipped"}}
	for i := 1; i <= 150; i++ {
		rows = append(rows, []any{fmt.Sprintf("SKU-%03d", i), i, "2024-01-15"})
	}
	rows = append(rows, []any{"short"})
	src := newTrackingSource(bytes.NewReader(buildWorkbook(t, rows)))

	p, err := WorkbookReader{}.Read(context.Background(), src, 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(p.Headers, ","); got != "sku,qty,shipped" {
		t.Errorf("Headers = %q", got)
	}
	if p.TotalRowsRead != 151 {
		t.Errorf("TotalRowsRead = %d, want 151", p.TotalRowsRead)
	}
	if len(p.Rows) != 100 {
		t.Errorf("len(Rows) = %d, want 100", len(p.Rows))
	}
	if p.Rows[0][1] != "1" {
		t.Errorf("Rows[0][1] = %q, want numeric cell as text", p.Rows[0][1])
	}
	if !p.Truncated {
		t.Error("Truncated = false, want true")
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestWorkbookReader_PadsShortRows(t *testing.T) {
	data := buildWorkbook(t, [][]any{{"a", "b", "c"}, {"only"}})

	p, err := WorkbookReader{}.Read(context.Background(), io.NopCloser(bytes.NewReader(data)), 10)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := strings.Join(p.Rows[0], "|"); got != "only||" {
		t.Errorf("Rows[0] = %q, want padded", got)
	}
}

func TestWorkbookReader_EmptyWorkbook(t *testing.T) {
	data := buildWorkbook(t, nil)

	p, err := WorkbookReader{}.Read(context.Background(), io.NopCloser(bytes.NewReader(data)), 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(p.Headers) != 0 || len(p.Rows) != 0 || p.TotalRowsRead != 0 {
		t.Errorf("Preview = %+v, want empty", p)
	}
}

func TestWorkbookReader_InvalidInput(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		src := newTrackingSource(strings.NewReader("definitely,not,a,workbook\n"))
		_, err := WorkbookReader{Legacy: legacy}.Read(context.Background(), src, 10)
		if err == nil {
			t.Errorf("Legacy=%v: Read() expected error", legacy)
		}
		if got := src.closes.Load(); got != 1 {
			t.Errorf("Legacy=%v: source closed %d times, want 1", legacy, got)
		}
	}
}

func openFixture(t *testing.T, name string) *trackingSource {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return newTrackingSource(bytes.NewReader(data))
}

// inventory.xls: header sku,qty,note; rows 1-150 SKU-001.. with a note on
// even rows; row 151 blank (no ROW record); row 152 has cells but no ROW
// record.
func TestWorkbookReader_XLS(t *testing.T) {
	tests := []struct {
		name      string
		maxRows   int
		wantRows  int
		truncated bool
	}{
		{"capped", 100, 100, true},
		{"everything", 200, 152, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := openFixture(t, "inventory.xls")

			p, err := WorkbookReader{Legacy: true}.Read(context.Background(), src, tt.maxRows)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}

			if got := strings.Join(p.Headers, ","); got != "sku,qty,note" {
				t.Errorf("Headers = %q", got)
			}
			if p.TotalRowsRead != 152 {
				t.Errorf("TotalRowsRead = %d, want 152", p.TotalRowsRead)
			}
			if len(p.Rows) != tt.wantRows {
				t.Fatalf("len(Rows) = %d, want %d", len(p.Rows), tt.wantRows)
			}
			if p.Truncated != tt.truncated {
				t.Errorf("Truncated = %v, want %v", p.Truncated, tt.truncated)
			}
			if got := strings.Join(p.Rows[0], "|"); got != "SKU-001|1|" {
				t.Errorf("Rows[0] = %q", got)
			}
			if got := strings.Join(p.Rows[1], "|"); got != "SKU-002|2|ok" {
				t.Errorf("Rows[1] = %q", got)
			}
			if got := src.closes.Load(); got != 1 {
				t.Errorf("source closed %d times, want 1", got)
			}
		})
	}
}

func TestWorkbookReader_XLSBlankAndUnrecordedRows(t *testing.T) {
	p, err := WorkbookReader{Legacy: true}.Read(context.Background(), openFixture(t, "inventory.xls"), 200)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(p.Rows[150], "|"); got != "||" {
		t.Errorf("blank row = %q, want empty cells", got)
	}
	if got := strings.Join(p.Rows[151], "|"); got != "LAST|999|end" {
		t.Errorf("row without ROW record = %q, want LAST|999|end", got)
	}
}

func TestWorkbookReader_XLSEmptyFirstSheet(t *testing.T) {
	p, err := WorkbookReader{Legacy: true}.Read(context.Background(), openFixture(t, "empty_first_sheet.xls"), 100)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(p.Headers) != 0 || len(p.Rows) != 0 || p.TotalRowsRead != 0 {
		t.Errorf("Preview = %+v, want empty", p)
	}
}
