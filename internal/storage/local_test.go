package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/tablestore/internal/config"
)

func TestLocal_SaveSizeOpenRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(filepath.Join(dir, "nested", "uploads"))
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	body := "id,name\n1,Ann\n"
	if err := store.Save(ctx, "abc.csv", strings.NewReader(body)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	size, err := store.Size(ctx, "abc.csv")
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != int64(len(body)) {
		t.Errorf("Size() = %d, want %d", size, len(body))
	}

	rc, err := store.Open(ctx, "abc.csv")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != body {
		t.Errorf("content = %q, want %q", data, body)
	}

	if err := store.Remove(ctx, "abc.csv"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove(ctx, "abc.csv"); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
	if _, err := store.Open(ctx, "abc.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open() after remove error = %v, want fs.ErrNotExist", err)
	}
	if _, err := store.Size(ctx, "abc.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Size() after remove error = %v, want fs.ErrNotExist", err)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestLocal_SaveFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	if err := store.Save(context.Background(), "x.csv", brokenReader{}); err == nil {
		t.Fatal("Save() expected error")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("storage dir has %d entries after failed save, want 0", len(entries))
	}
}

func TestLocal_SaveHonoursContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Save(ctx, "x.csv", strings.NewReader("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

func TestLocal_RejectsEscapingNames(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	for _, name := range []string{"", "../etc/passwd", "a/b.csv", ".hidden"} {
		if err := store.Save(context.Background(), name, strings.NewReader("x")); err == nil {
			t.Errorf("Save(%q) expected error", name)
		}
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	store, closer, err := New(context.Background(), config.StorageConfig{Backend: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()
	if _, ok := store.(*Local); !ok {
		t.Errorf("New() = %T, want *Local", store)
	}

	if _, _, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Error("New() with unknown backend expected error")
	}
}
