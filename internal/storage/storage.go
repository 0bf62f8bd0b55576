package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/tablestore/internal/config"
)

// Store is the contract shared by the backends.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Size(ctx context.Context, name string) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

var (
	_ Store = (*Local)(nil)
	_ Store = (*GCS)(nil)
)

// New builds the configured backend. The returned closer releases backend
// connections and is safe to call for the local backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "gcs":
		g, err := NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "local", "":
		l, err := NewLocal(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return l, io.NopCloser(nil), nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
