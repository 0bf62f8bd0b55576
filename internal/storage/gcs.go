package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"cloud.google.com/go/storage"
)

// GCS stores artifacts as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects with application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create cloud storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(name)
}

// Save uploads r. The object only becomes visible once the writer closes.
func (g *GCS) Save(ctx context.Context, name string, r io.Reader) error {
	return writeObject(ctx, name, r, func(ctx context.Context) io.WriteCloser {
		return g.object(name).NewWriter(ctx)
	})
}

// writeObject copies r into the writer from newWriter. The writer's context
// is canceled before Close when the copy fails, so the upload is abandoned
// instead of committing a partial object.
func writeObject(ctx context.Context, name string, r io.Reader, newWriter func(context.Context) io.WriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wc := newWriter(ctx)
	if _, err := io.Copy(wc, r); err != nil {
		cancel()
		wc.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close object writer %s: %w", name, err)
	}
	return nil
}

func (g *GCS) Size(ctx context.Context, name string) (int64, error) {
	attrs, err := g.object(name).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("stat object %s: %w", name, notExist(err))
	}
	return attrs.Size, nil
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := g.object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", name, notExist(err))
	}
	return rc, nil
}

// Remove deletes the object. An already missing object is not an error.
func (g *GCS) Remove(ctx context.Context, name string) error {
	err := g.object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// notExist rewrites the bucket's not-found error to fs.ErrNotExist.
func notExist(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	return err
}
