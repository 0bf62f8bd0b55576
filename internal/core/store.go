package core

import (
	"context"
	"io"
	"time"
)

// FileRepository persists file records. Lookups of missing records return
// an error wrapping ErrNotFound. Listings are ordered newest first and leave
// PreviewData empty.
type FileRepository interface {
	CreateFile(ctx context.Context, f *File) error
	GetFile(ctx context.Context, id string) (*File, error)
	ListFiles(ctx context.Context, filter FileFilter) ([]File, error)
	UpdateFileColumns(ctx context.Context, id string, columns []Column) (*File, error)

	// UpdateRowCount replaces only the row count and marks it exact.
	UpdateRowCount(ctx context.Context, id string, rowCount int) error
	DeleteFile(ctx context.Context, id string) error
	DeleteFilesByOwner(ctx context.Context, ownerID string) (int64, error)

	// ListInexactFiles returns files whose row count still awaits
	// reconciliation and that were created before olderThan.
	ListInexactFiles(ctx context.Context, olderThan time.Time, limit int) ([]File, error)
}

// UserRepository persists user accounts. A duplicate email yields an error
// wrapping ErrConflict.
type UserRepository interface {
	// CreateUser inserts u. When no user exists yet, onFirst is invoked on u
	// before the insert, atomically with respect to concurrent creations.
	CreateUser(ctx context.Context, u *User, onFirst func(*User)) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// UpdateUser writes name, email and permissions.
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	InsertAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	ArchiveAudit(ctx context.Context, olderThan time.Time, batchSize int) (int64, error)
	PurgeArchivedAudit(ctx context.Context, olderThan time.Time) (int64, error)
}

// ArtifactStore holds raw upload bytes under a stored name. Missing
// artifacts are reported as fs.ErrNotExist; Remove of a missing artifact
// succeeds.
type ArtifactStore interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Size(ctx context.Context, name string) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
