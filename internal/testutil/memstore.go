// Package testutil provides in-memory implementations of the core store
// interfaces for service and handler tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablestore/internal/core"
)

// Stores bundles one of each fake, sharing a clock so listings have a
// deterministic newest-first order.
type Stores struct {
	Files     *Files
	Users     *Users
	Audits    *Audits
	Artifacts *Artifacts
	Hasher    PlainHasher
}

// NewStores returns empty stores.
func NewStores() *Stores {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	users := &Users{clk: clk, byID: make(map[string]core.User)}
	return &Stores{
		Files:     &Files{clk: clk, users: users, byID: make(map[string]core.File)},
		Users:     users,
		Audits:    &Audits{clk: clk},
		Artifacts: NewArtifacts(),
	}
}

// Deps returns the stores as service dependencies.
func (s *Stores) Deps() core.Deps {
	return core.Deps{
		Files:     s.Files,
		Users:     s.Users,
		Audits:    s.Audits,
		Artifacts: s.Artifacts,
		Hasher:    s.Hasher,
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

// tick advances by a millisecond per call so timestamps never collide.
func (c *clock) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// ----------------------------------------------------------------------------
// Files
// ----------------------------------------------------------------------------

// Files is an in-memory core.FileRepository.
type Files struct {
	mu    sync.Mutex
	clk   *clock
	users *Users
	byID  map[string]core.File
}

func (r *Files) CreateFile(_ context.Context, f *core.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[f.ID]; ok {
		return fmt.Errorf("file %s: %w", f.ID, core.ErrConflict)
	}
	now := r.clk.tick()
	f.CreatedAt, f.UpdatedAt = now, now
	r.byID[f.ID] = cloneFile(*f)
	return nil
}

func (r *Files) GetFile(_ context.Context, id string) (*core.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	out := cloneFile(f)
	out.Owner = r.users.summary(f.OwnerID)
	return &out, nil
}

func (r *Files) ListFiles(_ context.Context, filter core.FileFilter) ([]core.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.File, 0, len(r.byID))
	for _, f := range r.byID {
		if filter.OwnerID != "" && f.OwnerID != filter.OwnerID {
			continue
		}
		c := cloneFile(f)
		c.PreviewData = nil
		c.Owner = r.users.summary(f.OwnerID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Files) UpdateFileColumns(_ context.Context, id string, columns []core.Column) (*core.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	f.Columns = append([]core.Column(nil), columns...)
	f.UpdatedAt = r.clk.tick()
	r.byID[id] = f
	out := cloneFile(f)
	out.Owner = r.users.summary(f.OwnerID)
	return &out, nil
}

func (r *Files) UpdateRowCount(_ context.Context, id string, rowCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	f.RowCount = rowCount
	f.RowCountExact = true
	f.UpdatedAt = r.clk.tick()
	r.byID[id] = f
	return nil
}

func (r *Files) DeleteFile(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *Files) DeleteFilesByOwner(_ context.Context, ownerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, f := range r.byID {
		if f.OwnerID == ownerID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *Files) ListInexactFiles(_ context.Context, olderThan time.Time, limit int) ([]core.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.File
	for _, f := range r.byID {
		if !f.RowCountExact && f.CreatedAt.Before(olderThan) {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (r *Files) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func cloneFile(f core.File) core.File {
	f.Columns = append([]core.Column(nil), f.Columns...)
	if f.PreviewData != nil {
		rows := make([][]string, len(f.PreviewData))
		for i, row := range f.PreviewData {
			rows[i] = append([]string(nil), row...)
		}
		f.PreviewData = rows
	}
	return f
}

// ----------------------------------------------------------------------------
// Users
// ----------------------------------------------------------------------------

// Users is an in-memory core.UserRepository. Like the Postgres store, only
// GetUserByEmail returns the password hash.
type Users struct {
	mu   sync.Mutex
	clk  *clock
	byID map[string]core.User
}

func (r *Users) CreateUser(_ context.Context, u *core.User, onFirst func(*core.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
	}
	if len(r.byID) == 0 && onFirst != nil {
		onFirst(u)
	}
	now := r.clk.tick()
	u.CreatedAt, u.UpdatedAt = now, now
	r.byID[u.ID] = *u
	return nil
}

func (r *Users) GetUser(_ context.Context, id string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	u.PasswordHash = ""
	return &u, nil
}

func (r *Users) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
}

func (r *Users) ListUsers(_ context.Context) ([]core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.User, 0, len(r.byID))
	for _, u := range r.byID {
		u.PasswordHash = ""
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Users) UpdateUser(_ context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[u.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, core.ErrNotFound)
	}
	for id, other := range r.byID {
		if id != u.ID && other.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.Permissions = u.Permissions
	existing.UpdatedAt = r.clk.tick()
	r.byID[u.ID] = existing
	u.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *Users) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *Users) summary(id string) *core.UserSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil
	}
	return &core.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// ----------------------------------------------------------------------------
// Audits
// ----------------------------------------------------------------------------

// Audits is an in-memory core.AuditRepository.
type Audits struct {
	mu       sync.Mutex
	clk      *clock
	entries  []core.AuditEntry
	archived []core.AuditEntry

	// Err, when set, fails every InsertAudit.
	Err error
}

func (r *Audits) InsertAudit(_ context.Context, e *core.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	e.ID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clk.tick()
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *Audits) ListAudit(_ context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.AuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
	}
	if filter.Offset >= len(out) {
		return []core.AuditEntry{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Audits) ArchiveAudit(_ context.Context, olderThan time.Time, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		keep []core.AuditEntry
		n    int64
	)
	for _, e := range r.entries {
		if e.CreatedAt.Before(olderThan) && (batchSize <= 0 || n < int64(batchSize)) {
			r.archived = append(r.archived, e)
			n++
			continue
		}
		keep = append(keep, e)
	}
	r.entries = keep
	return n, nil
}

func (r *Audits) PurgeArchivedAudit(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		keep []core.AuditEntry
		n    int64
	)
	for _, e := range r.archived {
		if e.CreatedAt.Before(olderThan) {
			n++
			continue
		}
		keep = append(keep, e)
	}
	r.archived = keep
	return n, nil
}

// Entries returns a copy of the live entries, oldest first.
func (r *Audits) Entries() []core.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.AuditEntry(nil), r.entries...)
}

// Archived returns a copy of the archived entries.
func (r *Audits) Archived() []core.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.AuditEntry(nil), r.archived...)
}

// Seed appends an entry with a caller chosen timestamp.
func (r *Audits) Seed(e core.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// ----------------------------------------------------------------------------
// Artifacts
// ----------------------------------------------------------------------------

// Artifacts is an in-memory core.ArtifactStore.
type Artifacts struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// RemoveErr, when set, fails every Remove.
	RemoveErr error
}

func NewArtifacts() *Artifacts {
	return &Artifacts{blobs: make(map[string][]byte)}
}

func (a *Artifacts) Save(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[name] = data
	return nil
}

func (a *Artifacts) Size(_ context.Context, name string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, ok := a.blobs[name]
	if !ok {
		return 0, notExist("size", name)
	}
	return int64(len(data)), nil
}

func (a *Artifacts) Open(_ context.Context, name string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, ok := a.blobs[name]
	if !ok {
		return nil, notExist("open", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *Artifacts) Remove(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.RemoveErr != nil {
		return a.RemoveErr
	}
	delete(a.blobs, name)
	return nil
}

// Has reports whether name is stored.
func (a *Artifacts) Has(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.blobs[name]
	return ok
}

// Len returns the number of stored artifacts.
func (a *Artifacts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blobs)
}

// Drop deletes name behind the service's back.
func (a *Artifacts) Drop(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blobs, name)
}

func notExist(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}

// ----------------------------------------------------------------------------
// Hasher
// ----------------------------------------------------------------------------

// PlainHasher is a reversible core.PasswordHasher for fast tests.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (PlainHasher) Compare(hash, password string) error {
	if !strings.HasPrefix(hash, "plain:") || hash[len("plain:"):] != password {
		return errors.New("password mismatch")
	}
	return nil
}
