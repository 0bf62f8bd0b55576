package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/JonMunkholm/tablestore/internal/config"
	"github.com/JonMunkholm/tablestore/internal/core"
	"github.com/JonMunkholm/tablestore/internal/database"
)

// newTestPool starts a disposable PostgreSQL container with the schema
// applied. Set TEST_INTEGRATION=1 to run these tests.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("set TEST_INTEGRATION=1 to run database tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tablestore"),
		postgres.WithUsername("tablestore"),
		postgres.WithPassword("tablestore"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := database.Migrate(url); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := database.Connect(ctx, config.DatabaseConfig{
		URL:             url,
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func newUser(email string) *core.User {
	return &core.User{ID: uuid.NewString(), Email: email, Name: email, PasswordHash: "hash"}
}

func TestRepositories(t *testing.T) {
	pool := newTestPool(t)
	store := New(pool)
	ctx := context.Background()

	t.Run("first user bootstrap is atomic", func(t *testing.T) {
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			admins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := newUser(uuid.NewString() + "@example.com")
				err := store.Users.CreateUser(ctx, u, func(first *core.User) {
					first.Permissions = core.AllPermissions
				})
				if err != nil {
					t.Errorf("CreateUser: %v", err)
					return
				}
				if u.Permissions == core.AllPermissions {
					mu.Lock()
					admins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		if admins != 1 {
			t.Fatalf("bootstrap admins = %d, want 1", admins)
		}
	})

	owner := newUser("owner@example.com")
	if err := store.Users.CreateUser(ctx, owner, nil); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	t.Run("duplicate email conflicts", func(t *testing.T) {
		err := store.Users.CreateUser(ctx, newUser("owner@example.com"), nil)
		if !errors.Is(err, core.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("user round trip", func(t *testing.T) {
		owner.Permissions = core.NewPermissionSet(core.PermViewAll, core.PermEditAll)
		if err := store.Users.UpdateUser(ctx, owner); err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}
		got, err := store.Users.GetUserByEmail(ctx, "owner@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail: %v", err)
		}
		if got.ID != owner.ID || got.Permissions != owner.Permissions {
			t.Errorf("got %+v", got)
		}
		if got.PasswordHash != "hash" {
			t.Errorf("GetUserByEmail PasswordHash = %q, want hash", got.PasswordHash)
		}

		byID, err := store.Users.GetUser(ctx, owner.ID)
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if byID.Email != owner.Email || byID.PasswordHash != "" {
			t.Errorf("GetUser = %+v, want no password hash", byID)
		}
		all, err := store.Users.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers: %v", err)
		}
		for _, u := range all {
			if u.PasswordHash != "" {
				t.Errorf("ListUsers returned password hash for %s", u.Email)
			}
		}
		if _, err := store.Users.GetUser(ctx, uuid.NewString()); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("missing user err = %v", err)
		}
	})

	file := &core.File{
		ID:           uuid.NewString(),
		OriginalName: "sales.csv",
		StoredName:   uuid.NewString() + ".csv",
		FileSize:     42,
		MimeType:     "text/csv",
		OwnerID:      owner.ID,
		Columns: []core.Column{
			{Name: "amount", SuggestedType: core.ColumnNumber, AssignedType: core.ColumnNumber},
		},
		RowCount:      100,
		RowCountExact: false,
		PreviewData:   [][]string{{"1"}, {"2"}},
	}

	t.Run("file lifecycle", func(t *testing.T) {
		if err := store.Files.CreateFile(ctx, file); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}

		got, err := store.Files.GetFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("GetFile: %v", err)
		}
		if len(got.PreviewData) != 2 || got.Owner == nil || got.Owner.Email != owner.Email {
			t.Errorf("got %+v", got)
		}

		listed, err := store.Files.ListFiles(ctx, core.FileFilter{OwnerID: owner.ID})
		if err != nil {
			t.Fatalf("ListFiles: %v", err)
		}
		if len(listed) != 1 || listed[0].PreviewData != nil {
			t.Errorf("listed %+v", listed)
		}

		inexact, err := store.Files.ListInexactFiles(ctx, time.Now().Add(time.Minute), 10)
		if err != nil {
			t.Fatalf("ListInexactFiles: %v", err)
		}
		if len(inexact) != 1 {
			t.Fatalf("inexact = %d, want 1", len(inexact))
		}

		if err := store.Files.UpdateRowCount(ctx, file.ID, 250); err != nil {
			t.Fatalf("UpdateRowCount: %v", err)
		}
		cols := []core.Column{{Name: "amount", SuggestedType: core.ColumnNumber, AssignedType: core.ColumnText}}
		updated, err := store.Files.UpdateFileColumns(ctx, file.ID, cols)
		if err != nil {
			t.Fatalf("UpdateFileColumns: %v", err)
		}
		if updated.RowCount != 250 || !updated.RowCountExact || updated.Columns[0].AssignedType != core.ColumnText {
			t.Errorf("updated %+v", updated)
		}
		if len(updated.PreviewData) != 2 {
			t.Error("preview changed by update")
		}
	})

	t.Run("owner cascade", func(t *testing.T) {
		n, err := store.Files.DeleteFilesByOwner(ctx, owner.ID)
		if err != nil || n != 1 {
			t.Fatalf("DeleteFilesByOwner = %d, %v", n, err)
		}
		if err := store.Users.DeleteUser(ctx, owner.ID); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if err := store.Files.DeleteFile(ctx, file.ID); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("DeleteFile err = %v, want ErrNotFound", err)
		}
	})

	t.Run("audit archive", func(t *testing.T) {
		e := &core.AuditEntry{
			Action:       core.ActionFileUpload,
			Severity:     core.SeverityLow,
			ActorID:      owner.ID,
			ResourceType: "file",
			ResourceID:   file.ID,
			Detail:       map[string]any{"row_count": 3},
		}
		if err := store.Audits.InsertAudit(ctx, e); err != nil {
			t.Fatalf("InsertAudit: %v", err)
		}

		entries, err := store.Audits.ListAudit(ctx, core.AuditFilter{ResourceID: file.ID, Limit: 10})
		if err != nil {
			t.Fatalf("ListAudit: %v", err)
		}
		if len(entries) != 1 || entries[0].Detail["row_count"] != float64(3) {
			t.Fatalf("entries = %+v", entries)
		}

		moved, err := store.Audits.ArchiveAudit(ctx, time.Now().Add(time.Minute), 100)
		if err != nil || moved != 1 {
			t.Fatalf("ArchiveAudit = %d, %v", moved, err)
		}
		purged, err := store.Audits.PurgeArchivedAudit(ctx, time.Now().Add(time.Minute))
		if err != nil || purged != 1 {
			t.Fatalf("PurgeArchivedAudit = %d, %v", purged, err)
		}
	})
}

func TestWhereBuilder(t *testing.T) {
	var w whereBuilder
	if w.clause() != "" {
		t.Fatalf("empty clause = %q", w.clause())
	}
	w.add("a = $%d", 1)
	w.add("b >= $%d", "x")
	limit := w.next(10)

	if got, want := w.clause(), " WHERE a = $1 AND b >= $2"; got != want {
		t.Errorf("clause = %q, want %q", got, want)
	}
	if limit != "$3" || len(w.args) != 3 {
		t.Errorf("next = %s, args = %v", limit, w.args)
	}
}
