package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablestore/internal/logging"
)

// ListFiles returns the files visible to actor, newest first, without
// preview data.
func (s *Service) ListFiles(ctx context.Context, actor Actor) ([]File, error) {
	files, err := s.files.ListFiles(ctx, s.policy.FileListScope(actor))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if files == nil {
		files = []File{}
	}
	return files, nil
}

// GetFile returns one file including its preview.
func (s *Service) GetFile(ctx context.Context, actor Actor, id string) (*File, error) {
	f, err := s.loadFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeFile(actor, f, FileView); err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateColumns replaces the assigned types of a file's columns. The update
// is positional and must name every stored column in order; suggested
// types, names and the column count never change.
func (s *Service) UpdateColumns(ctx context.Context, actor Actor, id string, updates []ColumnUpdate) (*File, error) {
	f, err := s.loadFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeFile(actor, f, FileEdit); err != nil {
		return nil, err
	}

	if len(updates) != len(f.Columns) {
		return nil, Validation(fmt.Sprintf("expected %d columns, got %d", len(f.Columns), len(updates)))
	}

	cols := make([]Column, len(f.Columns))
	copy(cols, f.Columns)
	changed := make(map[string]any)
	for i, u := range updates {
		if u.Name != cols[i].Name {
			return nil, Validation(fmt.Sprintf("column %d: expected %q, got %q", i, cols[i].Name, u.Name))
		}
		t, err := ParseColumnType(u.AssignedType)
		if err != nil {
			return nil, err
		}
		if cols[i].AssignedType != t {
			changed[cols[i].Name] = map[string]any{"from": cols[i].AssignedType, "to": t}
		}
		cols[i].AssignedType = t
	}

	updated, err := s.files.UpdateFileColumns(ctx, id, cols)
	if err != nil {
		return nil, translate(err, "File")
	}

	s.audit(ctx, actor, ActionFileColumnsUpdate, auditResourceFile, id, map[string]any{"changed": changed})
	return updated, nil
}

// DeleteFile removes the record and, best effort, its stored bytes.
func (s *Service) DeleteFile(ctx context.Context, actor Actor, id string) error {
	f, err := s.loadFile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.AuthorizeFile(actor, f, FileDelete); err != nil {
		return err
	}

	s.removeArtifact(ctx, f.StoredName)
	if err := s.files.DeleteFile(ctx, id); err != nil {
		return translate(err, "File")
	}

	s.audit(ctx, actor, ActionFileDelete, auditResourceFile, id, map[string]any{
		"original_name": f.OriginalName,
		"owner_id":      f.OwnerID,
	})
	logging.FromContext(ctx).Info("file deleted", "file_id", id, "stored_name", f.StoredName)
	return nil
}

// OpenDownload authorizes a view of the file and opens its stored bytes.
// The caller must close the reader.
func (s *Service) OpenDownload(ctx context.Context, actor Actor, id string) (*File, io.ReadCloser, error) {
	f, err := s.GetFile(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.artifacts.Open(ctx, f.StoredName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &Error{Kind: KindNotFound, Message: "File on disk not found", Err: err}
		}
		return nil, nil, fmt.Errorf("open %s: %w", f.StoredName, err)
	}
	return f, rc, nil
}

// loadFile fetches a record; malformed ids are reported as missing.
func (s *Service) loadFile(ctx context.Context, id string) (*File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NotFound("File")
	}
	f, err := s.files.GetFile(ctx, id)
	if err != nil {
		return nil, translate(err, "File")
	}
	return f, nil
}
