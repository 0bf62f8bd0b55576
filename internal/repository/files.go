package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tablestore/internal/core"
)

const fileColumns = `f.id, f.original_name, f.stored_name, f.file_size, f.mime_type, f.owner_id,
	f.columns, f.row_count, f.row_count_exact, f.created_at, f.updated_at, u.name, u.email`

// Files implements core.FileRepository.
type Files struct {
	db DBTX
}

func NewFiles(db DBTX) *Files {
	return &Files{db: db}
}

func (r *Files) CreateFile(ctx context.Context, f *core.File) error {
	preview := f.PreviewData
	if preview == nil {
		preview = [][]string{}
	}
	columns := f.Columns
	if columns == nil {
		columns = []core.Column{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO files (id, original_name, stored_name, file_size, mime_type, owner_id,
			columns, row_count, row_count_exact, preview_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		f.ID, f.OriginalName, f.StoredName, f.FileSize, f.MimeType, f.OwnerID,
		columns, f.RowCount, f.RowCountExact, preview,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("file %s: %w", f.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create file %s: %w", f.ID, err)
	}
	return nil
}

func (r *Files) GetFile(ctx context.Context, id string) (*core.File, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+fileColumns+`, f.preview_data
		FROM files f JOIN users u ON u.id = f.owner_id
		WHERE f.id = $1`, id)

	var preview [][]string
	f, err := scanFile(row, &preview)
	if err != nil {
		return nil, notFound(err, "file", id)
	}
	if preview == nil {
		preview = [][]string{}
	}
	f.PreviewData = preview
	return f, nil
}

func (r *Files) ListFiles(ctx context.Context, filter core.FileFilter) ([]core.File, error) {
	var w whereBuilder
	if filter.OwnerID != "" {
		w.add("f.owner_id = $%d", filter.OwnerID)
	}
	return r.list(ctx, `
		SELECT `+fileColumns+`
		FROM files f JOIN users u ON u.id = f.owner_id`+w.clause()+`
		ORDER BY f.created_at DESC`, w.args...)
}

func (r *Files) ListInexactFiles(ctx context.Context, olderThan time.Time, limit int) ([]core.File, error) {
	return r.list(ctx, `
		SELECT `+fileColumns+`
		FROM files f JOIN users u ON u.id = f.owner_id
		WHERE NOT f.row_count_exact AND f.created_at < $1
		ORDER BY f.created_at
		LIMIT $2`, olderThan, limit)
}

func (r *Files) UpdateFileColumns(ctx context.Context, id string, columns []core.Column) (*core.File, error) {
	tag, err := r.db.Exec(ctx, `UPDATE files SET columns = $2, updated_at = now() WHERE id = $1`, id, columns)
	if err != nil {
		return nil, fmt.Errorf("update columns of file %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	return r.GetFile(ctx, id)
}

func (r *Files) UpdateRowCount(ctx context.Context, id string, rowCount int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE files SET row_count = $2, row_count_exact = TRUE, updated_at = now()
		WHERE id = $1`, id, rowCount)
	if err != nil {
		return fmt.Errorf("update row count of file %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *Files) DeleteFile(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *Files) DeleteFilesByOwner(ctx context.Context, ownerID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete files of %s: %w", ownerID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *Files) list(ctx context.Context, query string, args ...any) ([]core.File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []core.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// scanFile reads fileColumns followed by any extra destinations.
func scanFile(row pgx.Row, extra ...any) (*core.File, error) {
	var (
		f     core.File
		owner core.UserSummary
	)
	dest := []any{
		&f.ID, &f.OriginalName, &f.StoredName, &f.FileSize, &f.MimeType, &f.OwnerID,
		&f.Columns, &f.RowCount, &f.RowCountExact, &f.CreatedAt, &f.UpdatedAt,
		&owner.Name, &owner.Email,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	owner.ID = f.OwnerID
	f.Owner = &owner
	return &f, nil
}
