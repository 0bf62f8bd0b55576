package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablestore/internal/logging"
	"github.com/JonMunkholm/tablestore/internal/tabular"
)

const defaultMimeType = "text/csv"

var mimeByExt = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

// Upload ingests one file for actor: the bytes are stored under a fresh
// name, a preview is parsed and column types are suggested, and the record
// is persisted. For streamed sources whose preview hit the cap, RowCount is
// corrected later by the reconciler.
//
// An unsupported extension is rejected before anything is read or written.
// A parse failure leaves the stored artifact in place and persists nothing.
func (s *Service) Upload(ctx context.Context, actor Actor, up Upload) (*File, error) {
	kind, ext, err := tabular.KindFromFilename(up.Filename, s.allowedExtensions)
	if err != nil {
		uploadsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	if up.Body == nil {
		return nil, Validation("no file provided")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		uploadsTotal.WithLabelValues(kind.String(), "throttled").Inc()
		return nil, err
	}
	defer s.limiter.Release()

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	start := time.Now()
	logger := logging.WithFields(ctx, "original_name", up.Filename, "kind", kind.String())

	f, err := s.ingest(ctx, actor, up, kind, uuid.NewString()+ext)
	if err != nil {
		uploadsTotal.WithLabelValues(kind.String(), "failed").Inc()
		logger.Warn("upload failed", "error", err)
		return nil, err
	}

	uploadsTotal.WithLabelValues(kind.String(), "accepted").Inc()
	uploadBytes.Observe(float64(f.FileSize))

	if kind.Streaming() {
		s.reconciler.Submit(ReconcileJob{FileID: f.ID, StoredName: f.StoredName})
	}

	s.audit(ctx, actor, ActionFileUpload, auditResourceFile, f.ID, map[string]any{
		"original_name": f.OriginalName,
		"file_size":     f.FileSize,
		"row_count":     f.RowCount,
		"columns":       len(f.Columns),
	})

	logger.Info("file uploaded",
		"file_id", f.ID,
		"stored_name", f.StoredName,
		"file_size", f.FileSize,
		"row_count", f.RowCount,
		"row_count_exact", f.RowCountExact,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return f, nil
}

func (s *Service) ingest(ctx context.Context, actor Actor, up Upload, kind tabular.Kind, storedName string) (*File, error) {
	if err := s.artifacts.Save(ctx, storedName, up.Body); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	size, err := s.artifacts.Size(ctx, storedName)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if size == 0 {
		s.removeArtifact(ctx, storedName)
		return nil, Validation("Uploaded file is empty")
	}

	src, err := s.artifacts.Open(ctx, storedName)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	preview, err := tabular.ReaderFor(kind).Read(ctx, src, s.previewRows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", up.Filename, err)
	}

	rows := preview.Rows
	if rows == nil {
		rows = [][]string{}
	}

	f := &File{
		ID:            uuid.NewString(),
		OriginalName:  up.Filename,
		StoredName:    storedName,
		FileSize:      size,
		MimeType:      mimeFor(up.MimeType, storedName),
		OwnerID:       actor.UserID,
		Columns:       SuggestColumns(preview.Headers, preview.Rows),
		RowCount:      preview.TotalRowsRead,
		RowCountExact: !kind.Streaming() || !preview.Truncated,
		PreviewData:   rows,
	}
	if err := s.files.CreateFile(ctx, f); err != nil {
		return nil, fmt.Errorf("persist file record: %w", err)
	}
	return f, nil
}

// mimeFor keeps the client's content type unless it is missing or generic.
func mimeFor(reported, storedName string) string {
	if reported != "" && reported != "application/octet-stream" {
		return reported
	}
	for ext, m := range mimeByExt {
		if len(storedName) > len(ext) && storedName[len(storedName)-len(ext):] == ext {
			return m
		}
	}
	return defaultMimeType
}

// removeArtifact deletes stored bytes, logging instead of failing.
func (s *Service) removeArtifact(ctx context.Context, storedName string) {
	if err := s.artifacts.Remove(ctx, storedName); err != nil {
		logging.FromContext(ctx).Warn("artifact removal failed",
			"stored_name", storedName,
			"error", err,
		)
	}
}
