package web

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablestore/internal/core"
	"github.com/JonMunkholm/tablestore/internal/logging"
)

// fileListItem is a File without its preview, which listings never carry.
type fileListItem struct {
	*core.File
	PreviewData [][]string `json:"previewData,omitempty"`
}

func listItems(files []core.File) []fileListItem {
	items := make([]fileListItem, len(files))
	for i := range files {
		items[i] = fileListItem{File: &files[i]}
	}
	return items
}

type updateColumnsRequest struct {
	Columns []core.ColumnUpdate `json:"columns"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	files, err := s.service.ListFiles(r.Context(), actor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"files": listItems(files)})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	f, err := s.service.GetFile(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"file": f})
}

func (s *Server) handleUpdateColumns(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var in updateColumnsRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	f, err := s.service.UpdateColumns(r.Context(), actor, chi.URLParam(r, "id"), in.Columns)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"file": f})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DeleteFile(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDownload streams the original bytes under the original name.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	f, rc, err := s.service.OpenDownload(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition(f.OriginalName))
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Warn("download interrupted", "file_id", f.ID, "error", err)
	}
}
