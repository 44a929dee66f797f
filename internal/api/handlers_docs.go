package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docfill/internal/generate"
)

// handleListDocuments lists the generated documents kept in OUTPUT_DIR.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.Documents()
	if err != nil {
		s.requestLog(r).Error("list documents", "error", err)
		jsonError(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	name := documentName(r)
	f, err := s.service.OpenDocument(name)
	if err != nil {
		s.documentError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.documentError(w, r, err)
		return
	}
	writeAttachment(w, r, name, docxContentType, info.ModTime(), f)
}

// handleDeleteDocument removes a generated document.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(documentName(r)); err != nil {
		s.documentError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// documentName decodes the {name} parameter, which chi leaves escaped when
// the request path has escapes.
func documentName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if v, err := url.PathUnescape(name); err == nil {
		return v
	}
	return name
}

func (s *Server) documentError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, generate.ErrNoDocument) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	s.requestLog(r).Error("document access", "error", err)
	jsonError(w, "failed to access document", http.StatusInternalServerError)
}
