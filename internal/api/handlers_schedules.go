package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docfill/internal/sheet"
	"github.com/dgallion1/docfill/internal/uploads"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var scheduleExtensions = map[string]bool{".xlsx": true, ".xlsm": true}

// handleUploadSchedule stores a schedule and lists the report numbers under
// its key column, so a client can offer them for selection.
func (s *Server) handleUploadSchedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile(fieldSchedule)
	}
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if ext := strings.ToLower(filepath.Ext(filename)); !scheduleExtensions[ext] {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", ext), http.StatusBadRequest)
		return
	}

	data, err := readLimited(file, s.cfg.MaxUploadBytes)
	if err != nil {
		var tooLarge *tooLargeError
		if errors.As(err, &tooLarge) {
			jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	keyColumn := s.keyColumn(r.FormValue("profile"), r.FormValue("key_column"))
	tbl, err := sheet.Open(bytes.NewReader(data), s.cfg.ScheduleMaxRows)
	if err != nil {
		jsonError(w, "schedule is not a readable workbook", http.StatusUnprocessableEntity)
		return
	}
	keys, found := []string{}, false
	if keyColumn != "" {
		if k, ok := tbl.Keys(keyColumn); ok {
			keys, found = k, true
		}
	}

	sc, err := s.schedules.Save(filename, data)
	if err != nil {
		s.requestLog(r).Error("store schedule", "filename", filename, "error", err)
		jsonError(w, "failed to store schedule", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"schedule":     sc,
		"key_column":   keyColumn,
		"key_found":    found,
		"report_count": len(keys),
		"reports":      keys,
	})
}

// keyColumn picks the column listing report numbers: an explicit name, the
// named profile's key column, or the first profile that has one.
func (s *Server) keyColumn(profileName, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	profiles := s.service.Profiles()
	if p, ok := profiles.Get(profileName); ok {
		return p.KeyColumn
	}
	for _, p := range profiles.All() {
		if p.UsesSchedule() {
			return p.KeyColumn
		}
	}
	return ""
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.schedules.List()})
}

func (s *Server) handleDownloadSchedule(w http.ResponseWriter, r *http.Request) {
	f, sc, err := s.schedules.Open(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			jsonError(w, "schedule not found", http.StatusNotFound)
			return
		}
		s.requestLog(r).Error("open schedule", "error", err)
		jsonError(w, "failed to open schedule", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	writeAttachment(w, r, sc.Filename, xlsxContentType, sc.UpdatedAt, f)
}
