package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docfill/internal/generate"
	"github.com/dgallion1/docfill/internal/inspect"
	"github.com/dgallion1/docfill/internal/uploads"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Multipart fields with a fixed meaning; every other field is a form value.
const (
	fieldKey        = "TO_number"
	fieldSchedule   = "graf_file"
	fieldScheduleID = "schedule_id"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := generate.Request{
		Profile:  chi.URLParam(r, "profile"),
		Form:     make(map[string]string, len(r.MultipartForm.Value)),
		KeyValue: strings.TrimSpace(r.FormValue(fieldKey)),
		Now:      time.Now(),
	}
	for k, v := range r.MultipartForm.Value {
		if k == fieldKey || k == fieldScheduleID || len(v) == 0 {
			continue
		}
		req.Form[k] = v[0]
	}

	schedule, scheduleID, err := s.scheduleFor(r)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			jsonError(w, "stored schedule not found", http.StatusNotFound)
			return
		}
		var tooLarge *tooLargeError
		if errors.As(err, &tooLarge) {
			jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if schedule != nil {
		req.Schedule = schedule
	}

	res, err := s.service.Generate(r.Context(), req)
	if err != nil {
		s.stats.failed.Add(1)
		ge := generate.AsError(err)
		if ge.Kind == generate.KindInternal {
			log.Error("generation failed", "profile", req.Profile, "error", err)
		} else {
			log.Info("generation rejected", "profile", req.Profile, "error", err)
		}
		jsonError(w, ge.Message, ge.Kind.Status())
		return
	}
	s.stats.generated.Add(1)
	s.stats.replaced.Add(int64(res.Stats.Replaced))
	s.stats.unknown.Add(int64(len(res.Stats.Unknown)))

	if scheduleID != "" {
		w.Header().Set("X-Schedule-Id", scheduleID)
	}
	w.Header().Set("X-Replaced", strconv.Itoa(res.Stats.Replaced))
	w.Header().Set("X-Unknown-Tokens", strings.Join(res.Stats.Unknown, " "))
	writeAttachment(w, r, res.Filename, docxContentType, time.Now(), bytes.NewReader(res.Data))
}

type tooLargeError struct{ limit int64 }

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("file exceeds max size (%d bytes)", e.limit)
}

// scheduleFor returns the schedule of the request: an uploaded graf_file,
// which is also stored for later requests, or a schedule_id of a stored one.
// Neither yields nil.
func (s *Server) scheduleFor(r *http.Request) (io.Reader, string, error) {
	if file, header, err := r.FormFile(fieldSchedule); err == nil {
		defer file.Close()
		data, err := readLimited(file, s.cfg.MaxUploadBytes)
		if err != nil {
			return nil, "", err
		}
		sc, err := s.schedules.Save(sanitizeFilename(header.Filename), data)
		if err != nil {
			s.requestLog(r).Warn("schedule not stored", "error", err)
			return bytes.NewReader(data), "", nil
		}
		return bytes.NewReader(data), sc.ID, nil
	} else if !errors.Is(err, http.ErrMissingFile) {
		return nil, "", fmt.Errorf("read %s: %w", fieldSchedule, err)
	}

	id := strings.TrimSpace(r.FormValue(fieldScheduleID))
	if id == "" {
		return nil, "", nil
	}
	f, sc, err := s.schedules.Open(id)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read stored schedule: %w", err)
	}
	return bytes.NewReader(data), sc.ID, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, &tooLargeError{limit: limit}
	}
	return data, nil
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.service.Profiles().Get(chi.URLParam(r, "profile"))
	if !ok {
		jsonError(w, "unknown profile", http.StatusNotFound)
		return
	}
	f, err := os.Open(p.Template)
	if err != nil {
		s.requestLog(r).Error("template unavailable", "profile", p.Name, "error", err)
		jsonError(w, "template unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonError(w, "template unavailable", http.StatusInternalServerError)
		return
	}
	writeAttachment(w, r, filepath.Base(p.Template), docxContentType, info.ModTime(), f)
}

func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	p, ok := s.service.Profiles().Get(chi.URLParam(r, "profile"))
	if !ok {
		jsonError(w, "unknown profile", http.StatusNotFound)
		return
	}
	f, err := os.Open(p.Template)
	if err != nil {
		jsonError(w, "template unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonError(w, "template unavailable", http.StatusInternalServerError)
		return
	}
	tokens, err := inspect.Placeholders(f, info.Size())
	if err != nil {
		s.requestLog(r).Warn("template not inspectable", "profile", p.Name, "error", err)
		jsonError(w, "template is not a readable document", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":      p.Name,
		"placeholders": tokens,
	})
}

// writeAttachment serves content as a download named filename. Non-ASCII
// names are sent in the RFC 2231 extended form.
func writeAttachment(w http.ResponseWriter, r *http.Request, filename, contentType string, modtime time.Time, content io.ReadSeeker) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	http.ServeContent(w, r, filename, modtime, content)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
