package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docfill/internal/personnel"
)

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := s.people.List(r.Context())
	if err != nil {
		s.requestLog(r).Error("list employees", "error", err)
		jsonError(w, "failed to list employees", http.StatusInternalServerError)
		return
	}
	// The instrument table XML is large and only used server-side.
	for i := range list {
		list[i].InstrumentTable = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": list})
}

func (s *Server) handleAddEmployee(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var e personnel.Employee
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		jsonError(w, "invalid employee: "+err.Error(), http.StatusBadRequest)
		return
	}
	e.ID = 0

	added, err := s.people.Add(r.Context(), e)
	if err != nil {
		if errors.Is(err, personnel.ErrInvalid) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.requestLog(r).Error("add employee", "error", err)
		jsonError(w, "failed to add employee", http.StatusInternalServerError)
		return
	}
	added.InstrumentTable = ""
	writeJSON(w, http.StatusCreated, added)
}

// handleGetEmployee returns one employee with the licenses recorded under
// its license number.
func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	e, err := s.people.Get(r.Context(), id)
	if err != nil {
		s.employeeError(w, r, "get employee", err)
		return
	}
	licenses, err := s.people.LicensesFor(r.Context(), e.LicenseNumber)
	if err != nil {
		s.employeeError(w, r, "get employee licenses", err)
		return
	}
	e.InstrumentTable = ""
	writeJSON(w, http.StatusOK, map[string]any{"employee": e, "licenses": licenses})
}

// handleUpdateEmployee applies the JSON body over the stored record, so
// fields left out keep their values.
func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	e, err := s.people.Get(r.Context(), id)
	if err != nil {
		s.employeeError(w, r, "get employee", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		jsonError(w, "invalid employee: "+err.Error(), http.StatusBadRequest)
		return
	}
	e.ID = id

	if err := s.people.Update(r.Context(), e); err != nil {
		s.employeeError(w, r, "update employee", err)
		return
	}
	updated, err := s.people.Get(r.Context(), id)
	if err != nil {
		s.employeeError(w, r, "get employee", err)
		return
	}
	updated.InstrumentTable = ""
	writeJSON(w, http.StatusOK, updated)
}

type licenseRequest struct {
	LicenseNumber string `json:"license_number"`
	License       string `json:"license"`
	EndDate       string `json:"license_end_date"` // YYYY-MM-DD
}

func (s *Server) handleAddLicense(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req licenseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid license: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(req.EndDate))
	if err != nil {
		jsonError(w, "license_end_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	added, err := s.people.AddLicense(r.Context(), personnel.License{
		LicenseNumber: req.LicenseNumber,
		License:       req.License,
		EndDate:       end,
	})
	if err != nil {
		s.employeeError(w, r, "add license", err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func employeeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid employee id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) employeeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, personnel.ErrNotFound):
		jsonError(w, "employee not found", http.StatusNotFound)
	case errors.Is(err, personnel.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		s.requestLog(r).Error(op, "error", err)
		jsonError(w, "failed to "+op, http.StatusInternalServerError)
	}
}

func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	if err := s.people.Delete(r.Context(), id); err != nil {
		if errors.Is(err, personnel.ErrNotFound) {
			jsonError(w, "employee not found", http.StatusNotFound)
			return
		}
		s.requestLog(r).Error("delete employee", "id", id, "error", err)
		jsonError(w, "failed to delete employee", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
