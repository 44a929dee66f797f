package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docfill/internal/config"
	"github.com/dgallion1/docfill/internal/generate"
	"github.com/dgallion1/docfill/internal/personnel"
	"github.com/dgallion1/docfill/internal/uploads"
)

// Personnel is the part of the personnel store the API exposes.
type Personnel interface {
	List(ctx context.Context) ([]personnel.Employee, error)
	Get(ctx context.Context, id int64) (personnel.Employee, error)
	Add(ctx context.Context, e personnel.Employee) (personnel.Employee, error)
	Update(ctx context.Context, e personnel.Employee) error
	Delete(ctx context.Context, id int64) error
	AddLicense(ctx context.Context, l personnel.License) (personnel.License, error)
	LicensesFor(ctx context.Context, number string) ([]personnel.License, error)
}

// Server is the HTTP API server for docfill.
type Server struct {
	router    chi.Router
	service   *generate.Service
	schedules *uploads.Registry
	people    Personnel
	log       *slog.Logger
	cfg       config.Config
	home      []byte
	stats     stats
}

type stats struct {
	generated atomic.Int64
	failed    atomic.Int64
	replaced  atomic.Int64
	unknown   atomic.Int64
}

// NewServer creates and configures the HTTP server. people may be nil, which
// disables the employee endpoints.
func NewServer(svc *generate.Service, schedules *uploads.Registry, people Personnel, log *slog.Logger, cfg config.Config) (*Server, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		service:   svc,
		schedules: schedules,
		people:    people,
		log:       log,
		cfg:       cfg,
	}
	home, err := renderHome(svc.Profiles())
	if err != nil {
		return nil, err
	}
	s.home = home
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)

	r.Post("/generate/{profile}", s.handleGenerate)

	r.Get("/templates/{profile}", s.handleTemplate)
	r.Get("/templates/{profile}/placeholders", s.handlePlaceholders)

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", s.handleUploadSchedule)
		r.Get("/", s.handleListSchedules)
		r.Get("/{id}", s.handleDownloadSchedule)
	})

	r.Get("/documents", s.handleListDocuments)
	r.Get("/documents/{name}", s.handleDownloadDocument)
	r.With(AuthMiddleware(s.cfg.AdminAPIKey, s.log)).Delete("/documents/{name}", s.handleDeleteDocument)

	if s.people != nil {
		r.Get("/api/employees", s.handleListEmployees)
		r.Get("/api/employees/{id}", s.handleGetEmployee)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.cfg.AdminAPIKey, s.log))
			r.Post("/api/employees", s.handleAddEmployee)
			r.Put("/api/employees/{id}", s.handleUpdateEmployee)
			r.Delete("/api/employees/{id}", s.handleDeleteEmployee)
			r.Post("/api/licenses", s.handleAddLicense)
		})
	}

	s.router = r
}
