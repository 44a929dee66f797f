// Package generate turns a request (profile, form fields, schedule row,
// personnel) into a filled-in document.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dgallion1/docfill/internal/engine"
	"github.com/dgallion1/docfill/internal/ooxml"
	"github.com/dgallion1/docfill/internal/personnel"
	"github.com/dgallion1/docfill/internal/profile"
	"github.com/dgallion1/docfill/internal/sheet"
)

// Directory looks up the people named on a report.
type Directory interface {
	FindBySurname(ctx context.Context, surname string) (personnel.Employee, bool, error)
	FindTeammate(ctx context.Context, team int, excludeID int64) (personnel.Employee, bool, error)
}

// Request is one generation request.
type Request struct {
	Profile  string
	Form     map[string]string
	Schedule io.Reader // required when the profile has a key column
	KeyValue string
	Now      time.Time // zero means time.Now()
}

// Result is a generated document.
type Result struct {
	Filename string
	Data     []byte
	Stats    engine.Result
}

// Options configures a Service.
type Options struct {
	OutputDir       string // generated documents are also written here when set
	ScheduleMaxRows int
}

// Service runs generation requests. It is safe for concurrent use: every
// request opens its own copy of the template.
type Service struct {
	profiles *profile.Set
	people   Directory
	engine   *engine.Engine
	opts     Options
	log      *slog.Logger
}

// NewService creates a service. people may be nil when no profile enables
// personnel lookup.
func NewService(profiles *profile.Set, people Directory, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		profiles: profiles,
		people:   people,
		engine:   engine.New(log),
		opts:     opts,
		log:      log,
	}
}

// Profiles returns the loaded profile set.
func (s *Service) Profiles() *profile.Set {
	return s.profiles
}

// Generate fills the profile's template. Every failure is an *Error; no
// partial document is returned or written.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	p, ok := s.profiles.Get(req.Profile)
	if !ok {
		return nil, notFound("profile", req.Profile, "unknown profile")
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	log := s.log.With("profile", p.Name, "key", req.KeyValue)

	in := Inputs{Profile: p, Form: req.Form, KeyValue: req.KeyValue, Now: req.Now}

	if p.UsesSchedule() {
		row, err := s.findRow(p, req)
		if err != nil {
			return nil, err
		}
		in.Row = &row
	}

	if p.Personnel.Enabled {
		if s.people == nil {
			return nil, &Error{Kind: KindInternal, Message: "personnel store not configured"}
		}
		surname := cellValue(*in.Row, p.Personnel.LeaderColumn)
		leader, worker, err := s.findTeam(ctx, surname)
		if err != nil {
			return nil, err
		}
		in.Leader, in.Worker = &leader, &worker
		log.Info("team resolved", "leader_id", leader.ID, "worker_id", worker.ID)
	}

	m, err := BuildMapping(in)
	if err != nil {
		return nil, &Error{Kind: KindFormat, Message: "schedule value cannot be formatted", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "request cancelled", Err: err}
	}

	pkg, err := ooxml.OpenFile(p.Template)
	if err != nil {
		return nil, templateError(err)
	}
	doc := pkg.Document()

	if idx := p.InstrumentTableIndex(); idx >= 0 && in.Leader != nil && in.Leader.InstrumentTable != "" {
		t, err := ooxml.ParseTable(in.Leader.InstrumentTable)
		if err != nil {
			return nil, &Error{Kind: KindFormat, Message: "stored instrument table is not valid WordprocessingML", Err: err}
		}
		if err := s.engine.ReplaceTable(doc, idx, t); err != nil && !errors.Is(err, engine.ErrTableIndexOutOfRange) {
			return nil, &Error{Kind: KindInternal, Message: "replace instrument table", Err: err}
		}
	}

	stats := s.engine.ProcessDocument(doc, m)
	data, err := pkg.Bytes()
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "serialize document", Err: err}
	}

	res := &Result{
		Filename: OutputName(p.Output, p.Name, req.Form, m),
		Data:     data,
		Stats:    stats,
	}
	if err := s.store(res); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "store document", Err: err}
	}
	log.Info("document generated",
		"filename", res.Filename,
		"replaced", stats.Replaced,
		"unknown", len(stats.Unknown),
		"malformed", stats.Malformed,
	)
	return res, nil
}

func (s *Service) findRow(p *profile.Profile, req Request) (sheet.Row, error) {
	if req.Schedule == nil {
		return sheet.Row{}, badRequest("a schedule file is required")
	}
	if req.KeyValue == "" {
		return sheet.Row{}, badRequest("a report number is required")
	}
	tbl, err := sheet.Open(req.Schedule, s.opts.ScheduleMaxRows)
	if err != nil {
		return sheet.Row{}, &Error{Kind: KindFormat, Message: "schedule is not a readable workbook", Err: err}
	}
	row, ok := tbl.FindRow(p.KeyColumn, req.KeyValue)
	if !ok {
		return sheet.Row{}, notFound("report", req.KeyValue, "report number not found in schedule")
	}
	return row, nil
}

func (s *Service) findTeam(ctx context.Context, surname string) (leader, worker personnel.Employee, err error) {
	leader, ok, err := s.people.FindBySurname(ctx, surname)
	if err != nil {
		return leader, worker, &Error{Kind: KindInternal, Message: "personnel lookup", Err: err}
	}
	if !ok {
		return leader, worker, notFound("leader", surname, "team leader not found")
	}
	worker, ok, err = s.people.FindTeammate(ctx, leader.TeamNumber, leader.ID)
	if err != nil {
		return leader, worker, &Error{Kind: KindInternal, Message: "personnel lookup", Err: err}
	}
	if !ok {
		return leader, worker, notFound("worker", strconv.Itoa(leader.TeamNumber), "no second team member")
	}
	return leader, worker, nil
}

func templateError(err error) *Error {
	var fe *ooxml.FormatError
	if errors.As(err, &fe) {
		return &Error{Kind: KindFormat, Message: "template is not a readable document", Err: err}
	}
	return &Error{Kind: KindInternal, Message: "template cannot be opened", Err: err}
}

func (s *Service) store(res *Result) error {
	if s.opts.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.opts.OutputDir, res.Filename)
	// Concurrent requests may produce the same file name.
	tmp, err := os.CreateTemp(s.opts.OutputDir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(res.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
