// Package uploads keeps uploaded schedules on disk so later requests can
// refer to them by id instead of uploading the workbook again.
package uploads

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const indexFile = "index.json"

// ErrNotFound is returned for unknown or malformed ids.
var ErrNotFound = errors.New("uploads: schedule not found")

// Schedule describes one stored upload.
type Schedule struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StoredName is the file name under the registry directory.
func (s Schedule) StoredName() string {
	return s.ID + filepath.Ext(s.Filename)
}

// Registry is a thread-safe schedule store with TTL eviction. The index is
// rewritten on every change.
type Registry struct {
	mu    sync.Mutex
	dir   string
	ttl   time.Duration
	items map[string]*Schedule
	log   *slog.Logger
	now   func() time.Time
}

// Open loads the registry in dir, creating the directory when needed.
func Open(dir string, ttl time.Duration, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: mkdir: %w", err)
	}
	r := &Registry{
		dir:   dir,
		ttl:   ttl,
		items: make(map[string]*Schedule),
		log:   log,
		now:   time.Now,
	}
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("uploads: read index: %w", err)
	default:
		var list []*Schedule
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("uploads: parse index: %w", err)
		}
		for _, s := range list {
			r.items[s.ID] = s
		}
	}
	return r, nil
}

// Save stores data under a new id. Uploading the same content again returns
// the existing entry with a refreshed timestamp.
func (r *Registry) Save(filename string, data []byte) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := ContentHashHex(data)
	now := r.now()
	for _, s := range r.items {
		if s.ContentHash == hash {
			s.UpdatedAt = now
			r.log.Info("schedule already stored", "id", s.ID)
			return *s, r.persistLocked()
		}
	}

	s := &Schedule{
		ID:          uuid.New().String(),
		Filename:    filepath.Base(filename),
		Size:        int64(len(data)),
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := writeAtomic(filepath.Join(r.dir, s.StoredName()), data); err != nil {
		return Schedule{}, fmt.Errorf("uploads: write: %w", err)
	}
	r.items[s.ID] = s
	if err := r.persistLocked(); err != nil {
		return Schedule{}, err
	}
	r.log.Info("schedule stored", "id", s.ID, "filename", s.Filename, "size", s.Size)
	return *s, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Schedule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return Schedule{}, false
	}
	return *s, true
}

// List returns all entries, newest first.
func (r *Registry) List() []Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Schedule, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Open opens the stored file of id. The caller closes it.
func (r *Registry) Open(id string) (*os.File, Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, Schedule{}, ErrNotFound
	}
	s, ok := r.Get(id)
	if !ok {
		return nil, Schedule{}, ErrNotFound
	}
	f, err := os.Open(filepath.Join(r.dir, s.StoredName()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Schedule{}, ErrNotFound
	}
	if err != nil {
		return nil, Schedule{}, fmt.Errorf("uploads: open: %w", err)
	}
	return f, s, nil
}

// Cleanup removes entries not touched within the TTL and returns how many
// were evicted.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()
	removed := 0
	for id, s := range r.items {
		if now.Sub(s.UpdatedAt) <= r.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, s.StoredName())); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("evict schedule", "id", id, "error", err)
			continue
		}
		delete(r.items, id)
		removed++
	}
	if removed > 0 {
		if err := r.persistLocked(); err != nil {
			r.log.Error("persist index", "error", err)
		}
		r.log.Info("evicted schedules", "count", removed)
	}
	return removed
}

func (r *Registry) persistLocked() error {
	list := make([]*Schedule, 0, len(r.items))
	for _, s := range r.items {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("uploads: encode index: %w", err)
	}
	if err := writeAtomic(filepath.Join(r.dir, indexFile), data); err != nil {
		return fmt.Errorf("uploads: write index: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
