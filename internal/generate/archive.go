package generate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoDocument is returned for names that are not stored documents.
var ErrNoDocument = errors.New("generate: document not found")

// Document is a generated file kept in the output directory.
type Document struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// Documents lists the stored documents, newest first. It is empty when no
// output directory is configured.
func (s *Service) Documents() ([]Document, error) {
	docs := []Document{}
	if s.opts.OutputDir == "" {
		return docs, nil
	}
	entries, err := os.ReadDir(s.opts.OutputDir)
	if errors.Is(err, os.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".docx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Document{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ModTime.After(docs[j].ModTime) })
	return docs, nil
}

// OpenDocument opens a stored document for reading.
func (s *Service) OpenDocument(name string) (*os.File, error) {
	path, err := s.documentPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDocument
	}
	return f, err
}

// DeleteDocument removes a stored document.
func (s *Service) DeleteDocument(name string) error {
	path, err := s.documentPath(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoDocument
	}
	if err == nil {
		s.log.Info("document deleted", "filename", name)
	}
	return err
}

// documentPath accepts only plain .docx names inside the output directory.
func (s *Service) documentPath(name string) (string, error) {
	if s.opts.OutputDir == "" || name == "" || name != filepath.Base(name) ||
		strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".docx") {
		return "", ErrNoDocument
	}
	return filepath.Join(s.opts.OutputDir, name), nil
}
