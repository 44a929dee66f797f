// Package profile describes the template variants the service can fill: which
// template to open, which form fields and schedule columns feed which tokens,
// and whether the personnel lookup runs.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format says how a schedule cell is turned into token text.
type Format string

const (
	FormatText         Format = "text"
	FormatDate         Format = "date"          // 02.01.2006
	FormatYear         Format = "year"          // 2006
	FormatDecimalComma Format = "decimal_comma" // 10,5
)

// Column binds a schedule column, by header text or zero-based index, to a
// token name.
type Column struct {
	Header string `yaml:"header"`
	Index  *int   `yaml:"index"`
	Token  string `yaml:"token"`
	Format Format `yaml:"format"`
}

func (c Column) String() string {
	if c.Header != "" {
		return fmt.Sprintf("%q", c.Header)
	}
	if c.Index != nil {
		return fmt.Sprintf("#%d", *c.Index)
	}
	return "<unset>"
}

// Personnel enables the leader and worker lookup. The leader's surname is
// read from LeaderColumn of the schedule row.
type Personnel struct {
	Enabled      bool   `yaml:"enabled"`
	LeaderColumn Column `yaml:"leader_column"`
}

// Profile is one template variant.
type Profile struct {
	Name      string              `yaml:"name"`
	Title     string              `yaml:"title"`
	Template  string              `yaml:"template"`
	Output    string              `yaml:"output"`
	KeyColumn string              `yaml:"key_column"`
	KeyTokens []string            `yaml:"key_tokens"`
	Form      map[string][]string `yaml:"form"`
	Columns   []Column            `yaml:"columns"`
	Personnel Personnel           `yaml:"personnel"`

	// InstrumentTable is the index of the top-level table replaced by the
	// leader's instrument table. Negative disables the replacement.
	InstrumentTable *int `yaml:"instrument_table"`
}

// UsesSchedule reports whether a request needs an uploaded schedule.
func (p *Profile) UsesSchedule() bool {
	return p.KeyColumn != ""
}

// InstrumentTableIndex returns the table index to replace, or -1.
func (p *Profile) InstrumentTableIndex() int {
	if p.InstrumentTable == nil {
		return -1
	}
	return *p.InstrumentTable
}

const defaultOutput = "{profile}_{timestamp}"

func (p *Profile) applyDefaults(baseDir string) {
	if p.Title == "" {
		p.Title = p.Name
	}
	if p.Output == "" {
		p.Output = defaultOutput
	}
	if p.Template != "" && !filepath.IsAbs(p.Template) {
		p.Template = filepath.Join(baseDir, p.Template)
	}
	for i := range p.Columns {
		if p.Columns[i].Format == "" {
			p.Columns[i].Format = FormatText
		}
	}
}

func (p *Profile) validate() error {
	if p.Template == "" {
		return fmt.Errorf("template is required")
	}
	for field, tokens := range p.Form {
		if strings.TrimSpace(field) == "" || len(tokens) == 0 {
			return fmt.Errorf("form field %q must name at least one token", field)
		}
	}
	for i, c := range p.Columns {
		if err := c.validate(); err != nil {
			return fmt.Errorf("column[%d]: %w", i, err)
		}
	}
	if (len(p.Columns) > 0 || p.Personnel.Enabled) && p.KeyColumn == "" {
		return fmt.Errorf("key_column is required when columns or personnel are used")
	}
	if p.Personnel.Enabled && p.Personnel.LeaderColumn.Header == "" && p.Personnel.LeaderColumn.Index == nil {
		return fmt.Errorf("personnel.leader_column needs a header or an index")
	}
	return nil
}

func (c Column) validate() error {
	if c.Header == "" && c.Index == nil {
		return fmt.Errorf("header or index is required")
	}
	if c.Index != nil && *c.Index < 0 {
		return fmt.Errorf("index must be >= 0")
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("token is required")
	}
	switch c.Format {
	case FormatText, FormatDate, FormatYear, FormatDecimalComma:
	default:
		return fmt.Errorf("unsupported format %q (use text, date, year or decimal_comma)", c.Format)
	}
	return nil
}

// Set is the loaded profiles file.
type Set struct {
	profiles []*Profile
	byName   map[string]*Profile
}

type file struct {
	Profiles []*Profile `yaml:"profiles"`
}

// Load reads and validates a profiles file. Relative template paths are
// resolved against the file's directory.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	set, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("profiles %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes profiles from YAML.
func Parse(data []byte, baseDir string) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles defined")
	}
	set := &Set{byName: make(map[string]*Profile, len(f.Profiles))}
	for i, p := range f.Profiles {
		if p == nil || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("profile[%d]: name is required", i)
		}
		if _, dup := set.byName[p.Name]; dup {
			return nil, fmt.Errorf("profile %q defined twice", p.Name)
		}
		p.applyDefaults(baseDir)
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		set.byName[p.Name] = p
		set.profiles = append(set.profiles, p)
	}
	return set, nil
}

// Get returns the named profile.
func (s *Set) Get(name string) (*Profile, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// All returns the profiles in file order.
func (s *Set) All() []*Profile {
	return s.profiles
}
