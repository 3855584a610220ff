// Package refdata owns the helpdesk reference data: categories, courses, offices and the
// category to office mapping. Everything lives in one YAML document that is rewritten on each
// change and can be reloaded when edited by hand.
package refdata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Office struct {
	ID           string   `yaml:"id" json:"id"`
	OfficeName   string   `yaml:"office_name" json:"office_name"`
	BuildingName string   `yaml:"building_name" json:"building_name"`
	FloorRoom    string   `yaml:"floor_room" json:"floor_room"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords     []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// MappingEntry routes one category to an office.
type MappingEntry struct {
	Category   string `yaml:"category" json:"category"`
	OfficeID   string `yaml:"office_id" json:"office_id"`
	OfficeName string `yaml:"office_name" json:"office_name"`
}

// Document is the on-disk layout.
type Document struct {
	Categories []string       `yaml:"categories"`
	Courses    []string       `yaml:"courses"`
	Offices    []Office       `yaml:"offices"`
	Mapping    []MappingEntry `yaml:"mapping"`
}

// Store is safe for concurrent use. A zero path keeps everything in memory.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  Document
	// onChange is called after every successful reload or mutation.
	onChange func()
}

// Open loads path if it exists; a missing file starts an empty document.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

// NewMemory returns a store seeded with doc that never touches disk.
func NewMemory(doc Document) *Store {
	return &Store{doc: cloneDoc(doc)}
}

func readDocument(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read refdata: %w", err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse refdata %s: %w", path, err)
	}
	return doc, nil
}

// OnChange registers a callback fired after reloads and writes.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Path returns the backing file, "" for memory stores.
func (s *Store) Path() string { return s.path }

// Reload re-reads the backing file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	doc, err := readDocument(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = doc
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDoc(s.doc)
}

// mutate applies fn to a copy of the document and persists it. The in-memory state only
// changes when the write succeeds.
func (s *Store) mutate(fn func(d *Document) error) error {
	s.mu.Lock()
	next := cloneDoc(s.doc)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = next
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (s *Store) persist(doc Document) error {
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create refdata dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".refdata-*.yaml")
	if err != nil {
		return fmt.Errorf("write refdata: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write refdata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write refdata: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func cloneDoc(d Document) Document {
	out := Document{
		Categories: append([]string(nil), d.Categories...),
		Courses:    append([]string(nil), d.Courses...),
		Mapping:    append([]MappingEntry(nil), d.Mapping...),
	}
	out.Offices = make([]Office, len(d.Offices))
	for i, o := range d.Offices {
		o.Keywords = append([]string(nil), o.Keywords...)
		out.Offices[i] = o
	}
	return out
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives an office id from its display name.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"), "-")
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}

func nameErr(kind, name string, err error) error {
	return fmt.Errorf("%s %q: %w", kind, name, err)
}
