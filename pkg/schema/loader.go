// Package schema loads form definitions (descriptor lists plus endpoints)
// from JSON or YAML files and watches them for changes.
package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goliatone/go-scmform/pkg/model"
)

// Definition is one form: its descriptors and the endpoints the engine
// talks to.
type Definition struct {
	ID            string
	Entity        string
	FetchURL      string
	SaveURL       string
	UpdateURL     string
	SuccessTarget string
	Fields        []model.FieldDescriptor
	Source        string

	// Selector asks the host to render the school/class/division selector
	// alongside the fields.
	Selector bool
}

// Store holds the definitions loaded from one or more files.
type Store struct {
	forms map[string]Definition
}

// NewStore builds a store from in-memory definitions.
func NewStore(defs ...Definition) (*Store, error) {
	store := &Store{forms: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if err := store.add(def); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// LoadFS walks fsys and parses every JSON/YAML file. A nil fsys yields an
// empty store.
func LoadFS(fsys fs.FS) (*Store, error) {
	store := &Store{forms: make(map[string]Definition)}
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isSchemaFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("schema: read %s: %w", path, err)
		}
		return store.addDocument(SourceFromFS(path), data)
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// LoadFile parses a single definition file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	store := &Store{forms: make(map[string]Definition)}
	if err := store.addDocument(SourceFromFile(path), data); err != nil {
		return nil, err
	}
	return store, nil
}

// Definition returns the form registered under id.
func (s *Store) Definition(id string) (Definition, bool) {
	if s == nil {
		return Definition{}, false
	}
	def, ok := s.forms[strings.TrimSpace(id)]
	if !ok {
		return Definition{}, false
	}
	def.Fields = append([]model.FieldDescriptor(nil), def.Fields...)
	return def, true
}

// IDs returns the registered form ids in sorted order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.forms))
	for id := range s.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether the store holds any definitions.
func (s *Store) Empty() bool {
	return s == nil || len(s.forms) == 0
}

func (s *Store) addDocument(src Source, data []byte) error {
	doc, err := NewDocument(src, data)
	if err != nil {
		return err
	}
	defs, err := doc.Parse()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := s.add(def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) add(def Definition) error {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return fmt.Errorf("schema: definition without id")
	}
	if existing, exists := s.forms[id]; exists {
		return fmt.Errorf("schema: duplicate form %q (files %s, %s)", id, existing.Source, def.Source)
	}
	if err := model.ValidateDescriptors(def.Fields); err != nil {
		return fmt.Errorf("schema: form %q: %w", id, err)
	}
	s.forms[id] = def
	return nil
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
