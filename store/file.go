package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/beatbox"
)

type (
	// Document is the file format: a list of sessions, each with its
	// players and their rules.
	Document struct {
		Sessions []SessionRecord `yaml:"sessions" json:"sessions"`
	}

	SessionRecord struct {
		beatbox.SessionConfig `yaml:",inline"`
		Players               []beatbox.Player `yaml:"players,omitempty" json:"players,omitempty"`
	}

	// File keeps a Document in memory as tables and writes it back to disk on
	// Flush. Files ending in .json are written as JSON, everything else as
	// YAML; either is accepted when reading.
	File struct {
		path     string
		flushMu  sync.Mutex
		mu       sync.Mutex
		sessions *Table[beatbox.SessionConfig]
		players  map[int64]*Table[beatbox.Player]
	}
)

// Open reads the document at path. A missing file is not an error; the
// document starts out empty and is created on the first Flush.
func Open(path string) (*File, error) {
	f := &File{path: path, sessions: NewSessionTable(), players: map[int64]*Table[beatbox.Player]{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file %v: %w", path, err)
	}
	doc, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse file %v: %w", path, err)
	}
	if err := f.Replace(doc); err != nil {
		return nil, fmt.Errorf("invalid document %v: %w", path, err)
	}
	return f, nil
}

// Decode parses a document from JSON or YAML.
func Decode(b []byte) (Document, error) {
	var doc Document
	if errJSON := json.Unmarshal(b, &doc); errJSON != nil {
		doc = Document{}
		if errYaml := yaml.Unmarshal(b, &doc); errYaml != nil {
			return Document{}, fmt.Errorf("the document could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	return doc, nil
}

// Replace validates doc and makes it the content of the file. Sessions and
// players without ids are given ids.
func (f *File) Replace(doc Document) error {
	sessions := NewSessionTable()
	players := map[int64]*Table[beatbox.Player]{}
	for i, s := range doc.Sessions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
		cfg, _ := sessions.Save(s.SessionConfig)
		t := NewPlayerTable()
		for j, p := range s.Players {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("session %d player %d: %w", i, j, err)
			}
			if _, err := t.Save(p); err != nil {
				return fmt.Errorf("session %d player %d: %w", i, j, err)
			}
		}
		players[cfg.ID] = t
	}
	f.mu.Lock()
	f.sessions, f.players = sessions, players
	f.mu.Unlock()
	return nil
}

// Document returns the current content of the file.
func (f *File) Document() Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc Document
	for _, cfg := range f.sessions.All() {
		rec := SessionRecord{SessionConfig: cfg}
		if t, ok := f.players[cfg.ID]; ok {
			rec.Players = t.All()
		}
		doc.Sessions = append(doc.Sessions, rec)
	}
	return doc
}

func (f *File) Path() string { return f.path }

func (f *File) Sessions() beatbox.Repository[beatbox.SessionConfig] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions.Repository()
}

// Players returns the player repository of a session, creating an empty one
// if the session has no players yet.
func (f *File) Players(sessionID int64) beatbox.Repository[beatbox.Player] {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.players[sessionID]
	if !ok {
		t = NewPlayerTable()
		f.players[sessionID] = t
	}
	return t.Repository()
}

// Flush writes the document to disk. The file is replaced atomically, so a
// crash during Flush leaves the previous version intact.
func (f *File) Flush() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	doc := f.Document()
	var contents []byte
	var err error
	if filepath.Ext(f.path) == ".json" {
		contents, err = json.MarshalIndent(doc, "", "  ")
	} else {
		contents, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("could not marshal the document: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not create directory %v: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write file %v: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write file %v: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("could not replace file %v: %w", f.path, err)
	}
	return nil
}
