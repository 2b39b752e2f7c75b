// Package staging keeps the intermediate record sets of each category on disk
// between pipeline steps.
package staging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Stage names one step of the pipeline.
type Stage string

const (
	Listing  Stage = "listing"
	Detailed Stage = "detailed"
	Stripped Stage = "stripped"
)

// ErrNotStaged is returned by Load when the stage was never written.
var ErrNotStaged = errors.New("stage not found")

// Store reads and writes stage files under Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store { return &Store{Dir: dir} }

// Path is {Dir}/{category}-{stage}.json.
func (s *Store) Path(category int, stage Stage) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d-%s.json", category, stage))
}

// Save writes records as an indented JSON array, replacing any earlier file.
func (s *Store) Save(category int, stage Stage, records []map[string]any) (string, error) {
	if records == nil {
		records = []map[string]any{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s stage for category %d: %w", stage, category, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	path := s.Path(category, stage)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// Load reads a stage file. Numbers come back as json.Number so they keep
// their original text.
func (s *Store) Load(category int, stage Stage) ([]map[string]any, error) {
	path := s.Path(category, stage)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotStaged)
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
