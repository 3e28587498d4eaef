// Package source reads the table representations and candidate JSON that
// make up a refinement batch.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/followup"
)

// Format is the on-disk form of table representations.
type Format string

const (
	// TSV representations are HTML snippets or tab separated text.
	TSV Format = "TSV"
	// JSON representations are pre-parsed JSON tables.
	JSON Format = "JSON"
)

// ParseFormat validates a representation format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case TSV:
		return TSV, nil
	case JSON:
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown representation format %q (want TSV or JSON)", s)
	}
}

// ErrNotFound is returned when a key has no representation file.
var ErrNotFound = errors.New("representation not found")

var bom = []byte("\xef\xbb\xbf")

// textExtensions are tried in order for TSV representations.
var textExtensions = []string{".txt", ".html", ".tsv"}

// Dir reads candidates from one directory and representations from another.
// Documents are keyed by file stem.
type Dir struct {
	CandidateDir      string
	RepresentationDir string
	Format            Format
}

// NewDir creates a Dir after checking both directories exist.
func NewDir(candidateDir, representationDir string, format Format) (*Dir, error) {
	for _, d := range []string{candidateDir, representationDir} {
		info, err := os.Stat(d)
		if err != nil {
			return nil, fmt.Errorf("source directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("source directory: %s is not a directory", d)
		}
	}
	return &Dir{CandidateDir: candidateDir, RepresentationDir: representationDir, Format: format}, nil
}

// Keys lists the stems of the candidate JSON files in name order.
func (d *Dir) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.CandidateDir)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		keys = append(keys, KeyOf(e.Name()))
	}
	sort.Strings(keys)
	return keys, nil
}

// RepresentationKeys lists the stems of the representation files in name
// order. JSON representations are *.json files; TSV representations are
// any of the text extensions, counted once per stem.
func (d *Dir) RepresentationKeys() ([]string, error) {
	entries, err := os.ReadDir(d.RepresentationDir)
	if err != nil {
		return nil, fmt.Errorf("listing representations: %w", err)
	}

	exts := textExtensions
	if d.Format == JSON {
		exts = []string{".json"}
	}

	seen := map[string]bool{}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(exts, ext) {
			continue
		}
		key := KeyOf(e.Name())
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Load reads the document for key.
func (d *Dir) Load(key string) (followup.Document, error) {
	candidate, err := ReadJSON(filepath.Join(d.CandidateDir, key+".json"))
	if err != nil {
		return followup.Document{}, fmt.Errorf("candidate %s: %w", key, err)
	}

	rep, err := d.Representation(key)
	if err != nil {
		return followup.Document{}, err
	}

	return followup.Document{Key: key, Representation: rep, Candidate: candidate}, nil
}

// Representation reads the representation text for key. JSON
// representations are validated and re-encoded compactly.
func (d *Dir) Representation(key string) (string, error) {
	if d.Format == JSON {
		v, err := ReadJSON(filepath.Join(d.RepresentationDir, key+".json"))
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return "", fmt.Errorf("representation %s: %w", key, err)
		}
		return followup.EncodeJSON(v), nil
	}

	for _, ext := range textExtensions {
		data, err := ReadText(filepath.Join(d.RepresentationDir, key+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("representation %s: %w", key, err)
		}
		return data, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// ReadText reads a UTF-8 file, dropping a leading byte order mark.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, bom)), nil
}

// ReadJSON reads and decodes a JSON file, dropping a leading byte order
// mark.
func ReadJSON(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(bytes.TrimPrefix(data, bom), &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// KeyOf returns the document key of a file name: the base name without
// its extension. Dots inside the stem, as in DOI-style names, are kept.
func KeyOf(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
