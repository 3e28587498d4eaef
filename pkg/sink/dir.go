package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Dir writes artifacts under a root directory:
// json/<key>.json, log/<key>.csv and token/<key>.csv.
type Dir struct {
	Root string
}

// NewDir creates the output layout under root.
func NewDir(root string) (*Dir, error) {
	for _, sub := range []string{JSONDir, LogDir, TokenDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	return &Dir{Root: root}, nil
}

func (d *Dir) Write(_ context.Context, a Artifacts) error {
	for _, f := range []struct {
		path string
		data []byte
	}{
		{d.DocumentPath(a.Key), a.Document},
		{filepath.Join(d.Root, LogDir, a.Key+".csv"), a.QA},
		{filepath.Join(d.Root, TokenDir, a.Key+".csv"), a.Tokens},
	} {
		if err := writeFile(f.path, f.data); err != nil {
			return err
		}
	}
	return nil
}

// DocumentPath returns the path of a key's refined JSON.
func (d *Dir) DocumentPath(key string) string {
	return filepath.Join(d.Root, JSONDir, key+".json")
}

// writeFile writes through a temp file so readers never see a partial
// artifact.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
