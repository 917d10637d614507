package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/shotdiff/horosafe"
)

const (
	expectedIDsFile = "currentExpectedIds.json"
	classResultFile = "result.json"
)

// Files persists to a directory tree rooted at Dir:
//
//	<Dir>/currentExpectedIds.json
//	<Dir>/<run>/<class>/result.json
//	<Dir>/<run>/<class>/<name>.json
//	<Dir>/<run>/<class>/<name>.png
//	<Dir>/<run>/<class>/<name>.diff.png
type Files struct {
	Dir string

	mu sync.Mutex // serialises expected-id rewrites
}

// NewFiles returns a Files persister, creating dir if needed.
func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	return &Files{Dir: dir}, nil
}

func (f *Files) path(m Metadata, ext string) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	name := classResultFile
	if !m.ClassLevel() {
		name = m.Name() + ext
	}
	return horosafe.SafePath(f.Dir, m.RunID, m.Class, name)
}

func imageExt(kind Kind) string {
	if kind == KindDiff {
		return ".diff.png"
	}
	return ".png"
}

func (f *Files) SaveImage(_ context.Context, m Metadata, kind Kind, img image.Image) error {
	p, err := f.path(m, imageExt(kind))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("persist: encode %s: %w", p, err)
	}
	return writeFile(p, buf.Bytes())
}

func (f *Files) LoadImage(_ context.Context, m Metadata, kind Kind) (image.Image, error) {
	p, err := f.path(m, imageExt(kind))
	if err != nil {
		return nil, err
	}
	data, err := readFile(p)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("persist: decode %s: %w", p, err)
	}
	return img, nil
}

func (f *Files) SaveResult(_ context.Context, m Metadata, v any) error {
	p, err := f.path(m, ".json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal result: %w", err)
	}
	return writeFile(p, data)
}

func (f *Files) LoadResult(_ context.Context, m Metadata, v any) error {
	p, err := f.path(m, ".json")
	if err != nil {
		return err
	}
	data, err := readFile(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("persist: decode %s: %w", p, err)
	}
	return nil
}

func (f *Files) SaveExpectedIDs(_ context.Context, ids ExpectedIDs) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal expected ids: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFile(filepath.Join(f.Dir, expectedIDsFile), data)
}

func (f *Files) LoadExpectedIDs(_ context.Context) (ExpectedIDs, error) {
	f.mu.Lock()
	data, err := readFile(filepath.Join(f.Dir, expectedIDsFile))
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ids := ExpectedIDs{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("persist: decode expected ids: %w", err)
	}
	return ids, nil
}

func (f *Files) Close() error { return nil }

// writeFile writes through a temp file and rename so readers never see a
// partial PNG or JSON document.
func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("persist: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: create %s: %w", p, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("persist: rename %s: %w", p, err)
	}
	return nil
}

func readFile(p string) ([]byte, error) {
	fh, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", p, err)
	}
	defer fh.Close()
	data, err := horosafe.LimitedReadAll(fh, horosafe.MaxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", p, err)
	}
	return data, nil
}
