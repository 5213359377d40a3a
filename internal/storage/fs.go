package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
)

const (
	// WindowsFile is the vault file holding the window list.
	WindowsFile = "windows.yaml"
	// MemosDir is the vault directory holding memo bodies as memos/<year>/<window-id>.md.
	MemosDir = "memos"
)

// FS implements Backend on top of a vault directory:
//
//	<root>/windows.yaml
//	<root>/memos/<year>/<window-id>.md
type FS struct {
	root string // absolute path to vault directory

	mu sync.Mutex // serialises windows.yaml read-modify-write
}

var _ Backend = (*FS)(nil)

type windowsDoc struct {
	Windows []models.Window `yaml:"windows"`
}

// NewFS creates a new FS backend rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault path.
func (f *FS) Root() string { return f.root }

// Close is a no-op.
func (f *FS) Close() error { return nil }

// MemoPath returns the vault-relative path of a memo file.
func MemoPath(windowID string, year int) string {
	return filepath.Join(MemosDir, strconv.Itoa(year), windowID+".md")
}

// ParseMemoPath is the inverse of MemoPath.
func ParseMemoPath(rel string) (windowID string, year int, ok bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[0] != MemosDir || !strings.HasSuffix(parts[2], ".md") {
		return "", 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSuffix(parts[2], ".md"), year, true
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// ListWindows reads windows.yaml. A missing file means no windows.
func (f *FS) ListWindows(_ context.Context) ([]models.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readWindows()
	if err != nil {
		return nil, err
	}
	return doc.Windows, nil
}

// CreateWindow appends a window to windows.yaml.
func (f *FS) CreateWindow(_ context.Context, w models.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readWindows()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(doc.Windows, func(x models.Window) bool { return x.ID == w.ID }) {
		return apperr.ErrAlreadyExists
	}
	doc.Windows = append(doc.Windows, w)
	return f.writeWindows(doc)
}

// UpdateWindow replaces the stored window with the same id.
func (f *FS) UpdateWindow(_ context.Context, w models.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readWindows()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(doc.Windows, func(x models.Window) bool { return x.ID == w.ID })
	if i < 0 {
		return apperr.ErrNotFound
	}
	w.CreatedAt = doc.Windows[i].CreatedAt
	doc.Windows[i] = w
	return f.writeWindows(doc)
}

// DeleteWindow drops the window from windows.yaml and removes its memo files.
func (f *FS) DeleteWindow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readWindows()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(doc.Windows, func(x models.Window) bool { return x.ID == id })
	if i < 0 {
		return apperr.ErrNotFound
	}
	doc.Windows = slices.Delete(doc.Windows, i, i+1)
	if err := f.writeWindows(doc); err != nil {
		return err
	}

	years, err := os.ReadDir(filepath.Join(f.root, MemosDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: list memo years: %w", err)
	}
	for _, y := range years {
		year, convErr := strconv.Atoi(y.Name())
		if !y.IsDir() || convErr != nil {
			continue
		}
		if err := f.remove(MemoPath(id, year)); err != nil {
			return err
		}
	}
	return nil
}

// GetMemo reads memos/<year>/<window>.md.
func (f *FS) GetMemo(_ context.Context, windowID string, year int) (models.Memo, error) {
	abs, err := f.safePath(MemoPath(windowID, year))
	if err != nil {
		return models.Memo{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Memo{}, apperr.ErrNotFound
		}
		return models.Memo{}, fmt.Errorf("storage: read memo: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.Memo{}, fmt.Errorf("storage: stat memo: %w", err)
	}
	return models.Memo{WindowID: windowID, Year: year, Body: string(data), UpdatedAt: info.ModTime()}, nil
}

// PutMemo atomically writes the memo body.
func (f *FS) PutMemo(_ context.Context, m models.Memo) error {
	return f.write(MemoPath(m.WindowID, m.Year), []byte(m.Body))
}

// DeleteMemo removes the memo file if present.
func (f *FS) DeleteMemo(_ context.Context, windowID string, year int) error {
	return f.remove(MemoPath(windowID, year))
}

// ListMemos returns every stored memo of a year.
func (f *FS) ListMemos(ctx context.Context, year int) ([]models.Memo, error) {
	dir, err := f.safePath(filepath.Join(MemosDir, strconv.Itoa(year)))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list memos: %w", err)
	}
	var out []models.Memo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		m, err := f.GetMemo(ctx, strings.TrimSuffix(e.Name(), ".md"), year)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *FS) readWindows() (windowsDoc, error) {
	var doc windowsDoc
	data, err := os.ReadFile(filepath.Join(f.root, WindowsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("storage: read windows: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("storage: parse windows: %w", err)
	}
	slices.SortStableFunc(doc.Windows, func(a, b models.Window) int { return a.Position - b.Position })
	return doc, nil
}

func (f *FS) writeWindows(doc windowsDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: encode windows: %w", err)
	}
	return f.write(WindowsFile, data)
}

// write atomically writes content: tmp file → fsync → rename.
func (f *FS) write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".almanac-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func (f *FS) remove(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}
