// Package watcher turns file changes in a vault directory into memo and
// window change notifications. It is the realtime source for the file
// driver, where other processes (editors, sync tools) may touch the files.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/almanac/internal/storage"
)

// DefaultDebounce is how long paths settle before notifications go out.
const DefaultDebounce = 150 * time.Millisecond

// Notifier receives change notifications.
type Notifier interface {
	MemoChanged(windowID string, year int, deleted bool)
	WindowsChanged()
}

// Watch watches the vault root until ctx is cancelled. Changes are collected
// per path and delivered once the path has been quiet for debounce; whether a
// memo was deleted is decided by a stat at delivery time, which also covers
// rename pairs and atomic replace.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger, n Notifier) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var (
		flushTimer *time.Timer
		flushCh    <-chan time.Time
	)
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
			return
		}
		if !flushTimer.Stop() {
			select {
			case <-flushTimer.C:
			default:
			}
		}
		flushTimer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			deliver(root, pending, logger, n)
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					for _, rel := range memoFilesUnder(root, ev.Name) {
						schedule(rel)
					}
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || !relevant(rel) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func relevant(rel string) bool {
	if filepath.ToSlash(rel) == storage.WindowsFile {
		return true
	}
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return false
	}
	_, _, ok := storage.ParseMemoPath(rel)
	return ok
}

func deliver(root string, pending map[string]struct{}, logger *slog.Logger, n Notifier) {
	for rel := range pending {
		if filepath.ToSlash(rel) == storage.WindowsFile {
			logger.Debug("watcher: windows changed")
			n.WindowsChanged()
			continue
		}
		id, year, ok := storage.ParseMemoPath(rel)
		if !ok {
			continue
		}
		_, err := os.Stat(filepath.Join(root, rel))
		deleted := errors.Is(err, os.ErrNotExist)
		logger.Debug("watcher: memo changed",
			slog.String("window", id),
			slog.Int("year", year),
			slog.Bool("deleted", deleted))
		n.MemoChanged(id, year, deleted)
	}
}

// memoFilesUnder lists memo files already present in a newly created directory.
func memoFilesUnder(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil && relevant(rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
