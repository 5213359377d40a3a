// Package autosave keeps one editor draft per session and persists it after a
// quiet period, on window switch, or on teardown.
package autosave

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/starford/almanac/internal/memocodec"
	"github.com/starford/almanac/internal/models"
)

// CombinedID is the pseudo window id of the combined memo view.
const CombinedID = "combined"

const maxParallelSaves = 4

// Store persists memo bodies. SetBody with a blank text deletes the body.
type Store interface {
	GetBody(ctx context.Context, windowID string, year int) (string, error)
	SetBody(ctx context.Context, windowID string, year int, text string) error
}

// Directory lists the user's windows in display order.
type Directory interface {
	Windows(ctx context.Context) ([]models.Window, error)
}

// Reporter surfaces a human-readable failure message to the user.
type Reporter interface {
	Report(msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(msg string)

// Report calls f(msg).
func (f ReporterFunc) Report(msg string) { f(msg) }

// Flush persists text for windowID. For the combined view the text is decoded
// against the current window list and every window body is written, including
// empty ones so that cleared sections are deleted. Those writes are independent
// and run concurrently; all failures are joined into the returned error.
func Flush(ctx context.Context, store Store, dir Directory, year int, windowID, text string) error {
	if windowID != CombinedID {
		if err := store.SetBody(ctx, windowID, year, text); err != nil {
			return fmt.Errorf("autosave: save %s: %w", windowID, err)
		}
		return nil
	}

	windows, err := dir.Windows(ctx)
	if err != nil {
		return fmt.Errorf("autosave: list windows: %w", err)
	}
	windows = models.WithoutAll(windows)
	bodies := memocodec.Decode(text, windows)

	// Each save records its own failure and returns nil so one broken window
	// does not cancel the others; the group only bounds concurrency.
	errs := make([]error, len(windows))
	var g errgroup.Group
	g.SetLimit(maxParallelSaves)
	for i, w := range windows {
		g.Go(func() error {
			if err := store.SetBody(ctx, w.ID, year, bodies[w.ID]); err != nil {
				errs[i] = fmt.Errorf("autosave: save %q: %w", w.Title, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Load returns the editor text for windowID. For the combined view every
// window body is read and encoded into one document.
func Load(ctx context.Context, store Store, dir Directory, year int, windowID string) (string, error) {
	if windowID != CombinedID {
		body, err := store.GetBody(ctx, windowID, year)
		if err != nil {
			return "", fmt.Errorf("autosave: load %s: %w", windowID, err)
		}
		return body, nil
	}

	windows, err := dir.Windows(ctx)
	if err != nil {
		return "", fmt.Errorf("autosave: list windows: %w", err)
	}
	windows = models.WithoutAll(windows)

	bodies := make([]string, len(windows))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSaves)
	for i, w := range windows {
		g.Go(func() error {
			body, err := store.GetBody(gCtx, w.ID, year)
			if err != nil {
				return fmt.Errorf("autosave: load %q: %w", w.Title, err)
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	byID := make(map[string]string, len(windows))
	for i, w := range windows {
		byID[w.ID] = bodies[i]
	}
	return memocodec.Encode(windows, byID), nil
}
