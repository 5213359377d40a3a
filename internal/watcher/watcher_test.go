package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/storage"
)

type collector struct {
	mu      sync.Mutex
	memos   map[string]bool // window id -> deleted
	windows int
}

func (c *collector) MemoChanged(windowID string, _ int, deleted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memos[windowID] = deleted
}

func (c *collector) WindowsChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows++
}

func (c *collector) memo(id string) (deleted, seen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted, seen = c.memos[id]
	return deleted, seen
}

func startWatch(t *testing.T) (*storage.FS, *collector) {
	t.Helper()
	vault, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := &collector{memos: make(map[string]bool)}
	go Watch(ctx, vault.Root(), 20*time.Millisecond, logger, c) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)
	return vault, c
}

func TestWatch_MemoWrittenInNewYearDir(t *testing.T) {
	vault, c := startWatch(t)
	require.NoError(t, vault.PutMemo(context.Background(), models.Memo{WindowID: "w1", Year: 2025, Body: "x"}))

	require.Eventually(t, func() bool {
		deleted, seen := c.memo("w1")
		return seen && !deleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_MemoDeleted(t *testing.T) {
	vault, c := startWatch(t)
	ctx := context.Background()
	require.NoError(t, vault.PutMemo(ctx, models.Memo{WindowID: "w1", Year: 2025, Body: "x"}))
	require.Eventually(t, func() bool { _, seen := c.memo("w1"); return seen }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, vault.DeleteMemo(ctx, "w1", 2025))
	require.Eventually(t, func() bool {
		deleted, _ := c.memo("w1")
		return deleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_WindowsFile(t *testing.T) {
	vault, c := startWatch(t)
	require.NoError(t, vault.CreateWindow(context.Background(), models.Window{ID: "a", Title: "Work"}))

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.windows > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	vault, c := startWatch(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault.Root(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(vault.Root(), "memos", "2025"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vault.Root(), "memos", "2025", ".hidden.md"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.memos)
	assert.Zero(t, c.windows)
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant("windows.yaml"))
	assert.True(t, relevant(filepath.Join("memos", "2025", "abc.md")))
	assert.False(t, relevant(filepath.Join("memos", "2025", ".almanac-tmp-123")))
	assert.False(t, relevant("readme.md"))
}
