package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records handled paths.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) handle(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	return nil
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *collector) waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range c.seen() {
			if p == path {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("handler never saw %s", path)
}

func TestStart_RequiresExistingDirectory(t *testing.T) {
	w := New("/non/existent/path", func(context.Context, string) error { return nil })
	defer w.Close()

	err := w.Start(context.Background())
	assert.Error(t, err)
}

func TestWatch_IngestsDroppedFile(t *testing.T) {
	tempDir := t.TempDir()
	c := &collector{}

	w := New(tempDir, c.handle, WithSettle(20*time.Millisecond))
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	target := filepath.Join(tempDir, "dropped.txt")
	require.NoError(t, os.WriteFile(target, []byte("lecture notes content"), 0644))

	c.waitFor(t, target)
}

func TestWatch_SkipsHiddenFiles(t *testing.T) {
	tempDir := t.TempDir()
	c := &collector{}

	w := New(tempDir, c.handle, WithSettle(20*time.Millisecond))
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	hidden := filepath.Join(tempDir, ".partial-upload")
	visible := filepath.Join(tempDir, "visible.txt")
	require.NoError(t, os.WriteFile(hidden, []byte("ignore me"), 0644))
	require.NoError(t, os.WriteFile(visible, []byte("pick me up"), 0644))

	c.waitFor(t, visible)
	assert.NotContains(t, c.seen(), hidden)
}

func TestWatch_DebouncesRepeatedWrites(t *testing.T) {
	tempDir := t.TempDir()
	c := &collector{}

	w := New(tempDir, c.handle, WithSettle(100*time.Millisecond))
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// A slow copy: several writes inside the settle window.
	target := filepath.Join(tempDir, "slow-copy.txt")
	f, err := os.Create(target)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("more content arriving\n")
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	c.waitFor(t, target)

	// The file settled once, so it was ingested once.
	time.Sleep(200 * time.Millisecond)
	count := 0
	for _, p := range c.seen() {
		if p == target {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestClose_IsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	w := New(tempDir, func(context.Context, string) error { return nil })

	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestStart_AfterCloseFails(t *testing.T) {
	tempDir := t.TempDir()
	w := New(tempDir, func(context.Context, string) error { return nil })
	require.NoError(t, w.Close())

	err := w.Start(context.Background())
	assert.Error(t, err)
}
