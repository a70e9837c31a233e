package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Kbis.PNG")
	writeFile(t, path, "png-bytes")

	ing := NewFSIngestor(quietLogger())
	res, err := ing.IngestPath(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Kbis.PNG", res.Name)
	assert.Equal(t, "png", res.FileExt)
	assert.Equal(t, []byte("png-bytes"), res.Data)
	assert.EqualValues(t, 9, res.Size)
	assert.Len(t, res.HashHex, 64)
	assert.False(t, res.Deduplicated)

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, ErrUnsupportedExt)

	writeFile(t, filepath.Join(dir, "scan.pdf"), "%PDF")
	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "scan.pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedExt)
}

func TestIngestPathTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jpg")
	writeFile(t, path, "0123456789")

	ing := NewFSIngestor(quietLogger())
	ing.MaxBytes = 4
	_, err := ing.IngestPath(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), "same")
	writeFile(t, filepath.Join(root, "sub", "b.jpeg"), "other")
	writeFile(t, filepath.Join(root, "sub", "copy.webp"), "same")
	writeFile(t, filepath.Join(root, "readme.md"), "skip me")
	writeFile(t, filepath.Join(root, ".cache", "hidden.png"), "hidden")
	writeFile(t, filepath.Join(root, ".dot.png"), "hidden file")

	ing := NewFSIngestor(quietLogger())
	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.Name)
		assert.Empty(t, r.Err)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.png", "b.jpeg", "copy.webp"}, names)
	assert.EqualValues(t, 3, stats.Matched)
	assert.EqualValues(t, 3, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.EqualValues(t, 0, stats.Failed)
	assert.Greater(t, stats.Scanned, stats.Matched)

	// hidden entries are included when not skipped
	_, stats, err = NewFSIngestor(quietLogger()).IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Matched)
}

func TestIngestDirectoryRequiresRoot(t *testing.T) {
	_, _, err := NewFSIngestor(nil).IngestDirectory(context.Background(), "  ", true)
	assert.Error(t, err)
}

func TestIngestDirectoryCustomExts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), "a")
	writeFile(t, filepath.Join(root, "b.tif"), "b")

	ing := NewFSIngestor(quietLogger())
	ing.AllowedExts = map[string]struct{}{"tif": {}}
	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.tif", results[0].Name)
	assert.EqualValues(t, 1, stats.Matched)
}

func TestHelpers(t *testing.T) {
	assert.True(t, AllowedExt(".JPG"))
	assert.True(t, AllowedExt("tiff"))
	assert.False(t, AllowedExt("pdf"))
	assert.True(t, IsHidden("/x/.git"))
	assert.False(t, IsHidden("/x/kbis.png"))
	assert.False(t, IsHidden("."))
}

func TestWatcherEmitsInitialAndNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.png"), "x")
	writeFile(t, filepath.Join(root, "ignored.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		SkipHidden:  true,
		Debounce:    20 * time.Millisecond,
	}, quietLogger())
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.png"), next())

	created := filepath.Join(root, "new.jpg")
	writeFile(t, created, "y")
	assert.Equal(t, created, next())

	cancel()
	for range events {
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
