package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/models"
)

func TestLocalReadWrite(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ok, err := l.Exists(ctx, "sites/landing.patternkit")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.WriteFile(ctx, "sites/landing.patternkit", []byte(`{"name":"Landing"}`)))
	ok, err = l.Exists(ctx, "sites/landing.patternkit")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := l.ReadFile(ctx, filepath.Join(l.Root, "sites", "landing.patternkit"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Landing"}`, string(data))

	entries, err := os.ReadDir(filepath.Join(l.Root, "sites"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	require.NoError(t, l.Remove(ctx, "sites/landing.patternkit"))
	_, err = l.ReadFile(ctx, "sites/landing.patternkit")
	assert.ErrorIs(t, err, constants.ErrNotFound)
	assert.ErrorIs(t, l.Remove(ctx, "sites/landing.patternkit"), constants.ErrNotFound)
}

func TestLocalStaysInRoot(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.ReadFile(ctx, "../secret")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	assert.ErrorIs(t, l.WriteFile(ctx, "/etc/passwd", nil), ErrOutsideRoot)
}

func TestLocalHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, l.WriteFile(ctx, "x", nil), context.Canceled)
}

func writeAnalysis(t *testing.T, path, version string) {
	t.Helper()
	a := models.LibraryAnalysis{
		Name:        "Acme",
		Version:     version,
		PackageName: "@acme/components",
		Patterns: []models.AnalyzedPattern{
			{ContextID: "Button", Name: "Button", Properties: []models.AnalyzedProperty{
				{ContextID: "label", Label: "Label", PropertyName: "label", Type: models.PropertyString},
			}},
		},
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func next(t *testing.T, w *LibraryWatcher) LibraryEvent {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no library event")
		return LibraryEvent{}
	}
}

func TestLibraryWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.json")
	writeAnalysis(t, path, "1.0.0")

	w, err := NewLibraryWatcher(WatcherConfig{Files: []string{path}, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	ev := next(t, w)
	require.NoError(t, ev.Err)
	assert.Equal(t, "1.0.0", ev.Analysis.Version)
	assert.Equal(t, ev.Hash, ev.Analysis.BundleHash)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte(`{}`), 0o644))
	writeAnalysis(t, path, "1.1.0")
	ev = next(t, w)
	require.NoError(t, ev.Err)
	assert.Equal(t, "1.1.0", ev.Analysis.Version)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	ev = next(t, w)
	assert.Error(t, ev.Err)
}

func TestLibraryWatcherStop(t *testing.T) {
	w, err := NewLibraryWatcher(WatcherConfig{Files: []string{filepath.Join(t.TempDir(), "a.json")}})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
