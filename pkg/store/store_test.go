package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/models"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "patternkit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, Record{ID: "a", Name: "Alpha", Path: "/p/a.patternkit", UpdatedAt: base}))
	require.NoError(t, s.Put(ctx, Record{ID: "b", Name: "Beta", Draft: true, UpdatedAt: base.Add(time.Hour)}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Record{ID: "a", Name: "Alpha", Path: "/p/a.patternkit", UpdatedAt: base}, got)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")
	assert.True(t, list[0].Draft)

	require.NoError(t, s.Put(ctx, Record{ID: "a", Name: "Alpha 2", UpdatedAt: base.Add(2 * time.Hour)}))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha 2", got.Name)
	assert.Empty(t, got.Path)

	byPath, err := s.FindByPath(ctx, "/p/a.patternkit")
	assert.ErrorIs(t, err, constants.ErrNotFound)
	assert.Empty(t, byPath.ID)
}

func TestPutDefaultsTimestamp(t *testing.T) {
	s := newStore(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Put(context.Background(), Record{ID: "x"}))
	got, err := s.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, fixed, got.UpdatedAt)

	assert.Error(t, s.Put(context.Background(), Record{}))
}

func TestSnapshots(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := models.CreateProject("Landing")
	p.SetPath("/home/me/landing.patternkit")
	disk, err := json.Marshal(p.ToDisk())
	require.NoError(t, err)

	_, err = s.LoadSnapshot(ctx, p.ID())
	assert.ErrorIs(t, err, constants.ErrNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, p.ID(), disk))
	loaded, err := s.LoadSnapshot(ctx, p.ID())
	require.NoError(t, err)
	assert.JSONEq(t, string(disk), string(loaded))

	restored, err := models.ProjectFromJSON(loaded)
	require.NoError(t, err)
	assert.Equal(t, p.ID(), restored.ID())

	r, err := s.FindByPath(ctx, "/home/me/landing.patternkit")
	require.NoError(t, err)
	assert.Equal(t, p.ID(), r.ID)
	assert.Equal(t, "Landing", r.Name)
	assert.True(t, r.Draft)

	require.NoError(t, s.Delete(ctx, p.ID()))
	_, err = s.LoadSnapshot(ctx, p.ID())
	assert.ErrorIs(t, err, constants.ErrNotFound, "snapshot goes with its record")
	assert.ErrorIs(t, s.Delete(ctx, p.ID()), constants.ErrNotFound)
}

func TestMemoryDatabase(t *testing.T) {
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveSnapshot(context.Background(), "m", []byte(`{"name":"Mem"}`)))
	r, err := s.Get(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, "Mem", r.Name)
}

func TestOpenFailure(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := Open(filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorContains(t, err, "boom")
}
