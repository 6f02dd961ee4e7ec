package history

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demo(t *testing.T) (*models.Project, *models.ElementContent, *models.Pattern) {
	t.Helper()
	p := models.CreateProject("History")
	root, ok := p.Pages()[0].Root()
	require.True(t, ok)
	content, ok := root.ChildrenContent()
	require.True(t, ok)
	text, ok := p.BuiltinPattern(models.PatternText)
	require.True(t, ok)
	return p, content, text
}

func diskJSON(t *testing.T, p *models.Project) string {
	t.Helper()
	data, err := json.Marshal(p.ToDisk())
	require.NoError(t, err)
	return string(data)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	p, content, text := demo(t)
	h := New(p, nil, Options{})

	h.Commit()
	before := diskJSON(t, p)
	el := models.ElementFromPattern(text, p, models.RoleNode)
	require.NoError(t, content.Append(el))
	after := diskJSON(t, p)

	require.True(t, h.Undo())
	assert.JSONEq(t, before, diskJSON(t, p))
	assert.True(t, h.CanRedo())

	require.True(t, h.Redo())
	assert.JSONEq(t, after, diskJSON(t, p))
	got, ok := p.ElementByID(el.ID())
	require.True(t, ok)
	assert.NotSame(t, el, got, "redo re-creates entities removed by the undo")
}

func TestCommitAfterEachEdit(t *testing.T) {
	p, content, text := demo(t)
	h := New(p, nil, Options{})
	h.Commit()
	s0 := diskJSON(t, p)

	el := models.ElementFromPattern(text, p, models.RoleNode)
	require.NoError(t, content.Append(el))
	h.Commit()
	s1 := diskJSON(t, p)

	el.SetName("Renamed")
	h.Commit()

	require.True(t, h.Undo(), "skips the entry equal to the live state")
	assert.JSONEq(t, s1, diskJSON(t, p))
	assert.Same(t, el, mustElement(t, p, el.ID()), "surviving entities keep their instance")

	require.True(t, h.Undo())
	assert.JSONEq(t, s0, diskJSON(t, p))

	assert.False(t, h.Undo())

	require.True(t, h.Redo())
	assert.JSONEq(t, s1, diskJSON(t, p))
}

func TestUndoAfterBranchKeepsIntermediateState(t *testing.T) {
	p, content, text := demo(t)
	h := New(p, nil, Options{})
	h.Commit()
	s0 := diskJSON(t, p)

	el := models.ElementFromPattern(text, p, models.RoleNode)
	require.NoError(t, content.Append(el))
	h.Commit()
	s1 := diskJSON(t, p)
	elements := len(p.Elements())

	el.SetName("Second")
	h.Commit()

	require.True(t, h.Undo())
	assert.JSONEq(t, s1, diskJSON(t, p))

	mustElement(t, p, el.ID()).SetName("Third")
	h.Commit()
	undo, redo := h.Len()
	assert.Equal(t, 3, undo)
	assert.Zero(t, redo)

	require.True(t, h.Undo())
	assert.JSONEq(t, s1, diskJSON(t, p))
	assert.Len(t, p.Elements(), elements)
	assert.NotEqual(t, "Third", mustElement(t, p, el.ID()).Name())

	require.True(t, h.Undo())
	assert.JSONEq(t, s0, diskJSON(t, p))

	require.True(t, h.Redo())
	require.True(t, h.Redo())
	assert.Equal(t, "Third", mustElement(t, p, el.ID()).Name())
	assert.False(t, h.Redo())
}

func TestUndoKeepsUncommittedChangesRedoable(t *testing.T) {
	p, _, _ := demo(t)
	h := New(p, nil, Options{})
	p.SetName("a")
	h.Commit()
	p.SetName("b")
	h.Commit()
	p.SetName("pending")

	require.True(t, h.Undo())
	assert.Equal(t, "b", p.Name())
	require.True(t, h.Undo())
	assert.Equal(t, "a", p.Name())

	require.True(t, h.Redo())
	assert.Equal(t, "b", p.Name())
	require.True(t, h.Redo())
	assert.Equal(t, "pending", p.Name())
}

func mustElement(t *testing.T, p *models.Project, id string) *models.Element {
	t.Helper()
	el, ok := p.ElementByID(id)
	require.True(t, ok, id)
	return el
}

func TestEmptyStacksAreNoOps(t *testing.T) {
	p, _, _ := demo(t)
	h := New(p, nil, Options{})
	before := diskJSON(t, p)

	assert.False(t, h.Undo())
	assert.False(t, h.Redo())

	h.Commit()
	assert.False(t, h.Undo(), "only entry equals the live project")
	assert.JSONEq(t, before, diskJSON(t, p))
}

func TestCommitClearsRedo(t *testing.T) {
	p, content, text := demo(t)
	h := New(p, nil, Options{})
	h.Commit()
	require.NoError(t, content.Append(models.ElementFromPattern(text, p, models.RoleNode)))
	require.True(t, h.Undo())
	require.True(t, h.CanRedo())

	h.Commit()
	assert.False(t, h.CanRedo())
}

func TestCapacity(t *testing.T) {
	p, _, _ := demo(t)
	h := New(p, nil, Options{Capacity: 3})
	for i := 0; i < 5; i++ {
		p.SetName(string(rune('a' + i)))
		h.Commit()
	}
	undo, redo := h.Len()
	assert.Equal(t, 3, undo)
	assert.Zero(t, redo)

	require.True(t, h.Undo())
	require.True(t, h.Undo())
	assert.Equal(t, "c", p.Name())
	assert.False(t, h.Undo())
}

func TestStageReplacesTop(t *testing.T) {
	p, _, _ := demo(t)
	h := New(p, nil, Options{})
	p.SetName("start")
	h.Commit()
	for _, name := range []string{"d", "dr", "dra", "drag"} {
		p.SetName(name)
		h.Stage()
	}
	undo, _ := h.Len()
	assert.Equal(t, 1, undo)
}

func TestUndoRestoresSelection(t *testing.T) {
	p, content, text := demo(t)
	app := models.NewApp()
	h := New(p, app, Options{})

	a := models.ElementFromPattern(text, p, models.RoleNode)
	b := models.ElementFromPattern(text, p, models.RoleNode)
	require.NoError(t, content.Append(a))
	require.NoError(t, content.Append(b))
	p.SetSelectedElement(a)
	app.SetActiveView(models.ViewPageDetail)
	h.Commit()

	p.SetSelectedElement(b)
	app.SetActiveView(models.ViewLibraries)
	b.SetName("changed")

	require.True(t, h.Undo())
	selected, ok := p.SelectedElement()
	require.True(t, ok)
	assert.Same(t, a, selected)
	assert.False(t, b.Selected())
	assert.Equal(t, models.ViewPageDetail, app.ActiveView())
}

type recorder struct {
	mu    sync.Mutex
	saves [][]byte
	err   error
}

func (r *recorder) save(_ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, data)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func TestDebouncedSave(t *testing.T) {
	p, _, _ := demo(t)
	rec := &recorder{}
	h := New(p, nil, Options{Debounce: 20 * time.Millisecond, Save: rec.save})

	for _, name := range []string{"one", "two", "three"} {
		p.SetName(name)
		h.Commit()
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	saved, err := models.ProjectFromJSON(rec.saves[0])
	rec.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "three", saved.Name())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestFlush(t *testing.T) {
	p, _, _ := demo(t)
	rec := &recorder{err: errors.New("disk full")}
	h := New(p, nil, Options{Debounce: time.Hour, Save: rec.save})

	h.Commit()
	h.Flush()
	assert.Equal(t, 1, rec.count())
	h.Flush()
	assert.Equal(t, 1, rec.count())
}
