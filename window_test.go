package patternkit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/patternkit/patternkit"
	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/testlog"
	"github.com/patternkit/patternkit/pkg/connection/memory"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/hub"
	"github.com/patternkit/patternkit/pkg/models"
	"github.com/patternkit/patternkit/pkg/store"
)

type WindowTestSuite struct {
	suite.Suite

	store *store.SQLiteStore
	hub   *hub.Hub
	log   *testlog.Handler
	ctx   context.Context
}

func TestWindowTestSuite(t *testing.T) {
	suite.Run(t, new(WindowTestSuite))
}

func (s *WindowTestSuite) SetupTest() {
	st, err := store.Open(store.MemoryPath)
	s.Require().NoError(err)
	s.store = st
	l, handler := testlog.New(testlog.WithIgnoreDebug())
	s.log = handler
	s.hub = hub.New(st, hub.Options{ID: "hub", SaveDebounce: 10 * time.Millisecond, Logger: l})
	s.ctx = context.Background()
	// Registered first so it runs after every peer was cleaned up.
	s.T().Cleanup(func() {
		s.hub.Close()
		st.Close()
	})
}

// connect attaches an in-memory peer to the hub.
func (s *WindowTestSuite) connect() *memory.Connection {
	client, server := memory.Pipe(codec.JSON{}, nil)
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.hub.Serve(ctx, client.PeerID(), server)
	}()
	s.T().Cleanup(func() {
		cancel()
		client.Close(context.Background())
		<-done
	})
	return client
}

func (s *WindowTestSuite) window(open func(*memory.Connection) (*patternkit.Window, error)) *patternkit.Window {
	w, err := open(s.connect())
	s.Require().NoError(err)
	s.T().Cleanup(func() { w.Close(context.Background()) })
	return w
}

func (s *WindowTestSuite) pair(opts patternkit.Options) (a, b *patternkit.Window) {
	a = s.window(func(c *memory.Connection) (*patternkit.Window, error) {
		return patternkit.Create(s.ctx, c, "Site", opts)
	})
	b = s.window(func(c *memory.Connection) (*patternkit.Window, error) {
		return patternkit.Open(s.ctx, c, a.ProjectID(), opts)
	})
	return a, b
}

func (s *WindowTestSuite) name(w *patternkit.Window) string {
	var name string
	s.Require().NoError(w.Do(s.ctx, func(p *models.Project, _ *models.App) { name = p.Name() }))
	return name
}

func (s *WindowTestSuite) activePage(w *patternkit.Window) *models.Page {
	var page *models.Page
	s.Require().NoError(w.Do(s.ctx, func(p *models.Project, _ *models.App) {
		page, _ = p.ActivePage()
	}))
	s.Require().NotNil(page)
	return page
}

func (s *WindowTestSuite) pageName(w *patternkit.Window, id string) string {
	var name string
	s.Require().NoError(w.Do(s.ctx, func(p *models.Project, _ *models.App) {
		if pg, ok := p.PageByID(id); ok {
			name = pg.Name()
		}
	}))
	return name
}

func (s *WindowTestSuite) eventuallyNamed(w *patternkit.Window, want string) {
	s.Eventually(func() bool { return s.name(w) == want }, 2*time.Second, 10*time.Millisecond)
}

func (s *WindowTestSuite) rename(w *patternkit.Window, name string) {
	s.Require().NoError(w.Edit(s.ctx, func(p *models.Project, _ *models.App) error {
		p.SetName(name)
		return nil
	}))
}

func (s *WindowTestSuite) TestCreateAndOpen() {
	a, b := s.pair(patternkit.Options{})
	s.Equal(a.ProjectID(), b.ProjectID())
	s.Equal("Site", s.name(b))

	app, ok := s.hub.App(s.appID(b))
	s.Require().True(ok)
	s.Equal(b.ProjectID(), app.ProjectID())
	s.Equal(models.ViewPageDetail, app.ActiveView())
}

func (s *WindowTestSuite) appID(w *patternkit.Window) string {
	var id string
	s.Require().NoError(w.Do(s.ctx, func(_ *models.Project, app *models.App) { id = app.ID() }))
	return id
}

func (s *WindowTestSuite) TestOpenMissingProject() {
	_, err := patternkit.Open(s.ctx, s.connect(), "missing", patternkit.Options{})
	s.ErrorIs(err, constants.ErrAborted)
}

func (s *WindowTestSuite) TestOpenPath() {
	c := s.connect()
	a, err := patternkit.Create(s.ctx, c, "Site", patternkit.Options{})
	s.Require().NoError(err)
	defer a.Close(s.ctx)
	s.Require().NoError(a.Edit(s.ctx, func(p *models.Project, _ *models.App) error {
		p.SetPath("/work/site.pk")
		return nil
	}))
	s.Eventually(func() bool {
		rec, err := s.store.FindByPath(s.ctx, "/work/site.pk")
		return err == nil && rec.ID == a.ProjectID()
	}, 2*time.Second, 10*time.Millisecond)

	b := s.window(func(c *memory.Connection) (*patternkit.Window, error) {
		return patternkit.OpenPath(s.ctx, c, "/work/site.pk", patternkit.Options{})
	})
	s.Equal(a.ProjectID(), b.ProjectID())
}

func (s *WindowTestSuite) TestEditsReplicate() {
	a, b := s.pair(patternkit.Options{})

	s.rename(a, "Renamed")
	s.eventuallyNamed(b, "Renamed")

	page := s.activePage(b)
	s.Require().NoError(b.Edit(s.ctx, func(*models.Project, *models.App) error {
		page.SetName("Home")
		return nil
	}))
	s.Eventually(func() bool { return s.pageName(a, page.ID()) == "Home" }, 2*time.Second, 10*time.Millisecond)

	hubCopy, ok := s.hub.Project(a.ProjectID())
	s.Require().True(ok)
	s.Equal("Renamed", hubCopy.Name())
}

func (s *WindowTestSuite) TestFailedEditIsNotRecorded() {
	a, _ := s.pair(patternkit.Options{})
	boom := assert.AnError
	err := a.Edit(s.ctx, func(p *models.Project, _ *models.App) error { return boom })
	s.ErrorIs(err, boom)

	changed, err := a.Undo(s.ctx)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *WindowTestSuite) TestUndoRedoReplicate() {
	a, b := s.pair(patternkit.Options{})

	s.rename(a, "One")
	s.rename(a, "Two")
	s.eventuallyNamed(b, "Two")

	changed, err := a.Undo(s.ctx)
	s.Require().NoError(err)
	s.True(changed)
	s.Equal("One", s.name(a))
	s.eventuallyNamed(b, "One")

	changed, err = a.Redo(s.ctx)
	s.Require().NoError(err)
	s.True(changed)
	s.eventuallyNamed(b, "Two")

	changed, err = a.Redo(s.ctx)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *WindowTestSuite) TestStageKeepsOneStep() {
	a, _ := s.pair(patternkit.Options{})

	for _, name := range []string{"S", "Sl", "Sli", "Slide"} {
		s.Require().NoError(a.Stage(s.ctx, func(p *models.Project, _ *models.App) error {
			p.SetName(name)
			return nil
		}))
	}
	s.rename(a, "Final")

	changed, err := a.Undo(s.ctx)
	s.Require().NoError(err)
	s.True(changed)
	s.Equal("Slide", s.name(a))
}

func (s *WindowTestSuite) TestResyncRestoresDivergedCopy() {
	a, b := s.pair(patternkit.Options{})

	s.Require().NoError(b.Do(s.ctx, func(p *models.Project, _ *models.App) {
		p.ApplyRemote(func() { p.SetName("stale") })
	}))
	s.Equal("stale", s.name(b))
	s.Equal("Site", s.name(a))

	s.Require().NoError(b.Resync(s.ctx, "test"))
	s.eventuallyNamed(b, "Site")
}

func (s *WindowTestSuite) TestResyncOnDrop() {
	a, b := s.pair(patternkit.Options{ResyncOnDrop: true})
	page := s.activePage(a)

	// b loses the page without telling anyone.
	s.Require().NoError(b.Do(s.ctx, func(p *models.Project, _ *models.App) {
		pg, ok := p.PageByID(page.ID())
		s.Require().True(ok)
		p.ApplyRemote(func() { p.RemovePage(pg) })
	}))

	s.Require().NoError(a.Edit(s.ctx, func(*models.Project, *models.App) error {
		page.SetName("Home")
		return nil
	}))

	s.Eventually(func() bool { return s.pageName(b, page.ID()) == "Home" }, 2*time.Second, 10*time.Millisecond)
	s.False(s.log.Contains("reason="), "hub dropped an envelope:\n%s", s.log.String())
}

func libraryAnalysis(version string) models.LibraryAnalysis {
	return models.LibraryAnalysis{
		Name:        "Acme",
		Version:     version,
		PackageName: "@acme/components",
		Patterns: []models.AnalyzedPattern{{
			ContextID: "Button",
			Name:      "Button",
			Properties: []models.AnalyzedProperty{
				{ContextID: "label", Label: "Label", PropertyName: "label", Type: models.PropertyString},
			},
		}},
	}
}

func (s *WindowTestSuite) library(w *patternkit.Window, id string) (version string, ok bool) {
	s.Require().NoError(w.Do(s.ctx, func(p *models.Project, _ *models.App) {
		var l *models.PatternLibrary
		if l, ok = p.PatternLibraryByID(id); ok {
			version = l.Version()
		}
	}))
	return version, ok
}

func (s *WindowTestSuite) TestConnectLibrary() {
	a, b := s.pair(patternkit.Options{})

	id, err := a.ConnectLibrary(s.ctx, "", libraryAnalysis("1.0.0"))
	s.Require().NoError(err)
	s.NotEmpty(id)
	for _, w := range []*patternkit.Window{a, b} {
		s.Eventually(func() bool {
			v, ok := s.library(w, id)
			return ok && v == "1.0.0"
		}, 2*time.Second, 10*time.Millisecond)
	}

	again, err := b.ConnectLibrary(s.ctx, id, libraryAnalysis("1.1.0"))
	s.Require().NoError(err)
	s.Equal(id, again)
	s.Eventually(func() bool {
		v, _ := s.library(a, id)
		return v == "1.1.0"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = a.ConnectLibrary(s.ctx, "missing", libraryAnalysis("1.0.0"))
	s.ErrorIs(err, constants.ErrAborted)
}

func (s *WindowTestSuite) TestCloseStopsWindow() {
	a, _ := s.pair(patternkit.Options{})
	s.Require().NoError(a.Close(s.ctx))
	s.Require().NoError(a.Close(s.ctx))

	select {
	case <-a.Done():
	default:
		s.Fail("window still running")
	}
	err := a.Do(s.ctx, func(*models.Project, *models.App) {})
	s.ErrorIs(err, constants.ErrClosed)
}

func TestWindowSavesLocally(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()
	h := hub.New(st, hub.Options{})
	defer h.Close()

	client, server := memory.Pipe(codec.JSON{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Serve(ctx, client.PeerID(), server)

	saved := make(chan string, 8)
	w, err := patternkit.Create(context.Background(), client, "Local", patternkit.Options{
		SaveDebounce: 5 * time.Millisecond,
		Save: func(projectID string, disk []byte) error {
			saved <- projectID
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, w.Edit(context.Background(), func(p *models.Project, _ *models.App) error {
		p.SetName("Edited")
		return nil
	}))
	select {
	case id := <-saved:
		assert.Equal(t, w.ProjectID(), id)
	case <-time.After(2 * time.Second):
		t.Fatal("project was not saved")
	}
	require.NoError(t, w.Close(context.Background()))
}
