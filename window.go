package patternkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/history"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
	"github.com/patternkit/patternkit/pkg/replication"
)

type Options struct {
	// HistoryCapacity bounds the undo stack. Zero means the history default.
	HistoryCapacity int
	// SaveDebounce delays Save after an edit.
	SaveDebounce time.Duration
	// Save persists the project locally. Nil leaves saving to the hub.
	Save history.SaveFunc
	// ResyncOnDrop asks the hub for a checkpoint when a replicated update
	// cannot be applied.
	ResyncOnDrop bool
	Logger       logger.Logger
}

// Window is one peer's live copy of a project, bound to a connection.
//
// The project and view state are owned by a single goroutine that also
// applies what arrives over the connection. Callers reach them through Do,
// Edit and Stage; every Edit is recorded in the undo history and replicated.
type Window struct {
	conn    connection.Connection
	project *models.Project
	app     *models.App
	history *history.EditHistory
	sync    *replication.Sync
	logger  logger.Logger

	ops       chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// reconnectNotifier is implemented by connections that redial on their own.
type reconnectNotifier interface {
	SetOnReconnect(fn func(ctx context.Context))
}

// Open asks the hub behind conn for project projectID and starts a window
// on it. conn must be connected.
func Open(ctx context.Context, conn connection.Connection, projectID string, opts Options) (*Window, error) {
	return open(ctx, conn, opts, func(app json.RawMessage) (*message.ProjectResponse, error) {
		return connection.Call[message.ProjectResponse](ctx, conn, message.TypeOpenProjectRequest,
			message.OpenProjectRequest{ProjectID: projectID, App: app})
	})
}

// OpenPath is Open for the project last saved at path.
func OpenPath(ctx context.Context, conn connection.Connection, path string, opts Options) (*Window, error) {
	return open(ctx, conn, opts, func(app json.RawMessage) (*message.ProjectResponse, error) {
		return connection.Call[message.ProjectResponse](ctx, conn, message.TypeOpenProjectRequest,
			message.OpenProjectRequest{Path: path, App: app})
	})
}

// Create asks the hub to create a project and starts a window on it.
func Create(ctx context.Context, conn connection.Connection, name string, opts Options) (*Window, error) {
	return open(ctx, conn, opts, func(app json.RawMessage) (*message.ProjectResponse, error) {
		return connection.Call[message.ProjectResponse](ctx, conn, message.TypeCreateProjectRequest,
			message.CreateProjectRequest{Name: name, App: app})
	})
}

func open(
	ctx context.Context,
	conn connection.Connection,
	opts Options,
	request func(app json.RawMessage) (*message.ProjectResponse, error),
) (*Window, error) {
	l := logger.OrDiscard(opts.Logger)

	app := models.NewApp()
	app.SetActiveView(models.ViewPageDetail)
	rawApp, err := json.Marshal(app.ToJSON())
	if err != nil {
		return nil, err
	}
	res, err := request(rawApp)
	if err != nil {
		return nil, err
	}
	project, err := models.ProjectFromJSON(res.Project)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	app.SetProjectID(project.ID())

	w := &Window{
		conn:    conn,
		project: project,
		app:     app,
		logger:  l,
		ops:     make(chan func()),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.history = history.New(project, app, history.Options{
		Capacity: opts.HistoryCapacity,
		Debounce: opts.SaveDebounce,
		Save:     opts.Save,
		Logger:   l,
	})
	w.history.Commit()

	w.sync = replication.NewSync(conn, app.ID(), replication.Options{
		ResyncOnDrop: opts.ResyncOnDrop,
		Logger:       l,
	})
	w.sync.Attach(project)
	w.sync.AttachApp(app)

	if r, ok := conn.(reconnectNotifier); ok {
		r.SetOnReconnect(func(ctx context.Context) {
			if err := w.resync(ctx, "reconnected", true); err != nil {
				l.Warn("resync after reconnect failed", "project_id", project.ID(), "error", err)
			}
		})
	}

	go w.run()
	l.Info("window opened", "project_id", project.ID(), "app_id", app.ID())
	return w, nil
}

func (w *Window) run() {
	defer close(w.done)
	inbox := w.conn.Messages()
	for {
		select {
		case <-w.stop:
			return
		case fn := <-w.ops:
			fn()
		case e, ok := <-inbox:
			if !ok {
				w.logger.Info("connection closed", "project_id", w.project.ID())
				return
			}
			w.handle(e)
		}
	}
}

func (w *Window) handle(e *message.Envelope) {
	handled, err := w.sync.Handle(context.Background(), e)
	if err != nil {
		w.logger.Warn("dropping envelope", "type", e.Type, "project_id", w.project.ID(), "error", err)
		return
	}
	if !handled {
		w.logger.Debug("ignoring envelope", "type", e.Type, "transaction", e.Transaction)
	}
}

// Done is closed once the window stopped, either by Close or because the
// connection went away for good.
func (w *Window) Done() <-chan struct{} { return w.done }

// ProjectID is safe to call from any goroutine.
func (w *Window) ProjectID() string { return w.project.ID() }

// Do runs fn on the goroutine owning the models and waits for it. fn must
// not keep the models past its return.
func (w *Window) Do(ctx context.Context, fn func(p *models.Project, app *models.App)) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn(w.project, w.app)
	}
	select {
	case w.ops <- op:
	case <-w.done:
		return constants.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Edit runs fn like Do and records the result as one undo step. Nothing
// is recorded when fn fails; its mutations are replicated regardless.
func (w *Window) Edit(ctx context.Context, fn func(p *models.Project, app *models.App) error) error {
	var err error
	if doErr := w.Do(ctx, func(p *models.Project, app *models.App) {
		if err = fn(p, app); err == nil {
			w.history.Commit()
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Stage is Edit for continuous changes, such as dragging a slider: it
// replaces the newest undo step instead of adding one.
func (w *Window) Stage(ctx context.Context, fn func(p *models.Project, app *models.App) error) error {
	var err error
	if doErr := w.Do(ctx, func(p *models.Project, app *models.App) {
		if err = fn(p, app); err == nil {
			w.history.Stage()
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Undo reverts the last edit. It reports whether anything changed.
func (w *Window) Undo(ctx context.Context) (bool, error) {
	var changed bool
	err := w.Do(ctx, func(*models.Project, *models.App) { changed = w.history.Undo() })
	return changed, err
}

// Redo reapplies the last undone edit. It reports whether anything changed.
func (w *Window) Redo(ctx context.Context) (bool, error) {
	var changed bool
	err := w.Do(ctx, func(*models.Project, *models.App) { changed = w.history.Redo() })
	return changed, err
}

// Resync asks the hub for a checkpoint of the project. The checkpoint is
// merged when it arrives.
func (w *Window) Resync(ctx context.Context, reason string) error {
	return w.resync(ctx, reason, false)
}

func (w *Window) resync(ctx context.Context, reason string, redialed bool) error {
	var err error
	if doErr := w.Do(ctx, func(*models.Project, *models.App) {
		if redialed {
			w.sync.ForgetResync()
		}
		err = w.sync.RequestResync(ctx, reason)
	}); doErr != nil {
		return doErr
	}
	return err
}

// ConnectLibrary has the hub import analysis into library libraryID, or
// add it as a new library when libraryID is empty, and returns the
// library id. The library itself arrives as replicated updates.
func (w *Window) ConnectLibrary(ctx context.Context, libraryID string, analysis models.LibraryAnalysis) (string, error) {
	res, err := connection.Call[message.ConnectLibraryResponse](ctx, w.conn, message.TypeConnectLibraryRequest,
		message.ConnectLibraryRequest{
			ProjectID: w.project.ID(),
			LibraryID: libraryID,
			Analysis:  analysis,
		})
	if err != nil {
		if res != nil && res.Stack != "" {
			return res.LibraryID, &models.LibraryImportError{LibraryID: res.LibraryID, Message: res.Message, Stack: res.Stack}
		}
		return "", err
	}
	return res.LibraryID, nil
}

// Close stops the window and writes a pending save. The connection is
// left open.
func (w *Window) Close(context.Context) error {
	w.closeOnce.Do(func() {
		if r, ok := w.conn.(reconnectNotifier); ok {
			r.SetOnReconnect(nil)
		}
		close(w.stop)
		<-w.done
		w.sync.Detach()
		w.history.Flush()
		w.logger.Info("window closed", "project_id", w.project.ID())
	})
	return nil
}
