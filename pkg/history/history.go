// Package history keeps a bounded undo/redo record of a project and its view
// state.
//
// Snapshots are applied back through models.Project.Update, so undoing never
// replaces the live project: every entity that exists on both sides keeps its
// instance.
package history

import (
	"bytes"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/models"
)

// Snapshot is one serialized history entry.
type Snapshot struct {
	App     json.RawMessage `json:"app,omitempty"`
	Project json.RawMessage `json:"project"`
}

// SaveFunc persists the disk form of a project. It runs on its own
// goroutine and must not touch the live models.
type SaveFunc func(projectID string, disk []byte) error

type Options struct {
	// Capacity bounds the undo stack. Zero means constants.DefaultHistoryCapacity.
	Capacity int
	// Debounce delays saves so that a burst of commits writes once. Zero
	// means constants.DefaultSaveDebounce.
	Debounce time.Duration
	Save     SaveFunc
	Logger   logger.Logger
}

// EditHistory records snapshots of one project. Commit, Stage, Undo and Redo
// must be called from the goroutine that owns the project.
type EditHistory struct {
	project *models.Project
	app     *models.App

	undo     []Snapshot
	redo     []Snapshot
	capacity int

	debounce time.Duration
	save     SaveFunc
	logger   logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending []byte
}

// New returns an empty history for project. app may be nil.
func New(project *models.Project, app *models.App, opts Options) *EditHistory {
	if opts.Capacity <= 0 {
		opts.Capacity = constants.DefaultHistoryCapacity
	}
	if opts.Debounce <= 0 {
		opts.Debounce = constants.DefaultSaveDebounce
	}
	return &EditHistory{
		project:  project,
		app:      app,
		capacity: opts.Capacity,
		debounce: opts.Debounce,
		save:     opts.Save,
		logger:   logger.OrDiscard(opts.Logger),
	}
}

func (h *EditHistory) CanUndo() bool { return len(h.undo) > 0 }
func (h *EditHistory) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the sizes of the undo and redo stacks.
func (h *EditHistory) Len() (undo, redo int) { return len(h.undo), len(h.redo) }

func (h *EditHistory) snapshot() (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Project, err = json.Marshal(h.project.ToJSON()); err != nil {
		return Snapshot{}, err
	}
	if h.app != nil {
		if s.App, err = json.Marshal(h.app.ToJSON()); err != nil {
			return Snapshot{}, err
		}
	}
	return s, nil
}

// live snapshots the current state. A failure is logged and reported as
// false; callers leave the stacks untouched then.
func (h *EditHistory) live(op string) (Snapshot, bool) {
	s, err := h.snapshot()
	if err != nil {
		h.logger.Error("serialize project for history", "project_id", h.project.ID(), "op", op, "error", err)
		return Snapshot{}, false
	}
	return s, true
}

// Commit records the current state and starts a new branch: the redo stack
// is dropped. The oldest entry falls off once the capacity is reached.
// After Commit the newest undo entry is the live state.
func (h *EditHistory) Commit() {
	s, ok := h.live("commit")
	if !ok {
		return
	}
	h.undo = append(h.undo, s)
	if over := len(h.undo) - h.capacity; over > 0 {
		h.undo = append(h.undo[:0:0], h.undo[over:]...)
	}
	h.redo = nil
	h.scheduleSave()
}

// Stage replaces the newest entry with the current state. Continuous edits
// use it so they leave a single entry.
func (h *EditHistory) Stage() {
	if len(h.undo) == 0 {
		h.Commit()
		return
	}
	s, ok := h.live("stage")
	if !ok {
		return
	}
	h.undo[len(h.undo)-1] = s
	h.scheduleSave()
}

// Undo steps back to the newest entry that differs from the live state.
// That entry stays on the undo stack, since it is the live state once
// applied; the state left behind goes to the redo stack. It reports whether
// the live project changed.
func (h *EditHistory) Undo() bool {
	live, ok := h.live("undo")
	if !ok {
		return false
	}
	for i := len(h.undo) - 1; i >= 0; i-- {
		target, ok := h.decode(h.undo[i])
		if !ok {
			h.undo = append(h.undo[:i], h.undo[i+1:]...)
			continue
		}
		if h.matches(h.undo[i], target, live) {
			continue
		}

		// Entries above i equal the live state; live stands in for them.
		h.undo = h.undo[:i+1]
		if n := len(h.redo); n == 0 || !bytes.Equal(h.redo[n-1].Project, live.Project) {
			h.redo = append(h.redo, live)
		}
		h.apply(target, h.undo[i].App)
		h.scheduleSave()
		return true
	}
	h.logger.Debug("nothing to undo", "project_id", h.project.ID())
	return false
}

// Redo reapplies the newest undone entry that differs from the live state
// and pushes it back onto the undo stack. It reports whether the live
// project changed.
func (h *EditHistory) Redo() bool {
	live, ok := h.live("redo")
	if !ok {
		return false
	}
	for len(h.redo) > 0 {
		s := h.redo[len(h.redo)-1]
		h.redo = h.redo[:len(h.redo)-1]

		target, ok := h.decode(s)
		if !ok || h.matches(s, target, live) {
			continue
		}

		if n := len(h.undo); n == 0 || !bytes.Equal(h.undo[n-1].Project, live.Project) {
			h.undo = append(h.undo, live)
		}
		h.undo = append(h.undo, s)
		h.apply(target, s.App)
		h.scheduleSave()
		return true
	}
	h.logger.Debug("nothing to redo", "project_id", h.project.ID())
	return false
}

func (h *EditHistory) decode(s Snapshot) (*models.Project, bool) {
	target, err := models.ProjectFromJSON(s.Project)
	if err != nil {
		h.logger.Warn("dropping unreadable history entry", "project_id", h.project.ID(), "error", err)
		return nil, false
	}
	return target, true
}

// matches reports whether entry s, decoded as target, is the live state.
func (h *EditHistory) matches(s Snapshot, target *models.Project, live Snapshot) bool {
	return bytes.Equal(s.Project, live.Project) || target.Equal(h.project)
}

func (h *EditHistory) apply(target *models.Project, app json.RawMessage) {
	var previous string
	if el, ok := h.project.SelectedElement(); ok {
		previous = el.ID()
	}
	var selected string
	if el, ok := target.SelectedElement(); ok {
		selected = el.ID()
	}

	h.project.Update(target)

	if h.app != nil && len(app) > 0 {
		if restored, err := models.AppFromJSON(app); err == nil {
			h.app.Update(restored)
		} else {
			h.logger.Warn("ignoring unreadable app snapshot", "error", err)
		}
	}

	if el, ok := h.project.ElementByID(previous); ok && previous != selected {
		el.SetSelected(false)
	}
	if el, ok := h.project.ElementByID(selected); ok {
		h.project.SetSelectedElement(el)
	}
}

func (h *EditHistory) scheduleSave() {
	if h.save == nil {
		return
	}
	data, err := json.Marshal(h.project.ToDisk())
	if err != nil {
		h.logger.Error("serialize project for saving", "project_id", h.project.ID(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = data
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.debounce, h.flushPending)
}

func (h *EditHistory) flushPending() {
	h.mu.Lock()
	data := h.pending
	h.pending = nil
	h.timer = nil
	h.mu.Unlock()

	if data == nil {
		return
	}
	if err := h.save(h.project.ID(), data); err != nil {
		h.logger.Error("saving project failed", "project_id", h.project.ID(), "error", err)
		return
	}
	h.logger.Debug("project saved", "project_id", h.project.ID(), "bytes", len(data))
}

// Flush writes a pending save right away.
func (h *EditHistory) Flush() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	if h.save != nil {
		h.flushPending()
	}
}
