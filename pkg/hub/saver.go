package hub

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/patternkit/patternkit/pkg/models"
)

const saveTimeout = 10 * time.Second

// saver writes the disk form of one project to the store once changes
// stop arriving for the debounce interval.
type saver struct {
	hub       *Hub
	projectID string

	mu      sync.Mutex
	timer   *time.Timer
	pending []byte
}

func newSaver(h *Hub, projectID string) *saver {
	return &saver{hub: h, projectID: projectID}
}

// schedule serializes p now and writes it later. It must be called while
// the hub lock is held.
func (s *saver) schedule(p *models.Project) {
	data, err := json.Marshal(p.ToDisk())
	if err != nil {
		s.hub.logger.Error("serialize project for saving", "project_id", s.projectID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = data
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.hub.opts.SaveDebounce, s.write)
}

func (s *saver) write() {
	s.mu.Lock()
	data := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()
	if data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.hub.store.SaveSnapshot(ctx, s.projectID, data); err != nil {
		s.hub.metrics.saves.WithLabelValues("error").Inc()
		s.hub.logger.Error("saving project failed", "project_id", s.projectID, "error", err)
		return
	}
	s.hub.metrics.saves.WithLabelValues("ok").Inc()
	s.hub.logger.Debug("project saved", "project_id", s.projectID, "bytes", len(data))
}

// flush writes a pending save right away.
func (s *saver) flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.write()
}
