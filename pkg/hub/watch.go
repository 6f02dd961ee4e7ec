package hub

import (
	"context"
	"path/filepath"
	"time"

	"github.com/patternkit/patternkit/pkg/config"
	"github.com/patternkit/patternkit/pkg/host"
)

// WatchLibraries re-imports a project's library whenever its analysis file
// changes. A watch without a library id adds a library on the first
// analysis and keeps importing into it afterwards. The watcher runs until
// ctx is done or it is stopped.
func (h *Hub) WatchLibraries(ctx context.Context, watches []config.LibraryWatch, debounce time.Duration) (*host.LibraryWatcher, error) {
	byFile := map[string][]*config.LibraryWatch{}
	files := make([]string, 0, len(watches))
	for i := range watches {
		w := watches[i]
		abs, err := filepath.Abs(w.File)
		if err != nil {
			return nil, err
		}
		if _, ok := byFile[abs]; !ok {
			files = append(files, abs)
		}
		byFile[abs] = append(byFile[abs], &w)
	}

	watcher, err := host.NewLibraryWatcher(host.WatcherConfig{
		Files:    files,
		Debounce: debounce,
		Logger:   h.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop() //nolint:errcheck
		return nil, err
	}

	go func() {
		for ev := range watcher.Events() {
			if ev.Err != nil {
				h.logger.Warn("unreadable analysis", "path", ev.Path, "error", ev.Err)
				continue
			}
			for _, w := range byFile[ev.Path] {
				h.importWatched(ctx, w, ev)
			}
		}
	}()
	return watcher, nil
}

func (h *Hub) importWatched(ctx context.Context, w *config.LibraryWatch, ev host.LibraryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.open(ctx, w.ProjectID)
	if err != nil {
		h.logger.Warn("cannot import watched library", "project_id", w.ProjectID, "path", ev.Path, "error", err)
		return
	}
	id, err := h.connectLibrary(s, w.LibraryID, ev.Analysis)
	if err != nil {
		h.logger.Warn("watched library import failed", "project_id", w.ProjectID, "library_id", id, "error", err)
		return
	}
	w.LibraryID = id
}
