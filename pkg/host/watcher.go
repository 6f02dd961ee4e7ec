package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/models"
)

// DefaultWatchDebounce is used when WatcherConfig.Debounce is zero.
const DefaultWatchDebounce = 100 * time.Millisecond

type WatcherConfig struct {
	// Files are the analysis files to watch.
	Files []string
	// Debounce collects bursts of writes to one file into one event.
	Debounce time.Duration
	Logger   logger.Logger
}

// LibraryEvent reports a new analysis read from Path. Err is set when the
// file could not be read or decoded; Analysis is then empty.
type LibraryEvent struct {
	Path     string
	Analysis models.LibraryAnalysis
	Hash     string
	Err      error
}

// LibraryWatcher emits a LibraryEvent whenever a watched analysis file
// changes content.
//
// Directories are watched rather than files: analyzers usually replace
// their output by renaming, which a file watch does not survive.
type LibraryWatcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  logger.Logger

	files map[string]bool

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.Mutex
	hashes map[string]string

	events   chan LibraryEvent
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewLibraryWatcher(config WatcherConfig) (*LibraryWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}

	w := &LibraryWatcher{
		config:  config,
		watcher: fsw,
		logger:  logger.OrDiscard(config.Logger),
		files:   map[string]bool{},
		pending: map[string]fsnotify.Op{},
		hashes:  map[string]string{},
		events:  make(chan LibraryEvent, 16),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	for _, f := range config.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.files[abs] = true
	}
	return w, nil
}

func (w *LibraryWatcher) Events() <-chan LibraryEvent {
	return w.events
}

// Start watches the files' directories and emits one event per file that
// already exists. Events stop when ctx is done or Stop is called.
func (w *LibraryWatcher) Start(ctx context.Context) error {
	dirs := map[string]bool{}
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", "path", dir)
	}

	w.pendingMu.Lock()
	for f := range w.files {
		if _, err := os.Stat(f); err == nil {
			w.pending[f] = fsnotify.Create
		}
	}
	w.pendingMu.Unlock()

	w.started = true
	go w.processEvents(ctx)

	w.logger.Info("library watcher started", "files", len(w.files), "debounce", w.config.Debounce)
	return nil
}

// Stop ends the watcher and closes Events.
func (w *LibraryWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

func (w *LibraryWatcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	w.flushPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *LibraryWatcher) handleFSEvent(event fsnotify.Event) {
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.files[path] {
		return
	}
	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("analysis change detected", "path", path, "op", event.Op.String())
}

func (w *LibraryWatcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = map[string]fsnotify.Op{}
	w.pendingMu.Unlock()

	for path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			// removed; a later write brings it back
			w.hashMu.Lock()
			delete(w.hashes, path)
			w.hashMu.Unlock()
			continue
		}
		if err != nil {
			w.send(ctx, LibraryEvent{Path: path, Err: err})
			continue
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		w.hashMu.Lock()
		unchanged := w.hashes[path] == hash
		w.hashes[path] = hash
		w.hashMu.Unlock()
		if unchanged {
			continue
		}

		event := LibraryEvent{Path: path, Hash: hash}
		if err := json.Unmarshal(data, &event.Analysis); err != nil {
			event.Err = fmt.Errorf("decode analysis %s: %w", path, err)
		} else if event.Analysis.BundleHash == "" {
			event.Analysis.BundleHash = hash
		}
		w.send(ctx, event)
	}
}

func (w *LibraryWatcher) send(ctx context.Context, event LibraryEvent) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	case <-w.stop:
	}
}
