package prompt

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kitchenai/kitchen/internal/logging"
)

// Watcher reloads a library when template files in a directory change.
type Watcher struct {
	watcher *fsnotify.Watcher
	library *Library
	dir     string
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex

	// OnReload is called after each reload attempt, if set.
	OnReload func(n int, err error)
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(library *Library, dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	logging.Info().Str("dir", dir).Msg("prompt watcher initialized")

	return &Watcher{
		watcher: w,
		library: library,
		dir:     dir,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for template changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isTemplate(ev.Name) {
				continue
			}
			n, err := w.library.LoadDir(w.dir)
			if err != nil {
				logging.Warn().Err(err).Str("file", ev.Name).Msg("prompt reload failed")
			} else {
				logging.Info().Int("templates", n).Str("file", ev.Name).Msg("prompts reloaded")
			}
			if w.OnReload != nil {
				w.OnReload(n, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("prompt watcher error")
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

func isTemplate(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
