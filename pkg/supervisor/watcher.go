package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

const defaultDebounce = 500 * time.Millisecond

// watcher signals on Changes once per burst of events in one directory.
type watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	changes  chan struct{}
	logger   *telemetry.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func newWatcher(dir string, debounce time.Duration, logger *telemetry.Logger) (*watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", abs, err)
	}

	return &watcher{
		fsw:      fsw,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		logger:   logger.WithField("watch", abs),
	}, nil
}

// Changes delivers at most one pending notification.
func (w *watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run consumes events until ctx is done or the watcher is closed.
func (w *watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			w.logger.Debugf("Change detected: %s", event)
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()

	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// Close stops the watcher.
func (w *watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
