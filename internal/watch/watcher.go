// Package watch reports changes to the facade's target file, reading the new
// content back through the facade so that observers see only whole writes.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/stamped"
)

// DefaultDebounce coalesces the bursts of events a single save produces.
const DefaultDebounce = 50 * time.Millisecond

// Change is one observed version of the file.
type Change struct {
	Path       string
	Content    string
	Stamp      stamped.Stamp
	Optimistic bool
	At         time.Time
	// Err is set when the file could not be read, e.g. after removal.
	Err error
}

// Watcher watches the directory of the facade's target file and re-reads the
// file after each debounced burst of events on it.
type Watcher struct {
	f        *facade.Facade
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration

	mu       sync.RWMutex
	path     string
	onChange func(Change)
	last     *Change

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period after the last event before re-reading.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l.WithComponent("watch")
		}
	}
}

// New creates a Watcher for f. Call Start to begin watching.
func New(f *facade.Facade, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		f:        f,
		watcher:  fw,
		logger:   logging.NopLogger(),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SetCallback sets the function called for every change. It runs on the
// watch goroutine.
func (w *Watcher) SetCallback(cb func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = cb
}

// Start resolves the facade's current file reference and begins watching it.
// The parent directory is watched so that replace-by-rename is seen.
func (w *Watcher) Start(ctx context.Context) error {
	path, _, _, err := w.f.FileReference(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		return gerrors.ErrNoFileReference
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return gerrors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	w.mu.Lock()
	w.path = abs
	w.mu.Unlock()

	w.logger.Info("watching file", "path", abs, "debounce", w.debounce.String())
	w.started.Store(true)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the watch goroutine to exit.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if !w.started.Load() {
		return
	}
	select {
	case <-w.done:
	case <-time.After(time.Second):
	}
}

// Last returns the most recent change, if any.
func (w *Watcher) Last() (Change, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return Change{}, false
	}
	return *w.last, true
}

// Refresh reads the file now and reports the result as a change.
func (w *Watcher) Refresh(ctx context.Context) Change {
	w.mu.RLock()
	path := w.path
	w.mu.RUnlock()

	c := Change{Path: path, At: time.Now()}
	c.Content, c.Stamp, c.Optimistic, c.Err = w.f.Content(ctx)

	w.mu.Lock()
	w.last = &c
	cb := w.onChange
	w.mu.Unlock()

	if c.Err != nil {
		w.logger.Debug("re-read failed", "path", path, "error", c.Err.Error())
	}
	if cb != nil {
		cb(c)
	}
	return c
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	pending := false

	w.mu.RLock()
	target := w.path
	w.mu.RUnlock()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			w.Refresh(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}
