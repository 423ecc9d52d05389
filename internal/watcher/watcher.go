// Package watcher turns filesystem changes under a workspace into a stream of
// debounced rebuild triggers.
package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stackctl/internal/logger"
)

// DefaultDebounce is the window after the first relevant change during which
// further changes are coalesced into the same trigger.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors a workspace and emits one timestamp per burst of relevant
// changes.
type Watcher struct {
	root     string
	debounce time.Duration
	log      arbor.ILogger
	fsw      *fsnotify.Watcher

	triggers chan time.Time

	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	fswOnce  sync.Once
	pumpDone chan struct{}
	mu       sync.RWMutex

	// Unbounded queue fed by the pump, drained by the debouncer
	queue   []string
	queueMu sync.Mutex
	notify  chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger used for watch errors.
func WithLogger(log arbor.ILogger) Option {
	return func(w *Watcher) {
		w.log = log
	}
}

// NewWatcher creates a watcher for root. Nothing is registered until Start.
func NewWatcher(root string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to watch workspace changes: %w", err)
	}

	w := newWatcher(root, opts...)
	w.fsw = fsw
	return w, nil
}

func newWatcher(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		debounce: DefaultDebounce,
		triggers: make(chan time.Time),
		stopCh:   make(chan struct{}),
		pumpDone: make(chan struct{}),
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.GetLogger()
	}
	return w
}

// Start registers the workspace tree and begins producing triggers.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if err := w.addTree(w.root, true); err != nil {
		_ = w.closeFsw()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	w.running = true

	go w.pump()
	go w.debounceLoop()

	return nil
}

// Triggers returns the trigger stream. It is closed when the underlying watch
// fails or Stop is called.
func (w *Watcher) Triggers() <-chan time.Time {
	return w.triggers
}

// Stop stops the watcher and closes the trigger stream. The fsnotify handle
// is released even when Start was never called or failed.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.running = false
		w.stopOnce.Do(func() { close(w.stopCh) })
	}

	return w.closeFsw()
}

func (w *Watcher) closeFsw() error {
	var err error
	w.fswOnce.Do(func() {
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addTree registers dir and every non-ignored directory below it. Failures
// below the top directory are logged and skipped unless strict is set for
// the top directory itself.
func (w *Watcher) addTree(dir string, strict bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && strict {
				return err
			}
			w.log.Warn().Err(err).Str("path", path).Msg("cannot watch directory")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && skipDir(w.root, path) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			if path == dir && strict {
				return err
			}
			w.log.Warn().Err(err).Str("path", path).Msg("cannot watch directory")
		}

		return nil
	})
}

// pump moves fsnotify events into the queue. It never waits on the consumer.
func (w *Watcher) pump() {
	defer close(w.pumpDone)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) && !skipDir(w.root, event.Name) {
		if isDir, err := lstatDir(event.Name); err == nil && isDir {
			if err := w.addTree(event.Name, false); err != nil {
				w.log.Warn().Err(err).Str("path", event.Name).Msg("cannot watch new directory")
			}
		}
	}

	if event.Op == fsnotify.Chmod {
		return
	}

	if !Relevant(w.root, event.Name) {
		return
	}

	w.enqueue(event.Name)
}

func (w *Watcher) enqueue(path string) {
	w.queueMu.Lock()
	w.queue = append(w.queue, path)
	w.queueMu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// drain empties the queue and returns how many paths it held.
func (w *Watcher) drain() int {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()

	n := len(w.queue)
	w.queue = w.queue[:0]
	return n
}

// debounceLoop emits one trigger per burst: the first queued change starts a
// timer, changes arriving before it fires are coalesced, and the timer firing
// emits time.Now(). The timer is never extended.
func (w *Watcher) debounceLoop() {
	defer close(w.triggers)

	for {
		if !w.waitFirst() {
			return
		}

		timer := time.NewTimer(w.debounce)

	race:
		for {
			select {
			case <-timer.C:
				break race
			case <-w.notify:
				w.drain()
			case <-w.stopCh:
				timer.Stop()
				return
			}
		}

		if !w.handOver(time.Now()) {
			return
		}
	}
}

// handOver blocks until the consumer takes the trigger. Changes queued while
// it waits are folded into this trigger and move its timestamp forward, so a
// busy consumer sees one trigger covering everything it missed.
func (w *Watcher) handOver(ts time.Time) bool {
	for {
		select {
		case w.triggers <- ts:
			return true
		case <-w.notify:
			if w.drain() > 0 {
				ts = time.Now()
			}
		case <-w.stopCh:
			return false
		}
	}
}

// waitFirst blocks until at least one queued change exists. It returns false
// when the watcher stopped or the pump ended with nothing left to report.
func (w *Watcher) waitFirst() bool {
	for {
		if w.drain() > 0 {
			return true
		}

		select {
		case <-w.notify:
		case <-w.pumpDone:
			return w.drain() > 0
		case <-w.stopCh:
			return false
		}
	}
}
