package sync

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Fingerprinter summarizes pending local rows. *store.Store satisfies it.
type Fingerprinter interface {
	PendingFingerprint(ctx context.Context) (string, error)
}

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	// Interval between scheduled cycles; 0 disables the schedule.
	Interval time.Duration

	// SyncOnStart runs a cycle as soon as Run is called.
	SyncOnStart bool

	// WatchPath is the database file to watch for writes by other
	// processes. Empty disables watching.
	WatchPath string

	// DebounceInterval is how long writes must settle before a
	// watch-triggered cycle. This batches bursts of writes together.
	DebounceInterval time.Duration

	// Logger for runner activity
	Logger *log.Logger
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		Interval:         24 * time.Hour,
		SyncOnStart:      true,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[runner] ", log.LstdFlags),
	}
}

// Runner drives an Engine from start-up, a schedule, explicit Notify
// calls and database file changes.
type Runner struct {
	engine *Engine
	fp     Fingerprinter
	config *RunnerConfig

	notify chan struct{}

	// lastFingerprint is owned by the Run goroutine.
	lastFingerprint string
}

// NewRunner creates a Runner. fp may be nil, in which case every settled
// file change triggers a cycle.
func NewRunner(engine *Engine, fp Fingerprinter, config *RunnerConfig) *Runner {
	if config == nil {
		config = DefaultRunnerConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[runner] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 2 * time.Second
	}
	return &Runner{
		engine: engine,
		fp:     fp,
		config: config,
		notify: make(chan struct{}, 1),
	}
}

// Notify requests a cycle. It never blocks; requests made while one is
// already queued are merged.
func (r *Runner) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run processes triggers until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.config.Logger.Println("Starting sync runner")

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if r.config.WatchPath != "" {
		watcher, err := r.watch()
		if err != nil {
			r.config.Logger.Printf("Warning: file watching disabled: %v", err)
		} else {
			defer watcher.Close()
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	var tick <-chan time.Time
	if r.config.Interval > 0 {
		ticker := time.NewTicker(r.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if r.config.SyncOnStart {
		r.cycle(ctx, "start")
	}

	var debounce *time.Timer
	var settled <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Println("Sync runner stopped")
			return nil

		case <-tick:
			r.cycle(ctx, "interval")

		case <-r.notify:
			r.cycle(ctx, "notify")

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !r.relevant(event) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(r.config.DebounceInterval)
			} else {
				debounce.Reset(r.config.DebounceInterval)
			}
			settled = debounce.C

		case <-settled:
			settled = nil
			if r.changed(ctx) {
				r.cycle(ctx, "file change")
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			r.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// watch watches the directory holding the database, since SQLite writes
// through a -wal sidecar that may not exist yet.
func (r *Runner) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(r.config.WatchPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	r.config.Logger.Printf("Watching: %s", dir)
	return watcher, nil
}

// relevant reports whether event is a write to the database or its WAL.
func (r *Runner) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(r.config.WatchPath)
	switch filepath.Base(event.Name) {
	case base, base + "-wal":
		return true
	}
	return false
}

// changed reports whether pending rows differ from those seen at the start
// of the last cycle. Rows the remote keeps rejecting leave the fingerprint
// unchanged, and a cycle that drained everything settles after one more
// empty pass, so the runner never retriggers itself indefinitely.
func (r *Runner) changed(ctx context.Context) bool {
	if r.fp == nil {
		return true
	}
	fp, err := r.fp.PendingFingerprint(ctx)
	if err != nil {
		r.config.Logger.Printf("Error reading pending rows: %v", err)
		return false
	}
	return fp != r.lastFingerprint
}

// cycle runs the engine once. The fingerprint is taken before the cycle so
// that writes landing while it runs are still seen as changes afterwards.
func (r *Runner) cycle(ctx context.Context, reason string) {
	r.config.Logger.Printf("Sync triggered by %s", reason)

	if r.fp != nil {
		if fp, err := r.fp.PendingFingerprint(ctx); err == nil {
			r.lastFingerprint = fp
		}
	}
	r.engine.AutoSync(ctx)
}
