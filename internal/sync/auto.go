package sync

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// AutoOptions tune an AutoSync
type AutoOptions struct {
	Debounce     time.Duration // wait after the last local change before syncing
	PollInterval time.Duration // sync this often to pick up remote changes; 0 disables
}

// AutoSync runs sessions when the local store changes and on a poll interval
type AutoSync struct {
	manager *Manager
	opts    AutoOptions

	mu        gosync.Mutex
	watcher   *fsnotify.Watcher
	timer     *time.Timer
	pending   bool
	running   *Runner
	quietTill time.Time
	onSync    func(Outcome)
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
	wg        gosync.WaitGroup
}

// NewAutoSync creates an auto-sync manager for m. Call Start to begin watching.
func NewAutoSync(m *Manager, opts AutoOptions) *AutoSync {
	if opts.Debounce <= 0 {
		opts.Debounce = 5 * time.Second
	}
	return &AutoSync{manager: m, opts: opts}
}

// SetOnSync sets a callback called after every automatic session
func (a *AutoSync) SetOnSync(callback func(Outcome)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSync = callback
}

// Start watches the database files and the store's change notifications
func (a *AutoSync) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		return fmt.Errorf("auto sync already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dbPath := a.manager.DB().Path()
	dir := filepath.Dir(dbPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	a.watcher = watcher
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.unsub = a.manager.DB().Subscribe(a.Trigger)

	a.wg.Add(1)
	go a.watchLoop(watcher, filepath.Clean(dbPath))
	if a.opts.PollInterval > 0 {
		a.wg.Add(1)
		go a.pollLoop()
	}

	logger.Info("Auto sync started",
		logger.F("path", dbPath),
		logger.F("debounce", a.opts.Debounce.String()),
		logger.F("poll_interval", a.opts.PollInterval.String()))
	return nil
}

func isStoreFile(dbPath, name string) bool {
	switch name {
	case dbPath, dbPath + "-wal", dbPath + "-journal":
		return true
	}
	return false
}

func (a *AutoSync) watchLoop(watcher *fsnotify.Watcher, dbPath string) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write|fsnotify.Create) && isStoreFile(dbPath, filepath.Clean(event.Name)) {
				a.Trigger()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error", logger.F("error", err))
		}
	}
}

// pollLoop periodically syncs to pull remote changes
func (a *AutoSync) pollLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.runSession()
		case <-a.ctx.Done():
			return
		}
	}
}

// Trigger marks that a sync is needed. Sessions start after the debounce
// period; triggers during a session or right after one are ignored.
func (a *AutoSync) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil || a.ctx.Err() != nil {
		return
	}
	if a.running != nil || time.Now().Before(a.quietTill) {
		return
	}

	a.pending = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.opts.Debounce, a.fire)
}

// fire runs a debounced session; Stop waits for it like the loops
func (a *AutoSync) fire() {
	a.mu.Lock()
	if a.ctx == nil || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()
	a.runSession()
}

// claim registers a new runner as the running session, or returns nil when
// one is already running. Callers hold a.mu.
func (a *AutoSync) claim() *Runner {
	if a.running != nil {
		return nil
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.running = NewRunner(a.manager)
	a.pending = false
	return a.running
}

// release ends the running session and returns the callback to notify
func (a *AutoSync) release() func(Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = nil
	// The session's own writes show up as file events just after it ends.
	a.quietTill = time.Now().Add(a.opts.Debounce)
	return a.onSync
}

func (a *AutoSync) runSession() {
	a.mu.Lock()
	if a.ctx == nil || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	r := a.claim()
	ctx := a.ctx
	a.mu.Unlock()
	if r == nil {
		return
	}

	out := r.Run(ctx)
	callback := a.release()

	if out.State != StateSuccess && out.State != StateCancelled {
		logger.Warn("Auto sync failed", logger.F("state", out.State.String()), logger.F("error", out.Err))
	}
	if callback != nil {
		callback(out)
	}
}

// SyncNow runs a session at once, dropping any scheduled one. The change
// notifications it causes are ignored like those of automatic sessions.
func (a *AutoSync) SyncNow(ctx context.Context) Outcome {
	a.mu.Lock()
	r := a.claim()
	a.mu.Unlock()
	if r == nil {
		return Outcome{State: Classify(syncerr.ErrInProgress), Err: syncerr.ErrInProgress}
	}

	out := r.Run(ctx)
	a.release()
	return out
}

// IsPending returns true if a sync is scheduled or running
func (a *AutoSync) IsPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending || a.running != nil
}

// Stop cancels a running session and stops watching. It returns once the
// loops and any debounced session have finished.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	if a.watcher == nil {
		a.mu.Unlock()
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.running != nil {
		a.running.Cancel()
	}
	a.cancel()
	a.unsub()
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	watcher.Close()
	a.wg.Wait()
	logger.Info("Auto sync stopped")
}
