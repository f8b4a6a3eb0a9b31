package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// State is the terminal state of a session
type State int

const (
	StateSuccess State = iota
	StateNetworkError
	StateInternalError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateNetworkError:
		return "network_error"
	case StateInternalError:
		return "internal_error"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is what a finished session reports
type Outcome struct {
	State  State
	Result *Result
	Err    error
}

// Message returns the user notification for the outcome
func (o Outcome) Message() string {
	switch o.State {
	case StateSuccess:
		account := ""
		if o.Result != nil {
			account = o.Result.Account
		}
		return "Synchronized with " + account
	case StateNetworkError:
		return "Sync failed: cannot reach the server, check your connection"
	case StateCancelled:
		return "Sync cancelled"
	}
	return "Sync failed: internal error"
}

// Classify maps a session error to its terminal state
func Classify(err error) State {
	switch {
	case err == nil:
		return StateSuccess
	case errors.Is(err, syncerr.ErrCancelled), errors.Is(err, context.Canceled):
		return StateCancelled
	case syncerr.IsNetwork(err), errors.Is(err, context.DeadlineExceeded):
		return StateNetworkError
	}
	return StateInternalError
}

// Syncer runs one session
type Syncer interface {
	Sync(ctx context.Context, cancelled func() bool, progress func(string)) (*Result, error)
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithProgress sets the progress callback. It is called on the session goroutine.
func WithProgress(fn func(string)) RunnerOption {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithCompletion sets the callback invoked once when the session ends
func WithCompletion(fn func(Outcome)) RunnerOption {
	return func(r *Runner) {
		r.completion = fn
	}
}

// Runner executes one session in the background
type Runner struct {
	syncer     Syncer
	progress   func(string)
	completion func(Outcome)
	cancelled  atomic.Bool
	once       gosync.Once
	done       chan struct{}
}

// NewRunner creates a runner for one session of s
func NewRunner(s Syncer, opts ...RunnerOption) *Runner {
	r := &Runner{syncer: s, done: make(chan struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cancel asks the session to stop at the next node or batch boundary.
// Requests already sent complete first.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called
func (r *Runner) Cancelled() bool {
	return r.cancelled.Load()
}

// Run executes the session and blocks until it ends. A runner runs once;
// later calls return an internal error.
func (r *Runner) Run(ctx context.Context) Outcome {
	out := Outcome{State: StateInternalError, Err: errors.New("runner already used")}
	ran := false
	r.once.Do(func() {
		ran = true
		out = r.run(ctx)
	})
	if !ran {
		return out
	}

	close(r.done)
	if r.completion != nil {
		go r.completion(out)
	}
	return out
}

// Start executes the session on a new goroutine. The channel receives the
// outcome and is then closed.
func (r *Runner) Start(ctx context.Context) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- r.Run(ctx)
	}()
	return ch
}

// Done is closed when the session ends
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) run(ctx context.Context) Outcome {
	res, err := r.syncer.Sync(ctx, r.Cancelled, r.progress)
	out := Outcome{State: Classify(err), Result: res, Err: err}

	switch out.State {
	case StateSuccess, StateCancelled:
		logger.Info("Sync finished", logger.F("state", out.State.String()))
	default:
		logger.Error("Sync finished", logger.F("state", out.State.String()), logger.F("error", err))
	}
	return out
}
