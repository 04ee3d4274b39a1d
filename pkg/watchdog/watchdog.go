// Package watchdog detects a stalled search and recovers by recreating the
// worker pool.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonemaro/sifter/pkg/logger"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultStallTime = 180 * time.Second
)

// Progress is the shared last-progress timestamp. The traversal loop touches
// it after each block and the session after each completed task.
type Progress struct {
	last atomic.Int64
	now  func() time.Time
}

// NewProgress returns a Progress stamped with now().
func NewProgress(now func() time.Time) *Progress {
	if now == nil {
		now = time.Now
	}
	p := &Progress{now: now}
	p.Touch()
	return p
}

func (p *Progress) Touch() { p.last.Store(p.now().UnixNano()) }

func (p *Progress) Last() time.Time { return time.Unix(0, p.last.Load()) }

// Recoverer replaces a stalled pool. Recreate returns the number of
// abandoned tasks.
type Recoverer interface {
	Recreate() (int, error)
}

// Recovery describes one pool recreation.
type Recovery struct {
	At        time.Time
	Idle      time.Duration
	Abandoned int
	Err       error
}

type Config struct {
	Interval  time.Duration
	StallTime time.Duration

	// OnRecover publishes a recovery status
	OnRecover func(Recovery)

	Now func() time.Time
}

type Watchdog struct {
	cfg      Config
	progress *Progress
	target   Recoverer
	log      logger.Logger

	recoveries atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, progress *Progress, target Recoverer, log logger.Logger) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StallTime <= 0 {
		cfg.StallTime = DefaultStallTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watchdog{cfg: cfg, progress: progress, target: target, log: log}
}

// Check recreates the pool when no progress was made for longer than the
// stall time. It reports whether a recovery happened.
func (w *Watchdog) Check() bool {
	now := w.cfg.Now()
	idle := now.Sub(w.progress.Last())
	if idle <= w.cfg.StallTime {
		return false
	}

	abandoned, err := w.target.Recreate()
	w.progress.Touch()
	w.recoveries.Add(1)

	fields := logger.Fields{
		"idle":      idle.Round(time.Second).String(),
		"abandoned": abandoned,
	}
	if err != nil {
		fields["error"] = err.Error()
		w.log.WithFields(fields).Error("Worker pool recreation failed")
	} else {
		w.log.WithFields(fields).Warn("Search stalled, worker pool recreated")
	}

	if w.cfg.OnRecover != nil {
		w.cfg.OnRecover(Recovery{At: now, Idle: idle, Abandoned: abandoned, Err: err})
	}
	return true
}

// Recoveries returns how many times the pool was recreated.
func (w *Watchdog) Recoveries() int64 { return w.recoveries.Load() }

// Start runs Check every interval until Stop or ctx ends.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}(w.done)
}

// Stop ends the loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
