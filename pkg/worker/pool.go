/*
Package worker provides the bounded worker pool that executes per-file tasks.

Every task runs under its own deadline. When the deadline passes the task is
abandoned: the worker reports a timed-out result and moves on, while the
task's goroutine is left to finish on its own. A task may register OnLate to
receive the result it eventually produces.

Results are delivered on a single channel in completion order. Submit blocks
while the bounded queue is full, which gives the producer backpressure.
Recreate replaces the running workers with a fresh generation without
waiting for the old one; whatever the old generation still held is counted
as abandoned.

Basic usage:

	pool, _ := worker.NewPool(worker.Config{Workers: 4})
	pool.Start(ctx)

	pool.Submit(ctx, worker.Task{
		ID:      1,
		Path:    "/data/a.txt",
		Timeout: 30 * time.Second,
		Execute: func(ctx context.Context) (worker.Result, error) {
			return worker.Result{Data: "processed"}, nil
		},
	})

	pool.Drain(ctx, func(r worker.Result) { ... })
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Task represents a unit of work to be processed by the worker pool
type Task struct {
	// ID identifies the task in its result
	ID int

	// Path is the file the task works on
	Path string

	// Timeout bounds Execute; zero means no deadline
	Timeout time.Duration

	// Execute performs the work. It receives a context cancelled at the
	// deadline or when the pool shuts down.
	Execute func(context.Context) (Result, error)

	// OnLate, when set, receives the result of an execution that finished
	// after its deadline. It runs on the abandoned goroutine.
	OnLate func(Result)
}

// Result represents the output of a processed task
type Result struct {
	ID   int
	Path string

	// Data holds the task output
	Data interface{}

	// Err is the error returned by Execute, ErrTimeout for abandoned tasks
	Err error

	TimedOut bool

	// Late is set on results handed to OnLate
	Late bool

	Duration time.Duration
}

// Config holds the configuration for the worker pool
type Config struct {
	// Workers is the number of concurrent workers
	Workers int

	// RateLimit is the maximum number of tasks started per second (0 for unlimited)
	RateLimit int

	// QueueSize bounds the task queue; defaults to Workers*2
	QueueSize int
}

// Pool defines the interface for a worker pool
type Pool interface {
	// Start launches the first generation of workers
	Start(context.Context) error

	// Submit queues a task, blocking while the queue is full
	Submit(context.Context, Task) error

	// Results delivers outcomes in completion order
	Results() <-chan Result

	// Drain consumes results until nothing is pending
	Drain(context.Context, func(Result)) error

	// Pending counts submitted tasks whose result was not delivered yet
	Pending() int64

	// Recreate replaces the workers without waiting for the old ones and
	// returns how many tasks were abandoned
	Recreate() (int, error)

	// GetStats returns current statistics about the pool
	GetStats() Stats

	// Status returns the current status of the pool
	Status() Status

	// Stop shuts the pool down without waiting for running tasks
	Stop() error
}

type generation struct {
	id     int
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc

	// emitMu orders deliveries against retirement so every task is either
	// delivered or abandoned, never both
	emitMu  sync.Mutex
	retired bool
	pending int64
}

// pool implements the Pool interface
type pool struct {
	config  Config
	limiter *rate.Limiter
	results chan Result

	mu        sync.RWMutex
	parent    context.Context
	cancel    context.CancelFunc
	gen       *generation
	started   bool
	stopped   atomic.Bool
	startTime time.Time

	pending       atomic.Int64
	activeWorkers atomic.Int32
	completed     atomic.Int64
	failed        atomic.Int64
	timedOut      atomic.Int64
	abandoned     atomic.Int64
}

// NewPool creates a new worker pool with the given configuration
func NewPool(config Config) (Pool, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.QueueSize == 0 {
		config.QueueSize = config.Workers * 2
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &pool{
		config:  config,
		limiter: limiter,
		results: make(chan Result, config.QueueSize),
	}, nil
}

// validateConfig checks if the pool configuration is valid
func validateConfig(config Config) error {
	if config.Workers <= 0 {
		return fmt.Errorf("number of workers must be positive")
	}
	if config.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}
	if config.QueueSize < 0 {
		return fmt.Errorf("queue size must be non-negative")
	}
	return nil
}

// Start initializes and starts the worker pool
func (p *pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pool already started")
	}

	p.parent, p.cancel = context.WithCancel(ctx)
	p.started = true
	p.startTime = time.Now()
	p.gen = p.spawn(1)

	return nil
}

// spawn starts a generation of workers. Callers hold p.mu.
func (p *pool) spawn(id int) *generation {
	g := &generation{
		id:    id,
		tasks: make(chan Task, p.config.QueueSize),
	}
	g.ctx, g.cancel = context.WithCancel(p.parent)

	for i := 0; i < p.config.Workers; i++ {
		go p.worker(g)
	}
	return g
}

// Submit adds a task to the current generation. When the generation is
// replaced while Submit is blocked, the task moves to the new one.
func (p *pool) Submit(ctx context.Context, task Task) error {
	for {
		p.mu.RLock()
		started, g := p.started, p.gen
		p.mu.RUnlock()

		if !started {
			return fmt.Errorf("pool not started")
		}
		if p.stopped.Load() {
			return ErrPoolStopped
		}

		g.emitMu.Lock()
		if g.retired {
			g.emitMu.Unlock()
			continue
		}
		g.pending++
		g.emitMu.Unlock()
		p.pending.Add(1)

		select {
		case g.tasks <- task:
			return nil
		case <-ctx.Done():
			p.unqueue(g)
			return ctx.Err()
		case <-g.ctx.Done():
			p.unqueue(g)
			if p.stopped.Load() {
				return ErrPoolStopped
			}
		}
	}
}

// unqueue reverses the accounting of a Submit that never queued its task.
func (p *pool) unqueue(g *generation) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	if g.retired {
		// counted as abandoned by retire; undo that instead
		p.abandoned.Add(-1)
		return
	}
	g.pending--
	p.pending.Add(-1)
}

func (p *pool) Results() <-chan Result {
	return p.results
}

func (p *pool) Pending() int64 {
	return p.pending.Load()
}

// Drain consumes results in completion order until nothing is pending.
func (p *pool) Drain(ctx context.Context, fn func(Result)) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case r := <-p.results:
			fn(r)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.pending.Load() <= 0 && len(p.results) == 0 {
				return nil
			}
		}
	}
}

// Recreate retires the current generation and starts a new one with the
// same worker count. It does not wait for the old workers.
func (p *pool) Recreate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0, fmt.Errorf("pool not started")
	}
	if p.stopped.Load() {
		return 0, ErrPoolStopped
	}

	old := p.gen
	abandoned := p.retire(old)
	p.gen = p.spawn(old.id + 1)

	return abandoned, nil
}

// retire cancels g and writes off everything it still owes.
func (p *pool) retire(g *generation) int {
	g.cancel()

	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	if g.retired {
		return 0
	}
	g.retired = true
	n := g.pending
	g.pending = 0
	p.pending.Add(-n)
	p.abandoned.Add(n)
	return int(n)
}

// Stop shuts down the pool without waiting. Results not yet delivered are
// discarded; results already on the channel stay readable.
func (p *pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped.Swap(true) {
		return nil
	}

	p.retire(p.gen)
	p.cancel()
	return nil
}

func (p *pool) GetStats() Stats {
	p.mu.RLock()
	g := p.gen
	startTime := p.startTime
	p.mu.RUnlock()

	stats := Stats{
		ActiveWorkers:  int(p.activeWorkers.Load()),
		Pending:        p.pending.Load(),
		CompletedTasks: p.completed.Load(),
		FailedTasks:    p.failed.Load(),
		TimedOutTasks:  p.timedOut.Load(),
		AbandonedTasks: p.abandoned.Load(),
		Status:         p.Status(),
	}
	if g != nil {
		stats.QueuedTasks = len(g.tasks)
		stats.Generation = g.id
		stats.Uptime = time.Since(startTime)
	}
	return stats
}

func (p *pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped.Load() {
		return StatusStopped
	}
	if p.activeWorkers.Load() > 0 || p.pending.Load() > 0 {
		return StatusProcessing
	}
	return StatusIdle
}

// worker processes tasks of one generation until it is retired
func (p *pool) worker(g *generation) {
	for {
		select {
		case <-g.ctx.Done():
			return
		case task := <-g.tasks:
			if p.limiter != nil {
				if err := p.limiter.Wait(g.ctx); err != nil {
					return
				}
			}
			p.activeWorkers.Add(1)
			p.run(g, task)
			p.activeWorkers.Add(-1)
		}
	}
}

// run executes one task under its deadline.
func (p *pool) run(g *generation, task Task) {
	ctx, cancel := g.ctx, context.CancelFunc(func() {})
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(g.ctx, task.Timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- execute(ctx, task)
	}()

	select {
	case r := <-done:
		r.Duration = time.Since(start)
		if errors.Is(r.Err, context.DeadlineExceeded) && g.ctx.Err() == nil {
			r.TimedOut = true
		}
		p.count(r)
		p.emit(g, r)

	case <-ctx.Done():
		if g.ctx.Err() != nil {
			// generation retired, nothing to report
			return
		}
		r := Result{
			ID:       task.ID,
			Path:     task.Path,
			Err:      ErrTimeout,
			TimedOut: true,
			Duration: time.Since(start),
		}
		p.count(r)
		p.emit(g, r)

		if task.OnLate != nil {
			go func() {
				late := <-done
				if late.Err != nil {
					return
				}
				late.Late = true
				late.Duration = time.Since(start)
				task.OnLate(late)
			}()
		}
	}
}

func execute(ctx context.Context, task Task) (r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r = Result{
				ID:   task.ID,
				Path: task.Path,
				Err:  fmt.Errorf("task panic: %v\n%s", rec, debug.Stack()),
			}
		}
	}()

	res, err := task.Execute(ctx)
	res.ID = task.ID
	res.Path = task.Path
	if err != nil {
		res.Err = err
	}
	return res
}

func (p *pool) count(r Result) {
	switch {
	case r.TimedOut:
		p.timedOut.Add(1)
	case r.Err != nil:
		p.failed.Add(1)
	default:
		p.completed.Add(1)
	}
}

// emit delivers r unless g has been retired.
func (p *pool) emit(g *generation, r Result) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	if g.retired {
		return
	}

	select {
	case p.results <- r:
		g.pending--
		p.pending.Add(-1)
	case <-g.ctx.Done():
	}
}
