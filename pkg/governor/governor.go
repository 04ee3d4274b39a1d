/*
Package governor keeps a search inside its memory budget.

It samples memory on a fixed interval and responds in stages. The manual
policy compares usage against a share of total RAM: first a light
collection, then a full one, then truncation of the result list. The
automatic policy tunes GC aggressiveness while a search runs and escalates
at 80% and 90% of a ceiling derived from the system.

The governor never blocks the traversal loop. It acts only through the
Target it is given.
*/
package governor

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
)

// Target is the state the governor may trim.
type Target interface {
	ResultCount() int
	// TruncateResults keeps at most keep results and returns how many were dropped
	TruncateResults(keep int) int
	ShrinkBatch()
}

// Policy selects the cleanup strategy.
type Policy int

const (
	Automatic Policy = iota
	Manual
)

func (p Policy) String() string {
	if p == Manual {
		return "manual"
	}
	return "automatic"
}

// Stage is the strongest response taken by one Check.
type Stage int

const (
	StageNone Stage = iota
	StageLight
	StageFull
	StageTruncate
)

func (s Stage) String() string {
	switch s {
	case StageLight:
		return "light"
	case StageFull:
		return "full"
	case StageTruncate:
		return "truncate"
	default:
		return "none"
	}
}

const (
	DefaultInterval  = 5 * time.Second
	DefaultResultCap = 5000
	DefaultPercent   = 0.75

	minCeiling = uint64(200 * pathclass.MB)
	maxCeiling = uint64(1000 * pathclass.MB)
)

// Config holds governor settings. Zero values select defaults.
type Config struct {
	Policy   Policy
	Interval time.Duration

	// Percent is the manual limit as a share of total RAM
	Percent float64

	// Ceiling fixes the automatic ceiling; otherwise TargetPercent of RAM,
	// or a tenth of RAM clamped to [200MB, 1000MB]
	Ceiling       uint64
	TargetPercent float64

	ResultCap int

	// RunningGCPercent applies while a search runs under the automatic policy.
	// IdleGCPercent applies once it stops; zero restores the percent that was
	// in effect before Start.
	RunningGCPercent int
	IdleGCPercent    int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Percent <= 0 || c.Percent > 1 {
		c.Percent = DefaultPercent
	}
	if c.ResultCap <= 0 {
		c.ResultCap = DefaultResultCap
	}
	if c.RunningGCPercent == 0 {
		c.RunningGCPercent = 50
	}
	return c
}

// Report describes one Check.
type Report struct {
	Usage     uint64
	Limit     uint64
	Stage     Stage
	Truncated int
}

// Governor is the memory watcher of one session.
type Governor struct {
	cfg     Config
	sampler Sampler
	target  Target
	log     logger.Logger

	// hooks replaced in tests
	gc           func()
	freeOS       func()
	setGCPercent func(int) int

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	origGC    int
	gcChanged bool
	last      Report
}

// New returns a stopped Governor. A nil sampler selects RuntimeSampler.
func New(cfg Config, sampler Sampler, target Target, log logger.Logger) *Governor {
	if sampler == nil {
		sampler = &RuntimeSampler{}
	}
	return &Governor{
		cfg:          cfg.withDefaults(),
		sampler:      sampler,
		target:       target,
		log:          log,
		gc:           runtime.GC,
		freeOS:       debug.FreeOSMemory,
		setGCPercent: debug.SetGCPercent,
	}
}

// Limit returns the byte threshold of the configured policy, or 0 when
// total memory is unknown and no ceiling is set.
func (g *Governor) Limit() uint64 {
	total := g.sampler.Total()

	if g.cfg.Policy == Manual {
		return uint64(float64(total) * g.cfg.Percent)
	}

	if g.cfg.Ceiling > 0 {
		return g.cfg.Ceiling
	}
	if g.cfg.TargetPercent > 0 && total > 0 {
		return uint64(float64(total) * g.cfg.TargetPercent)
	}
	ceiling := total / 10
	if ceiling < minCeiling {
		ceiling = minCeiling
	}
	if ceiling > maxCeiling {
		ceiling = maxCeiling
	}
	return ceiling
}

// Check samples memory once and applies the policy.
func (g *Governor) Check() Report {
	var r Report
	if g.cfg.Policy == Manual {
		r = g.checkManual()
	} else {
		r = g.checkAutomatic()
	}

	g.mu.Lock()
	g.last = r
	g.mu.Unlock()

	if r.Stage != StageNone {
		g.log.WithFields(logger.Fields{
			"policy":    g.cfg.Policy.String(),
			"stage":     r.Stage.String(),
			"usage":     pathclass.FormatSize(int64(r.Usage)),
			"limit":     pathclass.FormatSize(int64(r.Limit)),
			"truncated": r.Truncated,
		}).Warn("Memory pressure")
	}
	return r
}

func (g *Governor) checkManual() Report {
	limit := g.Limit()
	r := Report{Usage: g.sampler.Usage(), Limit: limit}
	if limit == 0 || r.Usage <= limit {
		return r
	}

	g.gc()
	r.Stage = StageLight
	r.Usage = g.sampler.Usage()
	if float64(r.Usage) <= 0.95*float64(limit) {
		return r
	}

	g.freeOS()
	r.Stage = StageFull
	r.Usage = g.sampler.Usage()

	if g.target != nil && g.target.ResultCount() > g.cfg.ResultCap {
		r.Truncated = g.target.TruncateResults(g.cfg.ResultCap)
		r.Stage = StageTruncate
	}
	return r
}

func (g *Governor) checkAutomatic() Report {
	limit := g.Limit()
	r := Report{Usage: g.sampler.Usage(), Limit: limit}

	switch {
	case float64(r.Usage) > 0.9*float64(limit):
		g.freeOS()
		r.Stage = StageFull
		if g.target != nil {
			g.target.ShrinkBatch()
			if g.target.ResultCount() > g.cfg.ResultCap {
				r.Truncated = g.target.TruncateResults(g.cfg.ResultCap)
				r.Stage = StageTruncate
			}
		}
	case float64(r.Usage) > 0.8*float64(limit):
		g.gc()
		r.Stage = StageLight
		if g.target != nil {
			g.target.ShrinkBatch()
		}
	}
	return r
}

// Last returns the most recent report.
func (g *Governor) Last() Report {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// SetRunning tunes GC aggressiveness for a running or idle search under the
// automatic policy.
func (g *Governor) SetRunning(running bool) {
	if g.cfg.Policy != Automatic {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !running {
		g.idleLocked()
		return
	}
	prev := g.setGCPercent(g.cfg.RunningGCPercent)
	if !g.gcChanged {
		g.origGC = prev
		g.gcChanged = true
	}
}

func (g *Governor) idleLocked() {
	if !g.gcChanged {
		return
	}
	if g.cfg.IdleGCPercent != 0 {
		g.setGCPercent(g.cfg.IdleGCPercent)
	} else {
		g.setGCPercent(g.origGC)
	}
	g.gcChanged = false
}

// Start runs Check on every interval until Stop or ctx ends.
func (g *Governor) Start(ctx context.Context) {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	g.SetRunning(true)

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Check()
			}
		}
	}()
}

// Stop ends the loop and leaves GC in its idle setting.
func (g *Governor) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	g.SetRunning(false)
}
