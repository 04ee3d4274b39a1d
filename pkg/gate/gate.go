// Package gate serializes user confirmation for gigantic files that have no
// automatic scanning strategy.
//
// Requests are confirmed one at a time in arrival order. An approval is
// remembered for the session and triggers exactly one resubmission of the
// file; a decline is remembered too, so the file is never asked about again.
package gate

import (
	"context"
	"sync"

	"github.com/sonemaro/sifter/pkg/logger"
)

// Item is a file awaiting confirmation.
type Item struct {
	Path string
	Size int64
}

// Decision is the gate's answer to a Request.
type Decision int

const (
	Pending Decision = iota
	Approved
	Declined
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Declined:
		return "declined"
	default:
		return "pending"
	}
}

// Confirmer asks whether a gigantic file should be analyzed. Confirm may
// block; ctx is cancelled when the gate closes.
type Confirmer interface {
	Confirm(ctx context.Context, it Item) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, it Item) bool

func (f ConfirmFunc) Confirm(ctx context.Context, it Item) bool { return f(ctx, it) }

var (
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, Item) bool { return true })
	AlwaysDecline Confirmer = ConfirmFunc(func(context.Context, Item) bool { return false })
)

// Gate is the confirmation queue of one session.
type Gate struct {
	confirmer Confirmer
	resubmit  func(Item)
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	queue     []Item
	queued    map[string]bool
	confirmed map[string]bool
	declined  map[string]bool
	running   bool
	closed    bool

	// outstanding counts queued items plus the one being confirmed
	outstanding int
	idle        chan struct{}
}

// New returns a Gate. resubmit is called once per approved file.
func New(c Confirmer, resubmit func(Item), log logger.Logger) *Gate {
	if c == nil {
		c = AlwaysDecline
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		confirmer: c,
		resubmit:  resubmit,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		queued:    make(map[string]bool),
		confirmed: make(map[string]bool),
		declined:  make(map[string]bool),
	}
}

// Request returns the remembered decision for it.Path, or queues the file
// for confirmation and returns Pending.
func (g *Gate) Request(it Item) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.confirmed[it.Path]:
		return Approved
	case g.declined[it.Path] || g.closed:
		return Declined
	case g.queued[it.Path]:
		return Pending
	}

	g.queued[it.Path] = true
	g.queue = append(g.queue, it)
	g.outstanding++

	if !g.running {
		g.running = true
		go g.loop()
	}
	return Pending
}

func (g *Gate) loop() {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 || g.closed {
			g.running = false
			g.mu.Unlock()
			return
		}
		it := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()

		g.decide(it)
	}
}

func (g *Gate) decide(it Item) {
	defer g.finish(1)

	ok := g.confirmer.Confirm(g.ctx, it)

	g.mu.Lock()
	delete(g.queued, it.Path)
	if g.closed {
		g.mu.Unlock()
		return
	}
	if ok {
		g.confirmed[it.Path] = true
	} else {
		g.declined[it.Path] = true
	}
	g.mu.Unlock()

	g.log.WithFields(logger.Fields{
		"path":     it.Path,
		"size":     it.Size,
		"approved": ok,
	}).Info("Gigantic file confirmation")

	if ok && g.resubmit != nil {
		g.resubmit(it)
	}
}

// Pending returns the number of files waiting for or undergoing confirmation.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queued)
}

func (g *Gate) finish(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.outstanding -= n
	if g.outstanding == 0 && g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

// Wait blocks until every queued file has been decided.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.outstanding == 0 {
		g.mu.Unlock()
		return nil
	}
	if g.idle == nil {
		g.idle = make(chan struct{})
	}
	idle := g.idle
	g.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops queued files and cancels a running confirmation. Later
// requests are declined.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	dropped := len(g.queue)
	for _, it := range g.queue {
		delete(g.queued, it.Path)
	}
	g.queue = nil
	g.mu.Unlock()

	g.finish(dropped)
	g.cancel()
}
