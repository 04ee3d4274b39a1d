/*
Package search runs one search request from start to finish.

A Session owns every piece of per-search state: the scheduler with its
visited set, the processed set, the worker pool, the gigantic-file gate
and the result list. The traversal loop feeds file batches into the pool;
a collector goroutine folds task outcomes into the session. The resource
governor and the watchdog run alongside while the session is Running.

	s := search.NewSession(search.Options{Fs: afero.NewOsFs(), Logger: log})
	if err := s.Start(ctx, search.Request{Root: "/home/ana", Keywords: []string{"invoice"}, MatchNames: true}); err != nil {
	    return err
	}
	status := s.Wait(ctx)
	for _, r := range s.Results() { ... }

State machine:

	Idle -> Running -> Stopping -> Interrupted
	                -> Completed | TimedOut | Error
	any terminal state -> Idle (Reset)
*/
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/extract"
	"github.com/sonemaro/sifter/pkg/gate"
	"github.com/sonemaro/sifter/pkg/governor"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/pathset"
	"github.com/sonemaro/sifter/pkg/scheduler"
	"github.com/sonemaro/sifter/pkg/skiplog"
	"github.com/sonemaro/sifter/pkg/watchdog"
	"github.com/sonemaro/sifter/pkg/worker"
	"github.com/spf13/afero"
)

// Options configures a Session. Only Fs is required.
type Options struct {
	Fs     afero.Fs
	Logger logger.Logger

	// Settings is called once per Start; nil uses DefaultSettings
	Settings func() (Settings, error)

	Extractors  *extract.Registry
	Confirmer   gate.Confirmer
	SkipLog     skiplog.Recorder
	Accelerator Accelerator

	// Tiers overrides the prioritization rules of requests with Prioritize set
	Tiers *scheduler.TierRules

	// Sampler overrides the governor's memory sampler
	Sampler governor.Sampler

	// OnResult is called for every new result, outside the session lock
	OnResult func(Result)

	Now func() time.Time
}

// Session is one search from Start to Reset. It is safe for concurrent use.
type Session struct {
	opts Options
	log  logger.Logger

	processed *pathset.Set

	// emit orders appends and OnResult calls
	emit sync.Mutex

	mu           sync.Mutex
	state        State
	run          *run
	results      []Result
	filesChecked int64
	truncated    int
	recoveries   int64
	notice       string
	err          error
	started      time.Time
	ended        time.Time
	idle         chan struct{}
}

// run holds the components of one Running period.
type run struct {
	id       string
	req      Request
	settings Settings

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	sched    *scheduler.Scheduler
	pool     worker.Pool
	gov      *governor.Governor
	dog      *watchdog.Watchdog
	gate     *gate.Gate
	proc     *processor
	progress *watchdog.Progress

	classifier pathclass.Classifier
	stopped    atomic.Bool
	taskSeq    atomic.Int64
	// retries counts approved files not yet handed to the pool
	retries atomic.Int64
}

// NewSession returns an Idle session.
func NewSession(opts Options) *Session {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Extractors == nil {
		opts.Extractors = extract.Default()
	}
	if opts.SkipLog == nil {
		opts.SkipLog = skiplog.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	idle := make(chan struct{})
	close(idle)

	return &Session{
		opts:      opts,
		log:       opts.Logger,
		processed: pathset.New(),
		state:     StateIdle,
		idle:      idle,
	}
}

// Start validates req, loads settings and begins the search. On error the
// session stays Idle.
func (s *Session) Start(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateRunning || s.state == StateStopping:
		return ErrAlreadyRunning
	case s.state != StateIdle:
		return ErrNotIdle
	}

	req, err := req.Validate(s.opts.Fs)
	if err != nil {
		return err
	}

	settings := DefaultSettings()
	if s.opts.Settings != nil {
		if settings, err = s.opts.Settings(); err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
	}
	if err := settings.Validate(); err != nil {
		return &ValidationError{Field: "settings", Reason: err.Error()}
	}

	r, err := s.prepare(ctx, req, settings)
	if err != nil {
		return err
	}

	s.run = r
	s.state = StateRunning
	s.started = s.opts.Now()
	s.ended = time.Time{}
	s.notice = ""
	s.err = nil

	s.log.WithFields(logger.Fields{
		"session":  r.id,
		"root":     req.Root,
		"keywords": req.Keywords,
		"workers":  req.Workers,
		"depth":    req.DepthLimit,
		"level":    req.Level.String(),
	}).Info("Search started")

	go s.execute(r)
	return nil
}

// prepare builds the components of a run. Callers hold s.mu.
func (s *Session) prepare(ctx context.Context, req Request, settings Settings) (*run, error) {
	kw, err := content.NewKeywords(req.Keywords, req.WholeWord)
	if err != nil {
		return nil, &ValidationError{Field: "keywords", Reason: err.Error()}
	}

	classifier := pathclass.Classifier{NetworkMounts: settings.NetworkMounts}
	if len(classifier.NetworkMounts) == 0 {
		classifier.NetworkMounts = pathclass.DetectNetworkMounts()
	}

	tiers := scheduler.FlatTierRules()
	if req.Prioritize {
		tiers = s.opts.Tiers
		if tiers == nil {
			home, _ := os.UserHomeDir()
			tiers = scheduler.DefaultTierRules(home)
		}
	}

	sched, err := scheduler.New(s.opts.Fs, scheduler.Config{
		Keywords:        kw,
		MatchFolders:    req.MatchFolders,
		DepthLimit:      req.DepthLimit,
		Exclusions:      append(append([]string(nil), settings.Exclusions...), req.Exclusions...),
		ExcludePatterns: req.ExcludePatterns,
		Strict:          req.Strict,
		FollowSymlinks:  req.FollowSymlinks,
		MaxFilesToCheck: req.MaxFilesToCheck,
		Tiers:           tiers,
		Classifier:      classifier,
		SampleInterval:  settings.BatchSampleInterval,
		Now:             s.opts.Now,
	}, s.log)
	if err != nil {
		return nil, &ValidationError{Field: "traversal", Reason: err.Error()}
	}

	pool, err := worker.NewPool(worker.Config{Workers: req.Workers, RateLimit: settings.RateLimit})
	if err != nil {
		return nil, &ValidationError{Field: "workers", Reason: err.Error()}
	}

	if req.FileTimeout > 0 {
		settings.Timeouts.Base = req.FileTimeout
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if req.OverallTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.OverallTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	r := &run{
		id:         uuid.NewString(),
		req:        req,
		settings:   settings,
		ctx:        runCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		sched:      sched,
		pool:       pool,
		progress:   watchdog.NewProgress(s.opts.Now),
		classifier: classifier,
	}
	log := s.log.WithFields(logger.Fields{"session": r.id})

	r.gate = gate.New(s.confirmer(), func(it gate.Item) { s.retry(r, it) }, log)
	r.gov = governor.New(settings.Memory, s.opts.Sampler, &target{s: s, r: r}, log)
	r.dog = watchdog.New(watchdog.Config{
		Interval:  settings.WatchdogInterval,
		StallTime: settings.StallTime,
		OnRecover: func(rec watchdog.Recovery) { s.recovered(r, rec) },
		Now:       s.opts.Now,
	}, r.progress, pool, log)

	_, osBacked := s.opts.Fs.(*afero.OsFs)
	r.proc = &processor{
		fs:         s.opts.Fs,
		req:        &r.req,
		settings:   &r.settings,
		kw:         kw,
		allow:      content.NewAllowList(settings.Extensions),
		extractors: s.opts.Extractors,
		processed:  s.processed,
		gate:       r.gate,
		skips:      s.opts.SkipLog,
		log:        log,
		osBacked:   osBacked,
	}

	s.idle = r.done
	return r, nil
}

// confirmer records declined files in the skip log.
func (s *Session) confirmer() gate.Confirmer {
	base := s.opts.Confirmer
	if base == nil {
		base = gate.AlwaysDecline
	}
	return gate.ConfirmFunc(func(ctx context.Context, it gate.Item) bool {
		ok := base.Confirm(ctx, it)
		if !ok && ctx.Err() == nil {
			s.recordSkip(it.Path, skiplog.CategoryDeclined, "analysis of "+pathclass.FormatSize(it.Size)+" file declined")
		}
		return ok
	})
}

// panicError marks a fault of the traversal loop.
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string { return fmt.Sprintf("traversal panic: %v", e.value) }

func (s *Session) execute(r *run) {
	defer close(r.done)

	err := s.drive(r)
	s.finish(r, err)
}

// drive runs traversal, then waits for every outstanding task and
// confirmation.
func (s *Session) drive(r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec}
		}
	}()

	if err := r.pool.Start(r.ctx); err != nil {
		return err
	}
	r.gov.Start(r.ctx)
	r.dog.Start(r.ctx)

	stopCollector := s.collect(r)
	defer stopCollector()

	traversalErr := s.traverse(r)
	stopCollector()

	if traversalErr != nil && !errors.Is(traversalErr, scheduler.ErrFileCapReached) {
		return traversalErr
	}

	for {
		if err := r.pool.Drain(r.ctx, func(res worker.Result) { s.handle(r, res) }); err != nil {
			return err
		}
		if err := r.gate.Wait(r.ctx); err != nil {
			return err
		}
		if r.pool.Pending() == 0 && r.retries.Load() == 0 {
			break
		}
	}
	return traversalErr
}

// collect handles pool results on its own goroutine while the traversal
// loop runs. The returned function stops it and waits; it may be called
// more than once.
func (s *Session) collect(r *run) func() {
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-r.pool.Results():
				s.handle(r, res)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Session) traverse(r *run) error {
	if acc := s.opts.Accelerator; acc != nil && !r.req.MatchContent && acc.Available(r.req.Root) {
		paths, err := acc.Query(r.ctx, r.req.Root, r.req.Keywords, nil)
		if err == nil {
			return s.accelerated(r, paths)
		}
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		s.log.WithFields(logger.Fields{
			"root":  r.req.Root,
			"phase": "accelerator",
			"error": err.Error(),
		}).Warn("Index query failed, falling back to traversal")
	}

	if err := r.sched.Start(r.req.Root); err != nil {
		return err
	}
	return r.sched.Run(r.ctx, &sink{s: s, r: r})
}

// accelerated re-validates indexed paths instead of walking the tree.
func (s *Session) accelerated(r *run, paths []string) error {
	sk := &sink{s: s, r: r}
	root := r.req.Root
	var files []scheduler.File

	for _, p := range paths {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		p = pathclass.Normalize(p)
		if !pathclass.HasPathPrefix(p, root) || s.excluded(r, p) {
			continue
		}
		depth := depthBelow(root, p)
		if r.req.DepthLimit > 0 && depth > r.req.DepthLimit {
			continue
		}

		info, err := s.opts.Fs.Stat(p)
		if err != nil {
			continue
		}
		f := scheduler.File{Path: p, Name: info.Name(), Info: info, Depth: depth}

		switch {
		case info.IsDir():
			if r.req.MatchFolders && r.proc.kw.MatchName(f.Name) {
				sk.FolderMatched(f)
			}
		case info.Mode().IsRegular():
			files = append(files, f)
		}
	}

	s.log.WithFields(logger.Fields{
		"root":    root,
		"indexed": len(paths),
		"files":   len(files),
	}).Debug("Using index results")

	return sk.SubmitBatch(r.ctx, files)
}

func (s *Session) excluded(r *run, p string) bool {
	for _, ex := range append(append([]string(nil), r.settings.Exclusions...), r.req.Exclusions...) {
		if pathclass.HasPathPrefix(p, pathclass.Normalize(ex)) {
			return true
		}
	}
	return false
}

func depthBelow(root, p string) int {
	n := 0
	for p != root {
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
		n++
	}
	return n
}

func (s *Session) task(r *run, f scheduler.File, retry bool) worker.Task {
	ext := content.Ext(f.Name)
	category := r.settings.Thresholds.Categorize(f.Info.Size())

	t := worker.Task{
		ID:      int(r.taskSeq.Add(1)),
		Path:    f.Path,
		Timeout: r.settings.Timeouts.For(ext, category, r.classifier.IsNetworkPath(f.Path)),
		Execute: func(ctx context.Context) (worker.Result, error) {
			res, err := r.proc.process(ctx, f, retry)
			return worker.Result{Data: res}, err
		},
	}
	if content.IsContainer(ext) {
		t.OnLate = func(res worker.Result) { s.late(r, res) }
	}
	return t
}

// retry resubmits an approved gigantic file without blocking the gate.
func (s *Session) retry(r *run, it gate.Item) {
	r.retries.Add(1)
	go func() {
		defer r.retries.Add(-1)

		info, err := s.opts.Fs.Stat(it.Path)
		if err != nil {
			s.log.WithFields(logger.Fields{"path": it.Path, "phase": "retry", "error": err.Error()}).Warn("Approved file vanished")
			return
		}
		f := scheduler.File{Path: it.Path, Name: info.Name(), Info: info}
		if err := r.pool.Submit(r.ctx, s.task(r, f, true)); err != nil {
			s.log.WithFields(logger.Fields{"path": it.Path, "phase": "retry", "error": err.Error()}).Debug("Retry not submitted")
		}
	}()
}

// handle folds one task outcome into the session.
func (s *Session) handle(r *run, res worker.Result) {
	r.progress.Touch()

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	s.filesChecked++
	s.mu.Unlock()

	switch {
	case res.TimedOut:
		s.log.WithFields(logger.Fields{
			"path":     res.Path,
			"phase":    "process",
			"duration": res.Duration.String(),
		}).Warn("File timed out")
		s.recordSkip(res.Path, skiplog.CategoryTimeout, "no result within the file deadline")
	case res.Err != nil:
		s.log.WithFields(logger.Fields{
			"path":  res.Path,
			"phase": "process",
			"error": res.Err.Error(),
		}).Warn("File processing failed")
		s.recordSkip(res.Path, skiplog.CategoryError, res.Err.Error())
	default:
		if m, ok := res.Data.(*Result); ok && m != nil {
			s.add(r, *m)
		}
	}
}

// late accepts the result of a container file that finished after its
// deadline, as long as the run was not reset.
func (s *Session) late(r *run, res worker.Result) {
	m, ok := res.Data.(*Result)
	if !ok || m == nil {
		return
	}
	s.log.WithFields(logger.Fields{"path": res.Path, "duration": res.Duration.String()}).Info("Late container result")
	s.add(r, *m)
}

func (s *Session) add(r *run, m Result) {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.run != r || !(s.state == StateRunning || s.state == StateCompleted) {
		s.mu.Unlock()
		return
	}
	s.results = append(s.results, m)
	s.mu.Unlock()

	if s.opts.OnResult != nil {
		s.opts.OnResult(m)
	}
}

func (s *Session) recordSkip(path, category, reason string) {
	if err := s.opts.SkipLog.Record(skiplog.Entry{
		Category: category,
		Name:     filepath.Base(path),
		Path:     path,
		Reason:   reason,
	}); err != nil {
		s.log.WithFields(logger.Fields{"path": path, "phase": "skiplog", "error": err.Error()}).Warn("Failed to record skipped file")
	}
}

func (s *Session) recovered(r *run, rec watchdog.Recovery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r {
		return
	}
	s.recoveries++
	s.notice = fmt.Sprintf("search stalled for %s; worker pool recreated, %d files abandoned",
		rec.Idle.Round(time.Second), rec.Abandoned)
}

// finish settles the final state and stops every loop of r.
func (s *Session) finish(r *run, err error) {
	r.pool.Stop()
	r.gate.Close()
	r.gov.Stop()
	r.dog.Stop()

	var panicked *panicError
	state := StateCompleted
	notice := ""

	switch {
	case errors.As(err, &panicked):
		state = StateError
		s.log.WithFields(logger.Fields{"session": r.id, "error": err.Error()}).Error("Search failed")
	case r.stopped.Load():
		state = StateInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		state = StateTimedOut
		notice = "overall timeout of " + r.req.OverallTimeout.String() + " reached"
	case errors.Is(err, scheduler.ErrFileCapReached):
		notice = fmt.Sprintf("stopped after checking %d files; results are incomplete", r.req.MaxFilesToCheck)
	case err != nil && !errors.Is(err, context.Canceled):
		state = StateError
		s.log.WithFields(logger.Fields{"session": r.id, "error": err.Error()}).Error("Search failed")
	case err != nil:
		state = StateInterrupted
	}
	r.cancel()

	s.mu.Lock()
	if s.run == r {
		s.state = state
		s.ended = s.opts.Now()
		if notice != "" {
			s.notice = notice
		}
		if state == StateError {
			s.err = err
		}
	}
	status := s.statusLocked()
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"session":      r.id,
		"state":        string(status.State),
		"matches":      status.Matches,
		"filesChecked": status.FilesChecked,
		"dirsChecked":  status.DirsChecked,
		"elapsed":      status.Elapsed.Round(time.Millisecond).String(),
	}).Info("Search finished")
}

// Stop requests cancellation. Block expansion halts at the next iteration
// and results collected so far are kept.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return ErrNotRunning
	}
	s.state = StateStopping
	s.run.stopped.Store(true)
	s.run.cancel()
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:        s.state,
		FilesChecked: s.filesChecked,
		Matches:      len(s.results),
		Truncated:    s.truncated,
		Recoveries:   s.recoveries,
		Notice:       s.notice,
		Err:          s.err,
	}
	if s.run != nil {
		st.ID = s.run.id
		st.DirsChecked = s.run.sched.DirsChecked()
		st.Skipped = s.run.sched.Skipped()
	}
	switch {
	case s.started.IsZero():
	case s.ended.IsZero():
		st.Elapsed = s.opts.Now().Sub(s.started)
	default:
		st.Elapsed = s.ended.Sub(s.started)
	}
	return st
}

// Results returns a copy of the results in completion order, the same order
// OnResult saw them.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Done is closed when the current run ends. It is closed already for a
// session that is not running.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// Wait blocks until the run ends or ctx is done and returns the status.
func (s *Session) Wait(ctx context.Context) Status {
	select {
	case <-s.Done():
	case <-ctx.Done():
	}
	return s.Status()
}

// Reset returns a finished session to Idle, forgetting results and every
// visited or processed path.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStopping {
		return ErrAlreadyRunning
	}
	if s.run != nil {
		s.run.sched.Reset()
	}
	s.processed.Clear()
	s.run = nil
	s.results = nil
	s.filesChecked = 0
	s.truncated = 0
	s.recoveries = 0
	s.notice = ""
	s.err = nil
	s.started, s.ended = time.Time{}, time.Time{}
	s.state = StateIdle
	return nil
}

// sink adapts the session to the scheduler.
type sink struct {
	s *Session
	r *run
}

func (k *sink) SubmitBatch(ctx context.Context, files []scheduler.File) error {
	for _, f := range files {
		if err := k.r.pool.Submit(ctx, k.s.task(k.r, f, false)); err != nil {
			return err
		}
	}
	return nil
}

func (k *sink) FolderMatched(dir scheduler.File) {
	if !k.s.processed.Add(pathclass.Canonical(dir.Path)) {
		return
	}
	k.s.add(k.r, folderResult(dir))
}

func (k *sink) BlockDone(scheduler.Block) { k.r.progress.Touch() }

// target exposes the session to the governor.
type target struct {
	s *Session
	r *run
}

func (t *target) ResultCount() int {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return len(t.s.results)
}

func (t *target) TruncateResults(keep int) int {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.run != t.r || len(t.s.results) <= keep {
		return 0
	}
	dropped := len(t.s.results) - keep
	t.s.results = t.s.results[:keep:keep]
	t.s.truncated += dropped
	t.s.notice = fmt.Sprintf("memory pressure: %d results dropped", t.s.truncated)
	return dropped
}

func (t *target) ShrinkBatch() { t.r.sched.ShrinkBatch() }
