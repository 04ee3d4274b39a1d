/*
Package scheduler turns a directory tree into prioritized blocks of work.

A block is one directory's immediate listing. Blocks wait in a frontier
ordered by tier (lower first) and, within a tier, by arrival. Expanding a
block enqueues its subfolders one level deeper, reports folders whose name
matches the keywords, and hands the files to a Sink in batches.

Basic usage:

	s, err := scheduler.New(fs, scheduler.Config{DepthLimit: 3}, log)
	if err := s.Start("/home/user"); err != nil { ... }
	err = s.Run(ctx, sink)
*/
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/pathset"
	"github.com/spf13/afero"
)

// Config contains traversal options
type Config struct {
	// Keywords is required when MatchFolders is set
	Keywords     *content.Keywords
	MatchFolders bool

	// DepthLimit of 0 means unlimited
	DepthLimit int

	// Exclusions are path prefixes; ExcludePatterns are globs on entry names
	Exclusions      []string
	ExcludePatterns []string

	// Strict records the reason for every block skipped on a listing failure
	Strict bool

	FollowSymlinks  bool
	MaxFilesToCheck int64

	// Tiers defaults to FlatTierRules
	Tiers      *TierRules
	Classifier pathclass.Classifier

	// InitialBatch of 0 picks DefaultBatch or RemoteBatch from the root
	InitialBatch   int
	SampleInterval time.Duration

	Now func() time.Time
}

// File is a regular file found while expanding a block.
type File struct {
	Path  string
	Name  string
	Info  os.FileInfo
	Depth int
}

// Expansion is the outcome of listing one block.
type Expansion struct {
	Children []Block
	Files    []File
	// Folders are subfolders whose name matches the keywords
	Folders []File
}

// Skip records a block that was not expanded.
type Skip struct {
	Path   string
	Reason string
}

// Sink receives the products of traversal.
type Sink interface {
	// SubmitBatch may block to apply backpressure
	SubmitBatch(ctx context.Context, files []File) error
	FolderMatched(dir File)
	BlockDone(b Block)
}

// Scheduler owns the frontier and the visited set of one session.
type Scheduler struct {
	fs  afero.Fs
	cfg Config
	log logger.Logger

	mu       sync.Mutex
	frontier frontier
	seq      uint64
	skipped  []Skip

	visited    *pathset.Set
	exclusions []string
	patterns   []glob.Glob
	batch      *BatchSizer

	filesSeen   atomic.Int64
	dirsChecked atomic.Int64
}

// New validates cfg and returns a Scheduler with an empty frontier.
func New(fs afero.Fs, cfg Config, log logger.Logger) (*Scheduler, error) {
	if cfg.MatchFolders && cfg.Keywords == nil {
		return nil, fmt.Errorf("folder matching requires keywords")
	}
	if cfg.DepthLimit < 0 {
		return nil, fmt.Errorf("depth limit must be non-negative")
	}
	if cfg.Tiers == nil {
		cfg.Tiers = FlatTierRules()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		fs:      fs,
		cfg:     cfg,
		log:     log,
		visited: pathset.New(),
	}

	for _, ex := range cfg.Exclusions {
		if ex = strings.TrimSpace(ex); ex != "" {
			s.exclusions = append(s.exclusions, pathclass.Normalize(ex))
		}
	}
	for _, p := range cfg.ExcludePatterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, g)
	}

	return s, nil
}

// Start seeds the frontier with root at depth 0.
func (s *Scheduler) Start(root string) error {
	root = pathclass.Normalize(root)

	info, err := s.fs.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}

	initial := s.cfg.InitialBatch
	if initial == 0 {
		initial = DefaultBatch
		if s.cfg.Classifier.IsNetworkPath(root) || pathclass.IsSystemRoot(root) {
			initial = RemoteBatch
		}
	}
	s.batch = NewBatchSizer(initial, s.cfg.SampleInterval, s.cfg.Now())

	s.push(root, 0)

	s.log.WithFields(logger.Fields{
		"root":       root,
		"depthLimit": s.cfg.DepthLimit,
		"batch":      s.batch.Size(),
	}).Debug("Traversal seeded")
	return nil
}

func (s *Scheduler) push(path string, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	heap.Push(&s.frontier, Block{
		Tier:  s.cfg.Tiers.TierOf(path),
		Path:  path,
		Depth: depth,
		seq:   s.seq,
	})
}

// Next pops the lowest-tier block.
func (s *Scheduler) Next() (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frontier) == 0 {
		return Block{}, false
	}
	return heap.Pop(&s.frontier).(Block), true
}

// Pending returns the number of blocks in the frontier.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frontier)
}

// Expand lists b. A block whose canonical path was already expanded yields
// an empty Expansion.
func (s *Scheduler) Expand(ctx context.Context, b Block) (Expansion, error) {
	if s.cfg.DepthLimit > 0 && b.Depth >= s.cfg.DepthLimit {
		return Expansion{}, &DepthError{Path: b.Path, Limit: s.cfg.DepthLimit}
	}
	if !s.visited.Add(pathclass.Canonical(b.Path)) {
		s.log.WithFields(logger.Fields{"path": b.Path}).Trace("Directory already visited")
		return Expansion{}, nil
	}

	entries, err := afero.ReadDir(s.fs, b.Path)
	if err != nil {
		if errors.Is(err, iofs.ErrPermission) {
			return Expansion{}, &PermissionError{Path: b.Path, Err: err}
		}
		return Expansion{}, &ListError{Path: b.Path, Err: err}
	}
	s.dirsChecked.Add(1)

	var exp Expansion
	childDepth := b.Depth + 1

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return exp, err
		}

		name := entry.Name()
		childPath := filepath.Join(b.Path, name)

		if s.excluded(childPath, name) {
			s.log.WithFields(logger.Fields{"path": childPath}).Trace("Excluded")
			continue
		}

		info := entry
		if info.Mode()&os.ModeSymlink != 0 {
			if !s.cfg.FollowSymlinks {
				continue
			}
			target, err := s.fs.Stat(childPath)
			if err != nil {
				s.log.WithFields(logger.Fields{"path": childPath, "error": err}).Trace("Dangling symlink")
				continue
			}
			info = target
		}

		if !info.IsDir() {
			if info.Mode().IsRegular() {
				exp.Files = append(exp.Files, File{Path: childPath, Name: name, Info: info, Depth: childDepth})
			}
			continue
		}

		if problematic(b.Path, name) {
			s.log.WithFields(logger.Fields{"path": childPath}).Trace("Skipping problematic directory")
			continue
		}

		if s.cfg.MatchFolders && s.cfg.Keywords.MatchName(name) {
			exp.Folders = append(exp.Folders, File{Path: childPath, Name: name, Info: info, Depth: childDepth})
		}

		if s.cfg.DepthLimit > 0 && childDepth >= s.cfg.DepthLimit {
			s.log.WithFields(logger.Fields{
				"path":  childPath,
				"depth": childDepth,
			}).Trace("Depth limit reached")
			continue
		}
		exp.Children = append(exp.Children, Block{Path: childPath, Depth: childDepth})
	}

	return exp, nil
}

// Run drives the single traversal loop until the frontier is exhausted, ctx
// is cancelled, the sink fails or the file cap is reached.
func (s *Scheduler) Run(ctx context.Context, sink Sink) error {
	if s.batch == nil {
		return fmt.Errorf("scheduler not started")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, ok := s.Next()
		if !ok {
			return nil
		}

		s.log.WithFields(logger.Fields{
			"path":  b.Path,
			"tier":  b.Tier,
			"depth": b.Depth,
		}).Trace("Expanding block")

		exp, err := s.Expand(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.listFailed(b, err)
			sink.BlockDone(b)
			continue
		}

		for _, dir := range exp.Folders {
			sink.FolderMatched(dir)
		}

		if err := s.submit(ctx, exp.Files, sink); err != nil {
			return err
		}

		for _, child := range exp.Children {
			s.push(child.Path, child.Depth)
		}
		sink.BlockDone(b)
	}
}

func (s *Scheduler) submit(ctx context.Context, files []File, sink Sink) error {
	for len(files) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := s.batch.Size()
		if n > len(files) {
			n = len(files)
		}

		capped := false
		if limit := s.cfg.MaxFilesToCheck; limit > 0 {
			remaining := limit - s.filesSeen.Load()
			if remaining <= 0 {
				return ErrFileCapReached
			}
			if int64(n) > remaining {
				n = int(remaining)
				capped = true
			}
		}

		batch := files[:n]
		files = files[n:]

		if err := sink.SubmitBatch(ctx, batch); err != nil {
			return err
		}
		s.filesSeen.Add(int64(n))

		if size, changed := s.batch.Observe(s.cfg.Now(), n); changed {
			s.log.WithFields(logger.Fields{"batch": size}).Debug("Batch size adjusted")
		}

		if capped {
			return ErrFileCapReached
		}
	}
	return nil
}

func (s *Scheduler) listFailed(b Block, err error) {
	var perm *PermissionError
	var depth *DepthError

	switch {
	case errors.As(err, &depth):
		s.log.WithFields(logger.Fields{"path": b.Path}).Trace(err.Error())
		return
	case errors.As(err, &perm):
		s.log.WithFields(logger.Fields{
			"path":  b.Path,
			"phase": "list",
		}).Warn("Permission denied")
		if !s.cfg.Strict {
			return
		}
	default:
		s.log.WithFields(logger.Fields{
			"path":  b.Path,
			"phase": "list",
			"error": err,
		}).Warn("Failed to read directory")
	}

	s.mu.Lock()
	s.skipped = append(s.skipped, Skip{Path: b.Path, Reason: err.Error()})
	s.mu.Unlock()
}

func (s *Scheduler) excluded(path, name string) bool {
	for _, ex := range s.exclusions {
		if pathclass.HasPathPrefix(path, ex) {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, g := range s.patterns {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

var problematicNames = map[string]bool{
	"$recycle.bin":              true,
	"system volume information": true,
	"lost+found":                true,
	".trash":                    true,
	".trashes":                  true,
	".spotlight-v100":           true,
	".fseventsd":                true,
	"config.msi":                true,
}

var problematicAtRoot = map[string]bool{
	"proc": true,
	"sys":  true,
	"dev":  true,
	"run":  true,
}

func problematic(parent, name string) bool {
	lower := strings.ToLower(name)
	if problematicNames[lower] {
		return true
	}
	return pathclass.IsSystemRoot(parent) && problematicAtRoot[lower]
}

// Batch exposes the adaptive batch sizer.
func (s *Scheduler) Batch() *BatchSizer { return s.batch }

// ShrinkBatch halves the batch size under memory pressure.
func (s *Scheduler) ShrinkBatch() {
	if s.batch == nil {
		return
	}
	size := s.batch.Shrink()
	s.log.WithFields(logger.Fields{"batch": size}).Debug("Batch size shrunk")
}

// FilesSeen counts files handed to the sink.
func (s *Scheduler) FilesSeen() int64 { return s.filesSeen.Load() }

// DirsChecked counts directories listed successfully.
func (s *Scheduler) DirsChecked() int64 { return s.dirsChecked.Load() }

// Skipped returns the blocks skipped on listing failures. Permission
// failures appear only in strict mode.
func (s *Scheduler) Skipped() []Skip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Skip, len(s.skipped))
	copy(out, s.skipped)
	return out
}

// Reset empties the frontier and forgets visited directories.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.frontier = nil
	s.skipped = nil
	s.seq = 0
	s.mu.Unlock()

	s.visited.Clear()
	s.filesSeen.Store(0)
	s.dirsChecked.Store(0)
}
