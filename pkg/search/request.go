package search

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/spf13/afero"
)

const (
	MinWorkers = 1
	MaxWorkers = 32
)

var (
	ErrAlreadyRunning = errors.New("search already running")
	ErrNotRunning     = errors.New("search not running")
	ErrNotIdle        = errors.New("search finished; reset the session before starting again")
)

// ValidationError reports a request that cannot start a session.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Request describes one search. A session keeps its own copy.
type Request struct {
	Root     string
	Keywords []string

	MatchNames   bool
	MatchFolders bool
	MatchContent bool
	WholeWord    bool

	// DepthLimit of 0 means unlimited
	DepthLimit int

	// Exclusions are path prefixes; ExcludePatterns are globs on names
	Exclusions      []string
	ExcludePatterns []string

	// Size and modification windows; zero values disable a bound
	MinSize        int64
	MaxSize        int64
	ModifiedAfter  time.Time
	ModifiedBefore time.Time

	// Workers of 0 selects min(8, NumCPU)
	Workers int

	// FileTimeout overrides the base per-file timeout
	FileTimeout    time.Duration
	OverallTimeout time.Duration

	Level           content.Level
	Strict          bool
	MaxFilesToCheck int64
	Prioritize      bool
	FollowSymlinks  bool
}

// DefaultWorkers returns min(8, NumCPU).
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

// Validate checks r against fs and returns the normalized copy a session
// runs with.
func (r Request) Validate(fs afero.Fs) (Request, error) {
	if strings.TrimSpace(r.Root) == "" {
		return r, &ValidationError{Field: "root", Reason: "root path is required"}
	}
	r.Root = pathclass.Normalize(r.Root)

	info, err := fs.Stat(r.Root)
	if err != nil {
		return r, &ValidationError{Field: "root", Reason: err.Error()}
	}
	if !info.IsDir() {
		return r, &ValidationError{Field: "root", Reason: r.Root + " is not a directory"}
	}

	keywords := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return r, &ValidationError{Field: "keywords", Reason: "at least one keyword is required"}
	}
	r.Keywords = keywords

	if !r.MatchNames && !r.MatchFolders && !r.MatchContent {
		return r, &ValidationError{Field: "match", Reason: "enable name, folder or content matching"}
	}
	if r.DepthLimit < 0 {
		return r, &ValidationError{Field: "depth", Reason: "depth limit must be non-negative"}
	}
	if r.MinSize < 0 || r.MaxSize < 0 {
		return r, &ValidationError{Field: "size", Reason: "sizes must be non-negative"}
	}
	if r.MaxSize > 0 && r.MinSize > r.MaxSize {
		return r, &ValidationError{Field: "size", Reason: "minimum size exceeds maximum size"}
	}
	if !r.ModifiedAfter.IsZero() && !r.ModifiedBefore.IsZero() && r.ModifiedAfter.After(r.ModifiedBefore) {
		return r, &ValidationError{Field: "modified", Reason: "modified-after is later than modified-before"}
	}
	if r.FileTimeout < 0 || r.OverallTimeout < 0 {
		return r, &ValidationError{Field: "timeout", Reason: "timeouts must be non-negative"}
	}

	switch {
	case r.Workers == 0:
		r.Workers = DefaultWorkers()
	case r.Workers < MinWorkers:
		r.Workers = MinWorkers
	case r.Workers > MaxWorkers:
		r.Workers = MaxWorkers
	}

	r.Exclusions = append([]string(nil), r.Exclusions...)
	r.ExcludePatterns = append([]string(nil), r.ExcludePatterns...)
	return r, nil
}

// inWindow applies the size and modification filters.
func (r *Request) inWindow(size int64, mod time.Time) bool {
	if size < r.MinSize {
		return false
	}
	if r.MaxSize > 0 && size > r.MaxSize {
		return false
	}
	if !r.ModifiedAfter.IsZero() && mod.Before(r.ModifiedAfter) {
		return false
	}
	if !r.ModifiedBefore.IsZero() && mod.After(r.ModifiedBefore) {
		return false
	}
	return true
}
