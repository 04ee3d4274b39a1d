package search

import (
	"time"

	"github.com/sonemaro/sifter/pkg/scheduler"
)

// Kind tells files and directories apart in results.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// MatchedBy names the rule that produced a result.
type MatchedBy string

const (
	MatchedByName    MatchedBy = "name"
	MatchedByContent MatchedBy = "content"
	MatchedByFolder  MatchedBy = "folder"
)

// Result is one match. It is never modified after it is reported.
type Result struct {
	Kind                Kind      `json:"kind" yaml:"kind"`
	Name                string    `json:"name" yaml:"name"`
	Size                int64     `json:"size" yaml:"size"`
	SizeFormatted       string    `json:"sizeFormatted" yaml:"size_formatted"`
	ModifiedAt          time.Time `json:"modifiedAt" yaml:"modified_at"`
	CreatedAt           time.Time `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
	Path                string    `json:"path" yaml:"path"`
	FromNestedContainer bool      `json:"fromNestedContainer,omitempty" yaml:"from_nested_container,omitempty"`
	MatchedBy           MatchedBy `json:"matchedBy" yaml:"matched_by"`
	Keywords            []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// State is the lifecycle stage of a session.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateTimedOut    State = "timed_out"
	StateError       State = "error"
)

// Terminal reports whether a run has ended in s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateInterrupted, StateTimedOut, StateError:
		return true
	}
	return false
}

// Status is a snapshot of a session.
type Status struct {
	ID           string
	State        State
	FilesChecked int64
	DirsChecked  int64
	Elapsed      time.Duration
	Matches      int
	Truncated    int
	Recoveries   int64
	// Notice explains an unusual ending or a recovery
	Notice  string
	Skipped []scheduler.Skip
	Err     error
}
