package scheduler

import (
	"errors"
	"fmt"
)

// ErrFileCapReached stops traversal once the configured file cap is hit.
var ErrFileCapReached = errors.New("file cap reached")

// PermissionError represents a directory that could not be listed for lack of access
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// ListError represents any other listing failure
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// DepthError is returned when a block at or beyond the depth limit is expanded
type DepthError struct {
	Path  string
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("depth limit %d reached at: %s", e.Limit, e.Path)
}
