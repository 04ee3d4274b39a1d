package worker

import (
	"errors"
	"time"
)

var (
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrTimeout marks a task abandoned at its deadline.
	ErrTimeout = errors.New("task deadline exceeded")
)

// Status represents the current state of the worker pool
type Status string

const (
	// StatusIdle indicates the pool is ready but not processing
	StatusIdle Status = "idle"

	// StatusProcessing indicates the pool is actively processing tasks
	StatusProcessing Status = "processing"

	// StatusStopped indicates the pool has been stopped
	StatusStopped Status = "stopped"
)

// Stats provides runtime statistics about the worker pool
type Stats struct {
	// ActiveWorkers is the number of workers currently processing tasks
	ActiveWorkers int

	// QueuedTasks is the number of tasks waiting in the current generation
	QueuedTasks int

	// Pending counts submitted tasks whose result has not been delivered
	Pending int64

	CompletedTasks int64
	FailedTasks    int64
	TimedOutTasks  int64

	// AbandonedTasks were dropped by Recreate or Stop
	AbandonedTasks int64

	// Generation increases with every Recreate
	Generation int

	// Status is the current state of the pool
	Status Status

	// Uptime is how long the pool has been running
	Uptime time.Duration
}
