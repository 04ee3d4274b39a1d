package scheduler

import (
	"sync"
	"time"
)

const (
	MinBatch     = 100
	MaxBatch     = 5000
	DefaultBatch = 500
	// RemoteBatch amortizes per-call overhead on network and system roots.
	RemoteBatch = 2000

	DefaultSampleInterval = 30 * time.Second

	slowFilesPerSecond = 10
	fastFilesPerSecond = 1000
)

// BatchSizer adapts the file batch size to measured throughput.
type BatchSizer struct {
	mu       sync.Mutex
	size     int
	interval time.Duration
	since    time.Time
	counted  int64
}

// NewBatchSizer clamps initial to [MinBatch, MaxBatch].
func NewBatchSizer(initial int, interval time.Duration, now time.Time) *BatchSizer {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &BatchSizer{
		size:     clampBatch(initial),
		interval: interval,
		since:    now,
	}
}

func clampBatch(n int) int {
	if n < MinBatch {
		return MinBatch
	}
	if n > MaxBatch {
		return MaxBatch
	}
	return n
}

// Size returns the current batch size.
func (b *BatchSizer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Observe records files handed off at now. Once a sample interval has
// elapsed the size is halved below 10 files/s or doubled above 1000 files/s.
// It returns the new size and whether it changed.
func (b *BatchSizer) Observe(now time.Time, files int) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counted += int64(files)
	elapsed := now.Sub(b.since)
	if elapsed < b.interval {
		return b.size, false
	}

	rate := float64(b.counted) / elapsed.Seconds()
	b.counted = 0
	b.since = now

	old := b.size
	switch {
	case rate < slowFilesPerSecond:
		b.size = clampBatch(b.size / 2)
	case rate > fastFilesPerSecond:
		b.size = clampBatch(b.size * 2)
	}
	return b.size, b.size != old
}

// Shrink halves the batch size.
func (b *BatchSizer) Shrink() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.size = clampBatch(b.size / 2)
	return b.size
}
