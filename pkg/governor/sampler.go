package governor

import (
	"runtime"

	"github.com/pbnjay/memory"
)

// Sampler reports process memory usage and total system memory in bytes.
type Sampler interface {
	Usage() uint64
	Total() uint64
}

var totalMemory = memory.TotalMemory

// RuntimeSampler reads the Go runtime's memory statistics.
type RuntimeSampler struct {
	// total caches the first non-zero reading
	total uint64
}

// Usage approximates resident memory as memory obtained from the OS minus
// what was released back.
func (s *RuntimeSampler) Usage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys - m.HeapReleased
}

// Total returns the physical memory of the host, or 0 when unknown.
func (s *RuntimeSampler) Total() uint64 {
	if s.total == 0 {
		s.total = totalMemory()
	}
	return s.total
}
