// Package pathset implements the concurrent path sets that de-duplicate
// directories and files within a search session.
package pathset

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

type shard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a sharded set of canonical paths, safe for concurrent use.
type Set struct {
	shards [shardCount]*shard
}

// New returns an empty Set.
func New() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shardFor(path string) *shard {
	return s.shards[xxhash.Sum64String(path)%shardCount]
}

// Add inserts path and reports whether it was absent before.
func (s *Set) Add(path string) bool {
	sh := s.shardFor(path)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.items[path]; ok {
		return false
	}
	sh.items[path] = struct{}{}
	return true
}

// Contains reports whether path is present.
func (s *Set) Contains(path string) bool {
	sh := s.shardFor(path)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	_, ok := sh.items[path]
	return ok
}

// Len returns the number of stored paths.
func (s *Set) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Clear empties the set.
func (s *Set) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]struct{})
		sh.mu.Unlock()
	}
}
