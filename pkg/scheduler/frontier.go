package scheduler

import "container/heap"

// Block is one directory awaiting expansion.
type Block struct {
	Tier  int
	Path  string
	Depth int

	seq uint64
}

// frontier orders blocks by tier, then by arrival.
type frontier []Block

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].Tier != f[j].Tier {
		return f[i].Tier < f[j].Tier
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x interface{}) { *f = append(*f, x.(Block)) }

func (f *frontier) Pop() interface{} {
	old := *f
	n := len(old)
	b := old[n-1]
	*f = old[:n-1]
	return b
}

var _ heap.Interface = (*frontier)(nil)
