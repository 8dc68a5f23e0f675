// Package unionfind implements a disjoint-set forest over sparse uint32 ids
// with path compression and union by rank.
package unionfind

import (
	"slices"
)

// Forest is a disjoint-set forest. It is not safe for concurrent use.
type Forest struct {
	parent map[uint32]uint32
	rank   map[uint32]uint8
}

// New creates an empty forest.
func New() *Forest {
	return &Forest{
		parent: make(map[uint32]uint32),
		rank:   make(map[uint32]uint8),
	}
}

// Add inserts id as a singleton if it is not present.
func (f *Forest) Add(id uint32) {
	if _, ok := f.parent[id]; !ok {
		f.parent[id] = id
	}
}

// Find returns the representative of id's set, adding id if necessary.
func (f *Forest) Find(id uint32) uint32 {
	f.Add(id)
	root := id
	for f.parent[root] != root {
		root = f.parent[root]
	}
	for id != root {
		next := f.parent[id]
		f.parent[id] = root
		id = next
	}
	return root
}

// Union merges the sets of a and b.
func (f *Forest) Union(a, b uint32) {
	ra, rb := f.Find(a), f.Find(b)
	if ra == rb {
		return
	}
	switch {
	case f.rank[ra] < f.rank[rb]:
		f.parent[ra] = rb
	case f.rank[ra] > f.rank[rb]:
		f.parent[rb] = ra
	default:
		f.parent[rb] = ra
		f.rank[ra]++
	}
}

// Len returns the number of ids in the forest.
func (f *Forest) Len() int {
	return len(f.parent)
}

// Components returns every set as an ascending id slice. Components are
// ordered by their smallest member, so the result is deterministic.
func (f *Forest) Components() [][]uint32 {
	groups := make(map[uint32][]uint32)
	for id := range f.parent {
		root := f.Find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([][]uint32, 0, len(groups))
	for _, members := range groups {
		slices.Sort(members)
		out = append(out, members)
	}
	slices.SortFunc(out, func(a, b []uint32) int {
		return int(int64(a[0]) - int64(b[0]))
	})
	return out
}
