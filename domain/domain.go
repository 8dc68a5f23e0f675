// Package domain derives local domains from (expanded) columns.
//
// For every column the generator builds an undirected graph over the column's
// nodes, connecting each node with the elements of its trimmed signature
// blocks that are also part of the column. Connected components that overlap
// the column's original nodes become domain candidates. Identical node sets
// found in different columns are the same domain; the domain then lists every
// column that produced it.
package domain

import (
	"slices"
	"sync"

	"github.com/hupe1980/d4/internal/idset"
)

// Domain is a local domain.
type Domain struct {
	ID      uint32
	Nodes   *idset.Set
	Columns *idset.Set
}

// Key returns the canonical key of the node set.
func (d *Domain) Key() string {
	return d.Nodes.Key()
}

// UniqueSet deduplicates domains by node set. Register is safe for
// concurrent use.
type UniqueSet struct {
	mu    sync.Mutex
	byKey map[string]*Domain
}

// NewUniqueSet creates an empty set.
func NewUniqueSet() *UniqueSet {
	return &UniqueSet{byKey: make(map[string]*Domain)}
}

// Register adds a domain produced by column. If a domain with the same nodes
// exists, column is added to it instead. It returns the stored domain and
// whether it was created.
func (s *UniqueSet) Register(nodes *idset.Set, column uint32) (*Domain, bool) {
	key := nodes.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byKey[key]; ok {
		d.Columns.Add(column)
		return d, false
	}
	d := &Domain{
		ID:      uint32(len(s.byKey)),
		Nodes:   nodes,
		Columns: idset.New(column),
	}
	s.byKey[key] = d
	return d, true
}

// Len returns the number of distinct domains.
func (s *UniqueSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// Domains returns all domains ordered by their node sets and renumbers them
// 0..n-1 in that order, so that the ids do not depend on worker scheduling.
func (s *UniqueSet) Domains() []*Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Domain, 0, len(s.byKey))
	for _, d := range s.byKey {
		out = append(out, d)
	}
	Sort(out)
	for i, d := range out {
		d.ID = uint32(i)
	}
	return out
}

// Sort orders domains by their ascending node id sequences.
func Sort(domains []*Domain) {
	keys := make(map[*Domain][]uint32, len(domains))
	for _, d := range domains {
		keys[d] = d.Nodes.ToSlice()
	}
	slices.SortFunc(domains, func(a, b *Domain) int {
		return slices.Compare(keys[a], keys[b])
	})
}
