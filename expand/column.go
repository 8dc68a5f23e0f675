package expand

import (
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/threshold"
	"github.com/hupe1980/d4/trim"
)

// ExpandedColumn is a column together with the EQs added by expansion.
// Original never changes; Expansion only grows and stays disjoint from
// Original.
type ExpandedColumn struct {
	ID        uint32
	Original  *idset.Set
	Expansion *idset.Set
}

// NewExpandedColumn creates a column without expansion.
func NewExpandedColumn(id uint32, original *idset.Set) *ExpandedColumn {
	return &ExpandedColumn{ID: id, Original: original, Expansion: idset.New()}
}

// Nodes returns Original ∪ Expansion.
func (c *ExpandedColumn) Nodes() *idset.Set {
	return idset.Union(c.Original, c.Expansion)
}

// IsOriginal reports whether id is an original member.
func (c *ExpandedColumn) IsOriginal(id uint32) bool {
	return c.Original.Contains(id)
}

// SupportCounter accumulates the term-weighted support of one candidate EQ.
type SupportCounter struct {
	// Original is contributed by original column members.
	Original uint64
	// Expansion is contributed by members added in earlier rounds.
	Expansion uint64
}

// Total returns Original + Expansion.
func (s SupportCounter) Total() uint64 {
	return s.Original + s.Expansion
}

// state is the mutable per-column expansion state. Consume may be called
// from several workers at once; all other methods run between rounds.
type state struct {
	col    *ExpandedColumn
	weight uint64 // term weight of the original nodes

	mu         sync.Mutex
	members    *bitset.BitSet
	expWeight  uint64
	candidates map[uint32]*SupportCounter
	trimmer    trim.Trimmer
	sizes      []uint32
	done       bool
}

func newState(col *ExpandedColumn, sizes []uint32, weight uint64) *state {
	var top uint32
	if !col.Original.IsEmpty() {
		top = col.Original.Max()
	}
	members := bitset.New(uint(top) + 1)
	for id := range col.Original.All() {
		members.Set(uint(id))
	}
	s := &state{
		col:        col,
		weight:     weight,
		members:    members,
		candidates: make(map[uint32]*SupportCounter),
		sizes:      sizes,
	}
	for id := range col.Expansion.All() {
		s.members.Set(uint(id))
		s.expWeight += s.size(id)
	}
	return s
}

func (s *state) size(id uint32) uint64 {
	if int(id) >= len(s.sizes) {
		return 0
	}
	return uint64(s.sizes[id])
}

// contains tests membership in Original ∪ Expansion. The bitset grows as ids
// are added, so ids beyond its length are simply absent.
func (s *state) contains(id uint32) bool {
	return s.members.Test(uint(id))
}

// consume adds the support of one member EQ for every block element that is
// not yet part of the column.
func (s *state) consume(eq uint32, blocks []signature.Block) {
	blocks = s.trimmer.Trim(blocks)
	if len(blocks) == 0 {
		return
	}
	w := s.size(eq)
	original := s.col.IsOriginal(eq)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		for _, id := range b.Elements {
			if s.contains(id) {
				continue
			}
			c, ok := s.candidates[id]
			if !ok {
				c = &SupportCounter{}
				s.candidates[id] = c
			}
			if original {
				c.Original += w
			} else {
				c.Expansion += w
			}
		}
	}
}

// close evaluates the candidates of a finished round and adds the qualifying
// ones in one batch. It returns the added nodes in ascending order.
func (s *state) close(entry, base threshold.Threshold) []uint32 {
	overall := s.weight + s.expWeight
	var added []uint32
	for id, c := range s.candidates {
		if !entry.IsSatisfied(float64(c.Original) / float64(s.weight)) {
			continue
		}
		if !base.IsSatisfied(float64(c.Total()) / float64(overall)) {
			continue
		}
		added = append(added, id)
	}
	slices.Sort(added)
	for _, id := range added {
		s.members.Set(uint(id))
		s.col.Expansion.Add(id)
		s.expWeight += s.size(id)
	}
	clear(s.candidates)
	return added
}
