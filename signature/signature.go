// Package signature computes context signatures and splits them into blocks.
//
// The context signature of an EQ ranks every other EQ it shares a column with
// by the Jaccard similarity of their column sets. The steepest-drop partitioner
// cuts the ranked list into contiguous blocks; blocks are the clustering
// primitive consumed by column expansion and local domain generation.
//
// Blocks reach their consumers through a Source, which streams (EQ id, blocks)
// pairs for a filter set of EQs. A Dispatcher fans one stream out to many
// consumers keyed by column membership.
package signature

import (
	"cmp"
	"slices"

	"github.com/hupe1980/d4/eqindex"
)

// Value is one entry of a context signature.
type Value struct {
	ID  uint32
	Sim float64
}

// Generator computes context signatures from an EQ index.
// It is stateless apart from the index and safe for concurrent use.
type Generator struct {
	idx *eqindex.Index
}

// NewGenerator creates a generator over idx.
func NewGenerator(idx *eqindex.Index) *Generator {
	return &Generator{idx: idx}
}

// Signature returns the ranked context signature of id: every other EQ that
// shares at least one column with id, ordered by descending Jaccard similarity
// of the column sets. Equal similarities are ordered by ascending EQ id.
func (g *Generator) Signature(id uint32) ([]Value, error) {
	eq, err := g.idx.Get(id)
	if err != nil {
		return nil, err
	}

	overlap := make(map[uint32]int)
	for cid := range eq.Columns.All() {
		col, err := g.idx.Column(cid)
		if err != nil {
			return nil, err
		}
		for node := range col.Nodes.All() {
			if node != id {
				overlap[node]++
			}
		}
	}

	size := eq.Columns.Len()
	sig := make([]Value, 0, len(overlap))
	for node, shared := range overlap {
		other, err := g.idx.Get(node)
		if err != nil {
			return nil, err
		}
		union := size + other.Columns.Len() - shared
		sig = append(sig, Value{ID: node, Sim: float64(shared) / float64(union)})
	}
	Rank(sig)
	return sig, nil
}

// Rank sorts sig by descending similarity, breaking ties by ascending id.
func Rank(sig []Value) {
	slices.SortFunc(sig, func(a, b Value) int {
		if c := cmp.Compare(b.Sim, a.Sim); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
