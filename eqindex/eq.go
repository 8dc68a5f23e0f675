// Package eqindex holds the equivalence-class (EQ) index the discovery
// pipeline runs on.
//
// An EQ groups all literal values (terms) that occur in exactly the same set of
// columns. The index maps each EQ id to its column set, term set and term
// count, and each column id to the EQs it contains. An Index is immutable
// after construction and safe for concurrent reads.
package eqindex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/d4/internal/idset"
)

var (
	// ErrUnknownEQ is returned when an EQ id is not part of the index.
	ErrUnknownEQ = errors.New("eqindex: unknown EQ")

	// ErrUnknownColumn is returned when a column id is not part of the index.
	ErrUnknownColumn = errors.New("eqindex: unknown column")

	// ErrInconsistent is returned when EQ and column membership disagree.
	ErrInconsistent = errors.New("eqindex: inconsistent index")
)

// EQ is an equivalence class of terms.
type EQ struct {
	ID uint32
	// Columns holds the ids of all columns containing the EQ's terms.
	Columns *idset.Set
	// Terms holds the term ids collapsed into this EQ. It may be empty when
	// the index was loaded without term detail.
	Terms *idset.Set
	// TermCount is the number of terms in the EQ; it weights support counts.
	TermCount uint32
}

// Column is a snapshot of one database column as a set of EQ ids.
type Column struct {
	ID    uint32
	Name  string
	Nodes *idset.Set
}

// Term is one distinct literal value.
type Term struct {
	ID    uint32
	Value string
	EQ    uint32
}

// Index is the read-only EQ index.
type Index struct {
	eqs     []*EQ
	columns []*Column
	size    int
	sizes   []uint32
}

// NewIndex builds an index from EQs and columns. Ids may be sparse.
// When columns is empty, column membership is derived from the EQs and
// columns get empty names. Otherwise both sides must agree.
func NewIndex(eqs []EQ, columns []Column) (*Index, error) {
	idx := &Index{}

	var maxEQ uint32
	for i := range eqs {
		maxEQ = max(maxEQ, eqs[i].ID)
	}
	if len(eqs) > 0 {
		idx.eqs = make([]*EQ, int(maxEQ)+1)
		idx.sizes = make([]uint32, int(maxEQ)+1)
	}
	for i := range eqs {
		eq := eqs[i]
		if idx.eqs[eq.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate EQ %d", ErrInconsistent, eq.ID)
		}
		if eq.Columns == nil {
			eq.Columns = idset.New()
		}
		if eq.Terms == nil {
			eq.Terms = idset.New()
		}
		if eq.TermCount == 0 {
			eq.TermCount = uint32(eq.Terms.Len())
		}
		idx.eqs[eq.ID] = &eq
		idx.sizes[eq.ID] = eq.TermCount
		idx.size++
	}

	if len(columns) == 0 {
		columns = deriveColumns(idx.eqs)
	}
	var maxCol uint32
	for i := range columns {
		maxCol = max(maxCol, columns[i].ID)
	}
	if len(columns) > 0 {
		idx.columns = make([]*Column, int(maxCol)+1)
	}
	for i := range columns {
		c := columns[i]
		if idx.columns[c.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate column %d", ErrInconsistent, c.ID)
		}
		if c.Nodes == nil {
			c.Nodes = idset.New()
		}
		for node := range c.Nodes.All() {
			eq := idx.lookup(node)
			if eq == nil {
				return nil, fmt.Errorf("%w: column %d references EQ %d", ErrUnknownEQ, c.ID, node)
			}
			if !eq.Columns.Contains(c.ID) {
				return nil, fmt.Errorf("%w: column %d contains EQ %d but EQ does not list it", ErrInconsistent, c.ID, node)
			}
		}
		idx.columns[c.ID] = &c
	}
	return idx, nil
}

func deriveColumns(eqs []*EQ) []Column {
	byID := map[uint32]*idset.Set{}
	var order []uint32
	for _, eq := range eqs {
		if eq == nil {
			continue
		}
		for c := range eq.Columns.All() {
			s, ok := byID[c]
			if !ok {
				s = idset.New()
				byID[c] = s
				order = append(order, c)
			}
			s.Add(eq.ID)
		}
	}
	out := make([]Column, 0, len(order))
	for _, c := range order {
		out = append(out, Column{ID: c, Nodes: byID[c]})
	}
	return out
}

func (idx *Index) lookup(id uint32) *EQ {
	if int(id) >= len(idx.eqs) {
		return nil
	}
	return idx.eqs[id]
}

// Get returns the EQ with the given id.
func (idx *Index) Get(id uint32) (*EQ, error) {
	eq := idx.lookup(id)
	if eq == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEQ, id)
	}
	return eq, nil
}

// Contains reports whether id is an EQ of the index.
func (idx *Index) Contains(id uint32) bool {
	return idx.lookup(id) != nil
}

// TermCount returns the term count of id, or zero for unknown ids.
func (idx *Index) TermCount(id uint32) uint32 {
	if int(id) >= len(idx.sizes) {
		return 0
	}
	return idx.sizes[id]
}

// NodeSizes returns the term counts indexed by EQ id. Unknown ids have size
// zero. The returned slice must not be modified.
func (idx *Index) NodeSizes() []uint32 {
	return idx.sizes
}

// Len returns the number of EQs.
func (idx *Index) Len() int {
	return idx.size
}

// EQs returns all EQs in ascending id order.
func (idx *Index) EQs() []*EQ {
	out := make([]*EQ, 0, idx.size)
	for _, eq := range idx.eqs {
		if eq != nil {
			out = append(out, eq)
		}
	}
	return out
}

// IDs returns the set of all EQ ids.
func (idx *Index) IDs() *idset.Set {
	s := idset.New()
	for _, eq := range idx.eqs {
		if eq != nil {
			s.Add(eq.ID)
		}
	}
	return s
}

// Column returns the column with the given id.
func (idx *Index) Column(id uint32) (*Column, error) {
	if int(id) >= len(idx.columns) || idx.columns[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownColumn, id)
	}
	return idx.columns[id], nil
}

// Columns returns all columns in ascending id order.
func (idx *Index) Columns() []*Column {
	out := make([]*Column, 0, len(idx.columns))
	for _, c := range idx.columns {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Weight returns the sum of term counts over nodes.
func (idx *Index) Weight(nodes *idset.Set) uint64 {
	var w uint64
	for id := range nodes.All() {
		w += uint64(idx.TermCount(id))
	}
	return w
}
