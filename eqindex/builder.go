package eqindex

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/d4/internal/conv"
	"github.com/hupe1980/d4/internal/idset"
)

// BuilderOptions controls how raw column values become terms.
type BuilderOptions struct {
	// MinColumnSize drops columns with fewer distinct terms.
	MinColumnSize int
	// CaseSensitive keeps values as read; otherwise values are lower-cased.
	CaseSensitive bool
	// MaxValueLength drops longer values (0 means unlimited).
	MaxValueLength int
}

// DefaultBuilderOptions are used by NewBuilder when no options are given.
var DefaultBuilderOptions = BuilderOptions{
	MinColumnSize:  1,
	MaxValueLength: 512,
}

// Builder collects (column, value) pairs and groups the resulting terms into
// EQs. It is not safe for concurrent use.
type Builder struct {
	opts     BuilderOptions
	colNames []string
	colIDs   map[string]uint32
	colTerms []map[string]struct{}
	values   map[string]*idset.Set
}

// NewBuilder creates a builder.
func NewBuilder(optFns ...func(*BuilderOptions)) *Builder {
	opts := DefaultBuilderOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Builder{
		opts:   opts,
		colIDs: make(map[string]uint32),
		values: make(map[string]*idset.Set),
	}
}

// Normalize returns the term for a raw value and whether it is kept.
func (b *Builder) Normalize(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	if b.opts.MaxValueLength > 0 && len(v) > b.opts.MaxValueLength {
		return "", false
	}
	if !b.opts.CaseSensitive {
		v = strings.ToLower(v)
	}
	return v, true
}

// Add records that value occurs in column. Columns get ids in first-seen order.
func (b *Builder) Add(column, value string) {
	cid, ok := b.colIDs[column]
	if !ok {
		cid = uint32(len(b.colNames))
		b.colIDs[column] = cid
		b.colNames = append(b.colNames, column)
		b.colTerms = append(b.colTerms, make(map[string]struct{}))
	}
	term, ok := b.Normalize(value)
	if !ok {
		return
	}
	b.colTerms[cid][term] = struct{}{}
	cols, ok := b.values[term]
	if !ok {
		cols = idset.New()
		b.values[term] = cols
	}
	cols.Add(cid)
}

// Build returns the index and its term dictionary.
//
// Columns below MinColumnSize are dropped and the remaining columns are
// renumbered densely in first-seen order. Term ids follow the sorted term
// values; EQ ids follow the sorted canonical column-set keys. The result is
// therefore independent of the order in which values were added.
func (b *Builder) Build() (*Index, []Term, error) {
	keep := make([]int64, len(b.colNames))
	var next int64
	for cid := range b.colNames {
		if len(b.colTerms[cid]) < max(b.opts.MinColumnSize, 1) {
			keep[cid] = -1
			continue
		}
		keep[cid] = next
		next++
	}

	values := make([]string, 0, len(b.values))
	remapped := make(map[string]*idset.Set, len(b.values))
	for v, cols := range b.values {
		s := idset.New()
		for c := range cols.All() {
			if keep[c] >= 0 {
				s.Add(uint32(keep[c]))
			}
		}
		if s.IsEmpty() {
			continue
		}
		remapped[v] = s
		values = append(values, v)
	}
	slices.Sort(values)
	if _, err := conv.IntToUint32(len(values)); err != nil {
		return nil, nil, fmt.Errorf("eqindex: too many terms: %w", err)
	}

	// Group terms by column set.
	groups := make(map[string][]uint32)
	groupCols := make(map[string]*idset.Set)
	terms := make([]Term, len(values))
	for tid, v := range values {
		cols := remapped[v]
		key := cols.Key()
		groups[key] = append(groups[key], uint32(tid))
		groupCols[key] = cols
		terms[tid] = Term{ID: uint32(tid), Value: v}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	eqs := make([]EQ, len(keys))
	colNodes := make([]*idset.Set, next)
	for i := range colNodes {
		colNodes[i] = idset.New()
	}
	for eid, key := range keys {
		tids := groups[key]
		for _, tid := range tids {
			terms[tid].EQ = uint32(eid)
		}
		cols := groupCols[key]
		for c := range cols.All() {
			colNodes[c].Add(uint32(eid))
		}
		eqs[eid] = EQ{
			ID:        uint32(eid),
			Columns:   cols,
			Terms:     idset.FromSlice(tids),
			TermCount: uint32(len(tids)),
		}
	}

	columns := make([]Column, 0, next)
	for cid, name := range b.colNames {
		if keep[cid] < 0 {
			continue
		}
		nid := uint32(keep[cid])
		columns = append(columns, Column{ID: nid, Name: name, Nodes: colNodes[nid]})
	}

	idx, err := NewIndex(eqs, columns)
	if err != nil {
		return nil, nil, err
	}
	return idx, terms, nil
}
