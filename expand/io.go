package expand

import (
	"fmt"
	"io"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
)

// WriteColumns writes one record per expanded column: id, original ids,
// expansion ids.
func WriteColumns(w io.Writer, name string, cols []*ExpandedColumn) error {
	sink, err := eqindex.NewSink(w, name)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := sink.Write(eqindex.FormatID(c.ID), c.Original.Key(), c.Expansion.Key()); err != nil {
			return err
		}
	}
	return sink.Close()
}

// ReadColumns reads a file written by WriteColumns. A record with an empty
// original set, an expansion overlapping its original set, or a repeated
// column id is rejected with a RecordError.
func ReadColumns(r io.Reader, name string) ([]*ExpandedColumn, error) {
	var out []*ExpandedColumn
	seen := idset.New()
	err := eqindex.Records(r, name, 3, func(f []string) error {
		id, err := eqindex.ParseID(f[0])
		if err != nil {
			return err
		}
		orig, err := idset.Parse(f[1])
		if err != nil {
			return err
		}
		exp, err := idset.Parse(f[2])
		if err != nil {
			return err
		}
		switch {
		case seen.Contains(id):
			return fmt.Errorf("%w: duplicate column %d", textio.ErrMalformedRecord, id)
		case orig.IsEmpty():
			return fmt.Errorf("%w: column %d without original nodes", textio.ErrMalformedRecord, id)
		case orig.Intersects(exp):
			return fmt.Errorf("%w: column %d expansion overlaps original nodes", textio.ErrMalformedRecord, id)
		}
		seen.Add(id)
		out = append(out, &ExpandedColumn{ID: id, Original: orig, Expansion: exp})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FromIndex returns the columns of idx without expansion.
func FromIndex(idx *eqindex.Index) []*ExpandedColumn {
	cols := idx.Columns()
	out := make([]*ExpandedColumn, len(cols))
	for i, c := range cols {
		out[i] = NewExpandedColumn(c.ID, c.Nodes.Clone())
	}
	return out
}
