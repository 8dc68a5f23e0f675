package expand

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/threshold"
	"github.com/hupe1980/d4/trim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleIndex(t *testing.T) *eqindex.Index {
	t.Helper()
	idx, err := eqindex.NewIndex([]eqindex.EQ{
		{ID: 1, Columns: idset.New(0, 1), TermCount: 1},
		{ID: 2, Columns: idset.New(0, 1), TermCount: 1},
		{ID: 3, Columns: idset.New(0), TermCount: 1},
		{ID: 4, Columns: idset.New(1), TermCount: 1},
	}, nil)
	require.NoError(t, err)
	return idx
}

// chainFixture has column 0 = {0,1,2,3}. EQ 4 is supported by every member;
// EQ 5 by half of them plus EQ 4, so it only enters once the entry threshold
// has been loosened.
func chainFixture(t *testing.T, pool *workpool.Pool) (*eqindex.Index, *signature.Store) {
	t.Helper()
	idx, err := eqindex.NewIndex([]eqindex.EQ{
		{ID: 0, Columns: idset.New(0), TermCount: 1},
		{ID: 1, Columns: idset.New(0), TermCount: 1},
		{ID: 2, Columns: idset.New(0), TermCount: 1},
		{ID: 3, Columns: idset.New(0), TermCount: 1},
		{ID: 4, Columns: idset.New(1), TermCount: 1},
		{ID: 5, Columns: idset.New(1), TermCount: 1},
	}, nil)
	require.NoError(t, err)

	store := signature.NewStore(pool)
	for eq, elems := range map[uint32][]uint32{
		0: {4}, 1: {4}, 2: {4, 5}, 3: {4, 5}, 4: {5},
	} {
		require.NoError(t, store.Consume(eq, []signature.Block{{Elements: elems}}))
	}
	return idx, store
}

func expandColumn0(t *testing.T, optFns ...func(o *Options)) []uint32 {
	t.Helper()
	pool := workpool.New(4)
	idx, store := chainFixture(t, pool)
	fns := append([]func(o *Options){func(o *Options) { o.TrimPolicy = trim.None }}, optFns...)
	e, err := New(idx, store, pool, fns...)
	require.NoError(t, err)

	col := NewExpandedColumn(0, idset.New(0, 1, 2, 3))
	require.NoError(t, e.Expand(context.Background(), []*ExpandedColumn{col}))
	assert.False(t, col.Expansion.Intersects(col.Original))
	return col.Expansion.ToSlice()
}

func TestExpand_EndToEndExampleRejectsWeakSupport(t *testing.T) {
	idx := exampleIndex(t)
	pool := workpool.New(2)
	src := signature.NewIndexSource(idx, signature.DefaultBlockOptions, pool, nil)

	e, err := New(idx, src, pool, func(o *Options) {
		o.Threshold = threshold.GT(0.5)
		o.Iterations = 1
		o.TrimPolicy = trim.Conservative
	})
	require.NoError(t, err)

	cols, err := e.ExpandIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, cols[0].Expansion.IsEmpty())
	assert.Equal(t, []uint32{1, 2, 3}, cols[0].Nodes().ToSlice())
	assert.True(t, cols[1].Expansion.IsEmpty())
}

func TestExpand_UntrimmedBlocksAddSupportedNodes(t *testing.T) {
	idx := exampleIndex(t)
	pool := workpool.New(2)
	src := signature.NewIndexSource(idx, signature.DefaultBlockOptions, pool, nil)

	e, err := New(idx, src, pool, func(o *Options) {
		o.Iterations = 1
		o.TrimPolicy = trim.None
	})
	require.NoError(t, err)

	cols, err := e.ExpandIndex(context.Background())
	require.NoError(t, err)
	// EQs 1 and 2 both carry the other column's exclusive EQ in their second block.
	assert.Equal(t, []uint32{4}, cols[0].Expansion.ToSlice())
	assert.Equal(t, []uint32{3}, cols[1].Expansion.ToSlice())
	assert.Equal(t, []uint32{4}, ExpansionNodes(cols[:1]).ToSlice())
}

func TestExpand_Monotonic(t *testing.T) {
	var prev []uint32
	for _, iterations := range []int{0, 1, 2, 3, 6} {
		got := expandColumn0(t, func(o *Options) { o.Iterations = iterations })
		assert.Subset(t, got, prev, "iterations=%d", iterations)
		prev = got
	}
	assert.Empty(t, expandColumn0(t, func(o *Options) { o.Iterations = 0 }))
	assert.Equal(t, []uint32{4}, expandColumn0(t, func(o *Options) { o.Iterations = 1 }))
	assert.Equal(t, []uint32{4, 5}, expandColumn0(t, func(o *Options) { o.Iterations = 2 }))
}

func TestExpand_DecreaseFactorMonotonic(t *testing.T) {
	var prev []uint32
	for _, df := range []float64{0, 0.05, 0.2} {
		got := expandColumn0(t, func(o *Options) {
			o.Iterations = 3
			o.DecreaseFactor = df
		})
		assert.Subset(t, got, prev, "decrease factor %g", df)
		prev = got
	}
	assert.Equal(t, []uint32{4}, expandColumn0(t, func(o *Options) {
		o.Iterations = 3
		o.DecreaseFactor = 0
	}))
}

func TestExpander_EntryThreshold(t *testing.T) {
	e, err := New(exampleIndex(t), signature.NewStore(workpool.New(1)), workpool.New(1))
	require.NoError(t, err)
	assert.Equal(t, threshold.GT(0.5), e.EntryThreshold(0))
	assert.InDelta(t, 0.4, e.EntryThreshold(2).Value(), 1e-9)
	assert.Equal(t, trim.Centrist, e.Options().TrimPolicy)
}

func TestExpand_EmptyColumnIsFatal(t *testing.T) {
	pool := workpool.New(1)
	e, err := New(exampleIndex(t), signature.NewStore(pool), pool)
	require.NoError(t, err)

	err = e.Expand(context.Background(), []*ExpandedColumn{NewExpandedColumn(9, idset.New())})
	assert.ErrorIs(t, err, ErrEmptyColumn)
}

func TestNew_InvalidOptions(t *testing.T) {
	pool := workpool.New(1)
	idx := exampleIndex(t)

	_, err := New(idx, signature.NewStore(pool), pool, func(o *Options) { o.TrimPolicy = "SOMETIMES" })
	assert.ErrorIs(t, err, trim.ErrUnknownPolicy)

	_, err = New(idx, signature.NewStore(pool), pool, func(o *Options) { o.Iterations = -1 })
	assert.Error(t, err)
}

func TestColumnsIO_RoundTrip(t *testing.T) {
	cols := []*ExpandedColumn{
		{ID: 0, Original: idset.New(1, 2, 3), Expansion: idset.New(4)},
		{ID: 3, Original: idset.New(7), Expansion: idset.New()},
	}
	for _, name := range []string{"expanded.tsv", "expanded.tsv.zst"} {
		var buf bytes.Buffer
		require.NoError(t, WriteColumns(&buf, name, cols))

		got, err := ReadColumns(&buf, name)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for i := range cols {
			assert.Equal(t, cols[i].ID, got[i].ID)
			assert.True(t, cols[i].Original.Equal(got[i].Original))
			assert.True(t, cols[i].Expansion.Equal(got[i].Expansion))
		}
	}
}

func TestReadColumns_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"expansion overlaps original", "0\t1,2,3\t2,3,4\n"},
		{"empty original", "0\t\t4\n"},
		{"duplicate id", "0\t1,2\t\n0\t5\t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadColumns(strings.NewReader(tt.data), "expanded.tsv")
			var rerr *eqindex.RecordError
			require.ErrorAs(t, err, &rerr)
			assert.ErrorIs(t, err, textio.ErrMalformedRecord)
		})
	}
}
