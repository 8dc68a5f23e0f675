package signature

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exampleIndex has column A = {1,2,3} and column B = {1,2,4}.
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

func elements(blocks []Block) [][]uint32 {
	out := make([][]uint32, len(blocks))
	for i, b := range blocks {
		out[i] = b.Elements
	}
	return out
}

func TestGenerator_Signature(t *testing.T) {
	gen := NewGenerator(exampleIndex(t))

	sig, err := gen.Signature(1)
	require.NoError(t, err)
	assert.Equal(t, []Value{{ID: 2, Sim: 1}, {ID: 3, Sim: 0.5}, {ID: 4, Sim: 0.5}}, sig)

	sig, err = gen.Signature(3)
	require.NoError(t, err)
	assert.Equal(t, []Value{{ID: 1, Sim: 0.5}, {ID: 2, Sim: 0.5}}, sig)

	_, err = gen.Signature(9)
	assert.ErrorIs(t, err, eqindex.ErrUnknownEQ)
}

func TestGenerator_IsolatedEQHasEmptySignature(t *testing.T) {
	idx, err := eqindex.NewIndex([]eqindex.EQ{
		{ID: 0, Columns: idset.New(0), TermCount: 1},
		{ID: 1, Columns: idset.New(1), TermCount: 1},
	}, nil)
	require.NoError(t, err)

	sig, err := NewGenerator(idx).Signature(0)
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.Empty(t, NewPartitioner(DefaultBlockOptions).Blocks(sig))
}

func TestPartitioner_FullSignature(t *testing.T) {
	gen := NewGenerator(exampleIndex(t))
	p := NewPartitioner(DefaultBlockOptions)

	tests := []struct {
		eq   uint32
		want [][]uint32
	}{
		{1, [][]uint32{{2}, {3, 4}}},
		{2, [][]uint32{{1}, {3, 4}}},
		{3, [][]uint32{{1, 2}}},
		{4, [][]uint32{{1, 2}}},
	}
	for _, tt := range tests {
		sig, err := gen.Signature(tt.eq)
		require.NoError(t, err)
		assert.Equal(t, tt.want, elements(p.Blocks(sig)), "EQ %d", tt.eq)
	}

	sig, _ := gen.Signature(1)
	blocks := p.Blocks(sig)
	assert.Equal(t, 1.0, blocks[0].First)
	assert.Equal(t, 0.5, blocks[1].Last)
	assert.True(t, blocks[1].Contains(4))
	assert.False(t, blocks[1].Contains(2))
}

func TestPartitioner_WithoutFullSignature(t *testing.T) {
	gen := NewGenerator(exampleIndex(t))
	opts := DefaultBlockOptions
	opts.FullSignatureConstraint = false
	p := NewPartitioner(opts)

	sig, _ := gen.Signature(1)
	assert.Equal(t, [][]uint32{{2}}, elements(p.Blocks(sig)))

	sig, _ = gen.Signature(3)
	assert.Empty(t, p.Blocks(sig))
}

func TestPartitioner_MinorDrop(t *testing.T) {
	values := []float64{1.0, 0.4, 0.35, 0.3, 0.25, 0.2, 0.05}

	opts := DefaultBlockOptions
	assert.Equal(t, []Span{{0, 1}, {1, 6}, {6, 7}}, NewPartitioner(opts).Spans(values))

	opts.SwallowRemainder = true
	assert.Equal(t, []Span{{0, 1}, {1, 7}}, NewPartitioner(opts).Spans(values))

	opts = DefaultBlockOptions
	opts.IgnoreMinorDrop = false
	assert.Equal(t, []Span{{0, 1}, {1, 6}, {6, 7}}, NewPartitioner(opts).Spans(values))

	// The first block swallows everything when its first cut is noise.
	gradual := []float64{1.0, 0.8, 0.6, 0.4, 0.15}
	assert.Equal(t, []Span{{0, 5}}, NewPartitioner(DefaultBlockOptions).Spans(gradual))
}

func TestPartitioner_MinDropAndIgnoreLast(t *testing.T) {
	values := []float64{0.9, 0.85, 0.3}

	opts := DefaultBlockOptions
	opts.MinDrop = threshold.GT(0.6)
	assert.Empty(t, NewPartitioner(opts).Spans(values))

	opts = DefaultBlockOptions
	opts.IgnoreLastDrop = true
	assert.Equal(t, []Span{{0, 2}}, NewPartitioner(opts).Spans(values))
}

func TestPartitioner_SpansAreContiguous(t *testing.T) {
	inputs := [][]float64{
		{1, 0.9, 0.8, 0.2, 0.1},
		{0.5, 0.5, 0.5},
		{0.7, 0.3, 0.29, 0.28, 0.01},
		{1, 0.6, 0.59, 0.2, 0.19, 0.18},
	}
	for _, opts := range []BlockOptions{
		DefaultBlockOptions,
		{FullSignatureConstraint: true, MinDrop: threshold.GT(0)},
		{FullSignatureConstraint: false, IgnoreMinorDrop: true, MinDrop: threshold.GEQ(0.05)},
		{FullSignatureConstraint: true, IgnoreMinorDrop: true, SwallowRemainder: true, MinDrop: threshold.GT(0)},
	} {
		p := NewPartitioner(opts)
		for _, values := range inputs {
			spans := p.Spans(values)
			next := 0
			for _, s := range spans {
				assert.Equal(t, next, s.Start)
				assert.Greater(t, s.End, s.Start)
				next = s.End
			}
			assert.LessOrEqual(t, next, len(values))
			if opts.FullSignatureConstraint && !opts.IgnoreLastDrop {
				assert.Equal(t, len(values), next, "full signature must be covered: %v", values)
			}
		}
	}
}

func TestDispatcher_RoutesByMembership(t *testing.T) {
	idx := exampleIndex(t)
	src := NewIndexSource(idx, DefaultBlockOptions, workpool.New(4), nil)

	var mu sync.Mutex
	got := map[string][]uint32{}
	collect := func(name string) Consumer {
		return ConsumerFunc(func(eq uint32, _ []Block) error {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], eq)
			return nil
		})
	}

	d := NewDispatcher()
	d.Register(idset.New(1, 3), collect("a"))
	d.Register(idset.New(1, 4), collect("b"))
	assert.Equal(t, []uint32{1, 3, 4}, d.Filter().ToSlice())

	require.NoError(t, d.Run(context.Background(), src))
	assert.ElementsMatch(t, []uint32{1, 3}, got["a"])
	assert.ElementsMatch(t, []uint32{1, 4}, got["b"])
}

func TestStore_FileRoundTrip(t *testing.T) {
	pool := workpool.New(2)
	src := NewIndexSource(exampleIndex(t), DefaultBlockOptions, pool, nil)
	store := NewStore(pool)
	require.NoError(t, src.Stream(context.Background(), nil, store))
	assert.Equal(t, 4, store.Len())

	for _, name := range []string{"blocks.tsv", "blocks.tsv.gz", "blocks.tsv.lz4"} {
		var buf bytes.Buffer
		n, err := WriteBlocks(&buf, name, store)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		loaded, err := ReadBlocks(bytes.NewReader(buf.Bytes()), name, pool)
		require.NoError(t, err)
		for eq := range store.IDs().All() {
			want, _ := store.Get(eq)
			have, ok := loaded.Get(eq)
			require.True(t, ok)
			assert.Equal(t, want, have)
		}

		data := buf.Bytes()
		fs := NewFileSource(name, func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}, pool)

		var mu sync.Mutex
		seen := map[uint32][]Block{}
		err = fs.Stream(context.Background(), idset.New(1, 3, 7), ConsumerFunc(func(eq uint32, blocks []Block) error {
			mu.Lock()
			defer mu.Unlock()
			seen[eq] = blocks
			return nil
		}))
		require.NoError(t, err)
		require.Len(t, seen, 3)
		assert.Equal(t, [][]uint32{{2}, {3, 4}}, elements(seen[1]))
		assert.Equal(t, [][]uint32{{1, 2}}, elements(seen[3]))
		assert.Nil(t, seen[7])
	}
}

func TestFormatBlocks(t *testing.T) {
	blocks := []Block{{Elements: []uint32{2}}, {Elements: []uint32{3, 4}}}
	assert.Equal(t, "[2] [3,4]", FormatBlocks(blocks))
}
