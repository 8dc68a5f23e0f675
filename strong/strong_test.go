package strong

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitIndex(t *testing.T, sizes map[uint32]uint32) *eqindex.Index {
	t.Helper()
	var eqs []eqindex.EQ
	for id, size := range sizes {
		eqs = append(eqs, eqindex.EQ{ID: id, Columns: idset.New(0), TermCount: size})
	}
	idx, err := eqindex.NewIndex(eqs, nil)
	require.NoError(t, err)
	return idx
}

func chain() []*domain.Domain {
	return []*domain.Domain{
		{ID: 0, Nodes: idset.New(1, 2), Columns: idset.New(0, 1)},
		{ID: 1, Nodes: idset.New(2, 3), Columns: idset.New(1, 2)},
		{ID: 2, Nodes: idset.New(3, 4), Columns: idset.New(2, 3)},
		{ID: 3, Nodes: idset.New(9), Columns: idset.New(5)},
	}
}

func TestGenerate_SupportChainMergesTransitively(t *testing.T) {
	idx := unitIndex(t, map[uint32]uint32{1: 1, 2: 1, 3: 1, 4: 1, 9: 1})
	g, err := NewGenerator(idx, workpool.New(3), func(o *Options) {
		o.DomainOverlap = threshold.GEQ(0.3)
	})
	require.NoError(t, err)

	cands, err := g.Analyze(context.Background(), chain())
	require.NoError(t, err)
	assert.Equal(t, 2, cands[0].Frequency)
	assert.Equal(t, 3, cands[1].Frequency)
	assert.Equal(t, []int{0, 2}, cands[1].Supporters)
	assert.True(t, cands[0].Strong)
	assert.False(t, cands[3].Strong)

	out := Merge(cands)
	require.Len(t, out, 1)
	sd := out[0]
	assert.Equal(t, uint32(0), sd.ID)
	assert.Equal(t, []uint32{0, 1, 2}, sd.LocalDomains.ToSlice())
	assert.Equal(t, []uint32{0, 1, 2, 3}, sd.Columns.ToSlice())
	assert.Equal(t, []uint32{1, 2, 3, 4}, sd.Nodes().ToSlice())
	assert.InDelta(t, 1.0/3, sd.Members[1], 1e-9)
	assert.InDelta(t, 2.0/3, sd.Members[2], 1e-9)
	assert.InDelta(t, 2.0/3, sd.Members[3], 1e-9)
}

func TestGenerate_DefaultOverlapSplitsChain(t *testing.T) {
	idx := unitIndex(t, map[uint32]uint32{1: 1, 2: 1, 3: 1, 4: 1, 9: 1})
	g, err := NewGenerator(idx, workpool.New(2))
	require.NoError(t, err)

	var c Collector
	require.NoError(t, g.Run(context.Background(), chain(), &c))
	// Unit-weight overlaps of 1/3 do not satisfy GEQ0.5, so every two-column
	// domain stands alone and the single-column domain is dropped.
	require.Len(t, c.Domains, 3)
	for i, sd := range c.Domains {
		assert.Equal(t, uint32(i), sd.ID)
		assert.Equal(t, []uint32{uint32(i)}, sd.LocalDomains.ToSlice())
		for _, w := range sd.Members {
			assert.Equal(t, 1.0, w)
		}
	}
}

func TestGenerate_TermWeightsDecideSupport(t *testing.T) {
	domains := []*domain.Domain{
		{ID: 0, Nodes: idset.New(1, 2), Columns: idset.New(0)},
		{ID: 1, Nodes: idset.New(2, 3), Columns: idset.New(1)},
	}

	unit := unitIndex(t, map[uint32]uint32{1: 1, 2: 1, 3: 1})
	g, err := NewGenerator(unit, workpool.New(2))
	require.NoError(t, err)
	cands, err := g.Analyze(context.Background(), domains)
	require.NoError(t, err)
	assert.Empty(t, cands[0].Supporters)

	heavy := unitIndex(t, map[uint32]uint32{1: 1, 2: 4, 3: 1})
	g, err = NewGenerator(heavy, workpool.New(2))
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), domains)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []uint32{0, 1}, out[0].LocalDomains.ToSlice())
	assert.Equal(t, 1.0, out[0].Members[2])
	assert.Equal(t, 0.5, out[0].Members[1])
}

func TestGenerate_EmptyDomainIsFatal(t *testing.T) {
	idx := unitIndex(t, map[uint32]uint32{1: 0, 2: 1})
	g, err := NewGenerator(idx, workpool.New(1))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), []*domain.Domain{
		{ID: 0, Nodes: idset.New(1), Columns: idset.New(0)},
	})
	assert.ErrorIs(t, err, ErrEmptyDomain)
}

func TestCandidate_MinColumnCount(t *testing.T) {
	c := &Candidate{Frequency: 7}
	assert.Equal(t, 2, c.MinColumnCount(0.25))
	assert.Equal(t, 1, c.MinColumnCount(0))
}

func TestWriter_RoundTrip(t *testing.T) {
	domains := []*StrongDomain{{
		ID:           0,
		LocalDomains: idset.New(0, 2),
		Members:      map[uint32]float64{1: 0.5, 2: 1},
		Columns:      idset.New(3, 4),
	}}
	var buf bytes.Buffer
	w := NewWriter(&buf, "strong.tsv")
	require.NoError(t, Emit(w, domains))
	assert.Equal(t, "0\t0,2\t1:0.5,2:1\t3,4\n", buf.String())

	got, err := ReadStrongDomains(&buf, "strong.tsv")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domains[0].Members, got[0].Members)
	assert.True(t, domains[0].Columns.Equal(got[0].Columns))
}

func TestReadStrongDomains_RejectsBadWeights(t *testing.T) {
	_, err := ReadStrongDomains(strings.NewReader("0\t0\t1:1.5\t0\n"), "strong.tsv")
	assert.ErrorIs(t, err, textio.ErrMalformedRecord)

	_, err = ReadStrongDomains(strings.NewReader("0\t0\t1\t0\n"), "strong.tsv")
	assert.ErrorIs(t, err, textio.ErrMalformedRecord)
}
