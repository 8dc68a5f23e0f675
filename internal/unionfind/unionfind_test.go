package unionfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForest_Components(t *testing.T) {
	f := New()
	f.Add(9)
	f.Union(1, 2)
	f.Union(3, 4)
	f.Union(2, 4)
	f.Union(7, 8)
	f.Union(8, 7)

	assert.Equal(t, 7, f.Len())
	assert.Equal(t, f.Find(1), f.Find(3))
	assert.NotEqual(t, f.Find(1), f.Find(7))
	assert.Equal(t, [][]uint32{{1, 2, 3, 4}, {7, 8}, {9}}, f.Components())
}

func TestForest_ChainCollapses(t *testing.T) {
	f := New()
	for i := uint32(0); i < 1000; i++ {
		f.Union(i, i+1)
	}
	comps := f.Components()
	assert.Len(t, comps, 1)
	assert.Len(t, comps[0], 1001)
}

func TestForest_Empty(t *testing.T) {
	assert.Empty(t, New().Components())
}
