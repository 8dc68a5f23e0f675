package source

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/d4/eqindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cells [][2]string

func (c cells) Read(_ context.Context, fn ValueFunc) error {
	for _, cell := range c {
		if err := fn(cell[0], cell[1]); err != nil {
			return err
		}
	}
	return nil
}

type failing struct{}

func (failing) Read(context.Context, ValueFunc) error { return errors.New("connection reset") }

func TestLoad(t *testing.T) {
	b := eqindex.NewBuilder()
	err := Load(context.Background(), cells{
		{"city.name", "Berlin"},
		{"city.name", "Paris"},
		{"person.city", "berlin"},
	}, b, nil)
	require.NoError(t, err)

	idx, terms, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, terms, 2)
	assert.Equal(t, 2, idx.Len())
}

func TestLoad_PropagatesError(t *testing.T) {
	err := Load(context.Background(), failing{}, eqindex.NewBuilder(), nil)
	assert.EqualError(t, err, "connection reset")
}

func TestFilter(t *testing.T) {
	all := Filter(nil)
	assert.True(t, all("anything"))

	some := Filter([]string{"City"})
	assert.True(t, some("city"))
	assert.False(t, some("person"))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "city.name", ColumnName("city", "name"))
}
