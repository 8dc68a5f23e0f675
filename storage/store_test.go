package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestStore_PutOpenRange(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "a/b.tsv", []byte("hello world")))

			b, err := s.Open(ctx, "a/b.tsv")
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, int64(11), b.Size())

			rc, err := b.ReadRange(ctx, 6, 100)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "world", string(data))

			rc, err = b.ReadRange(ctx, 20, 5)
			require.NoError(t, err)
			data, err = io.ReadAll(rc)
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, s.Delete(ctx, "missing"))
		})
	}
}

func TestStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"run/b", "run/a", "other/c"} {
				require.NoError(t, s.Put(ctx, n, []byte(n)))
			}
			names, err := s.List(ctx, "run/")
			require.NoError(t, err)
			assert.Equal(t, []string{"run/a", "run/b"}, names)

			require.NoError(t, s.Delete(ctx, "run/a"))
			names, err = s.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"other/c", "run/b"}, names)
		})
	}
}

func TestWrite_VisibleAfterClose(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Write(ctx, s, "out.tsv", func(w io.Writer) error {
				_, err := io.WriteString(w, "1\t2\n")
				return err
			}))

			var got []byte
			require.NoError(t, Read(ctx, s, "out.tsv", func(r io.Reader) error {
				var err error
				got, err = io.ReadAll(r)
				return err
			}))
			assert.Equal(t, "1\t2\n", string(got))
		})
	}
}

func TestWrite_AbortsOnError(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			err := Write(ctx, s, "partial.tsv", func(w io.Writer) error {
				_, _ = io.WriteString(w, "half")
				return boom
			})
			assert.ErrorIs(t, err, boom)
			_, err = s.Open(ctx, "partial.tsv")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestOpenReader_EmptyBlob(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "empty", nil))
			rc, err := OpenReader(ctx, s, "empty")
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Empty(t, data)
			require.NoError(t, rc.Close())
		})
	}
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(t.TempDir() + "/nope")
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBlobCommitter(t *testing.T) {
	ctx := context.Background()
	c := NewBlobCommitter(NewMemoryStore())

	v, m, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Empty(t, m)

	for i, name := range []string{"run-1/manifest.json", "run-2/manifest.json"} {
		v, err := c.Commit(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), v)
	}

	v, m, err = c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, "run-2/manifest.json", m)
}

func TestBlobCommitter_Malformed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, CurrentName, []byte("garbage")))
	_, _, err := NewBlobCommitter(s).Latest(ctx)
	assert.Error(t, err)
}
