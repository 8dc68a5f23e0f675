package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/hupe1980/d4/storage"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "/runs/today/")
	assert.Equal(t, "runs/today/eqs.tsv", s.key("eqs.tsv"))
	assert.Equal(t, "eqs.tsv", s.name("runs/today/eqs.tsv"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "eqs.tsv", bare.key("eqs.tsv"))
	assert.Equal(t, "a/eqs.tsv", bare.name("a/eqs.tsv"))
}

// TestStore_Integration requires a running MinIO instance at
// D4_MINIO_ENDPOINT (e.g. localhost:9000).
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("D4_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("D4_MINIO_ENDPOINT not set")
	}
	client, err := Connect(endpoint, "minioadmin", "minioadmin", false)
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	const bucket = "d4-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix")
	data := []byte("1\tcity\t0,1,2\n")
	require.NoError(t, store.Put(ctx, "columns.tsv", data))

	b, err := store.Open(ctx, "columns.tsv")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())
	rc, err := b.ReadRange(ctx, 2, 4)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "city", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, b.Close())

	require.NoError(t, storage.Write(ctx, store, "streamed.tsv", func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "columns.tsv")
	assert.Contains(t, names, "streamed.tsv")

	require.NoError(t, store.Delete(ctx, "columns.tsv"))
	require.NoError(t, store.Delete(ctx, "streamed.tsv"))
	_, err = store.Open(ctx, "columns.tsv")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
