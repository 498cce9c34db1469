package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalake-platform/datalake/fault"
)

func TestPutGetRoundTrip(t *testing.T) {
	client := NewMockS3Client()
	store := New(client, "uploads")
	ctx := context.Background()

	require.NoError(t, store.PutBytes(ctx, "uploads/j-1/sales.csv", []byte("a,b\n1,2\n"), "text/csv"))

	data, err := store.GetBytes(ctx, "uploads/j-1/sales.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	size, err := store.Size(ctx, "uploads/j-1/sales.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestGetMissingObjectIsNotFound(t *testing.T) {
	store := New(NewMockS3Client(), "uploads")

	_, err := store.GetBytes(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
	assert.False(t, fault.IsTransient(err))
}

func TestPutFailureIsTransient(t *testing.T) {
	client := NewMockS3Client()
	client.PutErr = errors.New("connection reset")
	store := New(client, "uploads")

	err := store.PutBytes(context.Background(), "k", []byte("x"), "text/csv")
	require.Error(t, err)
	assert.Equal(t, fault.KindStorage, fault.KindOf(err))
	assert.True(t, fault.IsTransient(err))
}

func TestEnsureBucketCreatesOnce(t *testing.T) {
	client := NewMockS3Client()
	store := New(client, "warehouse")
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	// second call sees the bucket and does nothing
	require.NoError(t, store.EnsureBucket(ctx))
}

func TestListPrefix(t *testing.T) {
	client := NewMockS3Client()
	client.Seed("warehouse", "wh/p1/sales/data/b.parquet", []byte("2"))
	client.Seed("warehouse", "wh/p1/sales/data/a.parquet", []byte("1"))
	client.Seed("warehouse", "wh/p1/other/data/c.parquet", []byte("3"))
	store := New(client, "warehouse")

	keys, err := store.List(context.Background(), "wh/p1/sales/")
	require.NoError(t, err)
	assert.Equal(t, []string{"wh/p1/sales/data/a.parquet", "wh/p1/sales/data/b.parquet"}, keys)
}

func TestDeleteIsIdempotent(t *testing.T) {
	client := NewMockS3Client()
	client.Seed("uploads", "k", []byte("x"))
	store := New(client, "uploads")
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))
	_, ok := client.Object("uploads", "k")
	assert.False(t, ok)
}
