package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClusterStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clusters.static")

	s, err := OpenStaticClusterStore(path, 16, 4096)
	require.NoError(t, err)
	defer s.Close()

	c := buildCluster(t)
	key := HashKey(c.ID())

	require.NoError(t, s.Put(ctx, key, c))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID(), got.ID())

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, s.Delete(ctx, key))
	size, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestStaticClusterStoreCapacityExceeded(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clusters.static")

	s, err := OpenStaticClusterStore(path, 2, 4096)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, 1, buildCluster(t)))
	require.NoError(t, s.Put(ctx, 2, buildCluster(t)))

	err = s.Put(ctx, 3, buildCluster(t))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestStaticClusterStoreRejectsOversizedValue(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clusters.static")

	s, err := OpenStaticClusterStore(path, 4, 8)
	require.NoError(t, err)
	defer s.Close()

	err = s.Put(ctx, 1, buildCluster(t))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestStaticClusterStoreReopenValidatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.static")

	s1, err := OpenStaticClusterStore(path, 8, 1024)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	_, err = OpenStaticClusterStore(path, 16, 1024)
	assert.Error(t, err)

	s2, err := OpenStaticClusterStore(path, 8, 1024)
	require.NoError(t, err)
	defer s2.Close()
}
