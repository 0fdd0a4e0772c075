package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/config"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

var testBreakerConfig = config.CircuitBreakerConfig{
	MaxRequests:      1,
	Interval:         60,
	Timeout:          30,
	ReadyToTripRatio: 0.6,
}

func TestDynamicClusterStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "clusters-dynamic")

	s, err := OpenDynamicClusterStore(dir, testBreakerConfig)
	require.NoError(t, err)
	defer s.Close()

	c := buildCluster(t)
	key := HashKey(c.ID())

	require.NoError(t, s.Put(ctx, key, c))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID(), got.ID())

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamicPropertyStorePutGetAvailableNames(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "properties-dynamic")

	s, err := OpenDynamicPropertyStore(dir, testBreakerConfig)
	require.NoError(t, err)
	defer s.Close()

	uui := spectrum.NewUui()
	require.NoError(t, s.Put(ctx, uui, "RT", "42.0"))

	v, ok, err := s.Get(ctx, uui, "RT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42.0", v)

	names, err := s.AvailablePropertyNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "RT")
}
