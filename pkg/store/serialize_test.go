package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func buildCluster(t *testing.T) *cluster.Cluster {
	t.Helper()
	c := cluster.New(100)
	c.AddSpectra(nil, spectrum.BinarySpectrum{
		Uui:             spectrum.NewUui(),
		PrecursorMzBin:  500250,
		PrecursorCharge: 2,
		Mz:              []int32{100, 200, 300},
		Intensity:       []int32{10, 20, 30},
	})
	c.SaveComparisonResult("other-1", 0.42)
	c.SaveComparisonResult("other-2", 0.91)
	return c
}

func TestEncodeDecodeClusterRoundTrip(t *testing.T) {
	c := buildCluster(t)

	buf, err := EncodeCluster(c)
	require.NoError(t, err)

	decoded, err := DecodeCluster(buf)
	require.NoError(t, err)

	assert.Equal(t, c.ID(), decoded.ID())
	assert.ElementsMatch(t, c.MemberIDs(), decoded.MemberIDs())
	assert.Equal(t, c.MemberCount(), decoded.MemberCount())
	assert.Equal(t, c.BestMatches(), decoded.BestMatches())
	assert.Equal(t, c.Representative(), decoded.Representative())
}

func TestDecodeClusterRejectsBadMagic(t *testing.T) {
	buf := []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0}
	_, err := DecodeCluster(buf)
	require.Error(t, err)
	var integrity *IntegrityError
	assert.ErrorAs(t, err, &integrity)
}

func TestDecodeClusterRejectsTruncatedPayload(t *testing.T) {
	c := buildCluster(t)
	buf, err := EncodeCluster(c)
	require.NoError(t, err)

	_, err = DecodeCluster(buf[:len(buf)-4])
	require.Error(t, err)
}
