package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func spec(mz []int32, intensity []int32, precursorBin int32) spectrum.BinarySpectrum {
	return spectrum.BinarySpectrum{
		Uui:            spectrum.NewUui(),
		PrecursorMzBin: precursorBin,
		Mz:             mz,
		Intensity:      intensity,
	}
}

func TestAddSpectraDropsDuplicateMember(t *testing.T) {
	c := New(100)
	s := spec([]int32{1, 2, 3}, []int32{10, 20, 30}, 500)

	added := c.AddSpectra(nil, s, s)

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, c.MemberCount())
	require.NoError(t, c.Validate())
}

func TestMergeClusterUnionsMembersAndKeepsLargerID(t *testing.T) {
	small := New(100)
	small.AddSpectra(nil, spec([]int32{1}, []int32{10}, 500))

	large := New(100)
	large.AddSpectra(nil, spec([]int32{2}, []int32{20}, 500))
	large.AddSpectra(nil, spec([]int32{3}, []int32{30}, 500))

	largeID := large.ID()
	small.MergeCluster(nil, large)

	assert.Equal(t, 3, small.MemberCount())
	assert.Equal(t, largeID, small.ID())
	require.NoError(t, small.Validate())
}

func TestMergeClusterDeduplicatesOverlap(t *testing.T) {
	shared := spec([]int32{1}, []int32{10}, 500)

	a := New(100)
	a.AddSpectra(nil, shared)
	b := New(100)
	b.AddSpectra(nil, shared)

	a.MergeCluster(nil, b)

	assert.Equal(t, 1, a.MemberCount())
	require.NoError(t, a.Validate())
}

func TestSaveComparisonResultBoundedAndSorted(t *testing.T) {
	c := New(100)

	for i := 0; i < K+10; i++ {
		c.SaveComparisonResult(fmt.Sprintf("id-%d", i), float32(i))
	}

	matches := c.BestMatches()
	require.Len(t, matches, K)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	// Only the K highest similarities (10..K+9) should have survived.
	assert.Equal(t, float32(10), matches[0].Similarity)
}

func TestSaveComparisonResultRejectsBelowMinimumOnceFull(t *testing.T) {
	c := New(100)
	for i := 0; i < K; i++ {
		c.SaveComparisonResult(fmt.Sprintf("id-%d", i), float32(i+1))
	}
	before := c.BestMatches()

	c.SaveComparisonResult("too-low", 0)

	after := c.BestMatches()
	assert.Equal(t, before, after)
}

func TestIsInBestComparisonResults(t *testing.T) {
	c := New(100)
	c.SaveComparisonResult("found-me", 0.9)

	assert.True(t, c.IsInBestComparisonResults("found-me"))
	assert.False(t, c.IsInBestComparisonResults("nope"))

	c.SaveComparisonResult("another", 0.95)
	assert.True(t, c.IsInBestComparisonResults("found-me"))
	assert.True(t, c.IsInBestComparisonResults("another"))
}
