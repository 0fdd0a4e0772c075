package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func testSpectrum() spectrum.BinarySpectrum {
	return spectrum.BinarySpectrum{
		Uui:             "s1",
		PrecursorMzBin:  500,
		PrecursorCharge: 2,
		Mz:              []int32{100, 200},
		Intensity:       []int32{10, 20},
	}
}

func TestSummarizeReportsHighestRecordedMatch(t *testing.T) {
	c := cluster.New(1)
	c.AddSpectra(nil, testSpectrum())
	c.SaveComparisonResult("other-a", 0.5)
	c.SaveComparisonResult("other-b", 0.9)

	s := Summarize(c)
	assert.Equal(t, c.ID(), s.ClusterID)
	assert.Equal(t, 1, s.MemberCount)
	assert.Equal(t, int32(500), s.PrecursorMzBin)
	assert.Equal(t, "other-b", s.BestMatchID)
	assert.Equal(t, float32(0.9), s.BestMatchSimilarity)
	assert.Equal(t, 2, s.NumRecordedMatches)
}

func TestWriterFlushesOnBatchSizeAndClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 2)
	require.NoError(t, err)

	c1 := cluster.New(1)
	c1.AddSpectra(nil, testSpectrum())
	require.NoError(t, w.Record(c1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	c2 := cluster.New(1)
	c2.AddSpectra(nil, testSpectrum())
	require.NoError(t, w.Record(c2))

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, filepath.Ext(entries[0].Name()) == ".parquet")

	require.NoError(t, w.Close())
}
