package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/assessor"
	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/similarity"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func spec(uui string, mz []int32, intensity []int32, precursorBin, charge int32) spectrum.BinarySpectrum {
	if uui == "" {
		uui = spectrum.NewUui()
	}
	return spectrum.BinarySpectrum{
		Uui:             uui,
		PrecursorMzBin:  precursorBin,
		PrecursorCharge: charge,
		Mz:              mz,
		Intensity:       intensity,
	}
}

func lenientAssessor(t *testing.T) *assessor.MinNumberComparisonsAssessor {
	t.Helper()
	a, err := assessor.New(1, []assessor.Entry{{N: 1, Threshold: 0.05}})
	require.NoError(t, err)
	return a
}

func newTestEngine(t *testing.T, deltaP int32) *Engine {
	return New(Config{
		PrecursorToleranceBins: deltaP,
		NoiseFilterIncrement:   100,
		Scorer:                 similarity.CombinedFisherIntensityTest{},
		Assessor:               lenientAssessor(t),
		Predicates:             []cluster.Predicate{cluster.ShareHighestPeaksClusterPredicate{K: 5}},
	})
}

func collect(out <-chan *cluster.Cluster) []*cluster.Cluster {
	var result []*cluster.Cluster
	for c := range out {
		result = append(result, c)
	}
	return result
}

// S1: single spectrum, single cluster.
func TestRunSingleSpectrumSingleCluster(t *testing.T) {
	eng := newTestEngine(t, 10)
	s := spec("", []int32{100, 200, 300}, []int32{10, 20, 30}, 500250, 2)

	in := make(chan spectrum.BinarySpectrum, 1)
	out := make(chan *cluster.Cluster, 4)
	in <- s
	close(in)

	eng.Run(NewCancelToken(context.Background()), in, out)

	clusters := collect(out)
	require.Len(t, clusters, 1)
	assert.Equal(t, 1, clusters[0].MemberCount())
}

// S2: two identical spectra merge into one cluster.
func TestRunTwoIdenticalSpectraOneCluster(t *testing.T) {
	eng := newTestEngine(t, 10)
	mz := []int32{100, 200, 300, 400}
	intensity := []int32{10, 20, 30, 40}

	in := make(chan spectrum.BinarySpectrum, 2)
	out := make(chan *cluster.Cluster, 4)
	in <- spec("", mz, intensity, 500250, 2)
	in <- spec("", mz, intensity, 500250, 2)
	close(in)

	eng.Run(NewCancelToken(context.Background()), in, out)

	clusters := collect(out)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].MemberCount())
	assert.Equal(t, int32(500250), clusters[0].PrecursorMzBin())
}

// S3: two far-apart precursors form two distinct clusters with no
// comparison recorded between them.
func TestRunTwoFarApartPrecursorsTwoClusters(t *testing.T) {
	eng := newTestEngine(t, 10)

	in := make(chan spectrum.BinarySpectrum, 2)
	out := make(chan *cluster.Cluster, 4)
	in <- spec("", []int32{100, 200}, []int32{10, 20}, 500250, 2)
	in <- spec("", []int32{100, 200}, []int32{10, 20}, 900100, 2)
	close(in)

	eng.Run(NewCancelToken(context.Background()), in, out)

	clusters := collect(out)
	require.Len(t, clusters, 2)
	assert.Equal(t, 0, len(clusters[0].BestMatches()))
	assert.Equal(t, 0, len(clusters[1].BestMatches()))
}

// Invariant 1: emitted clusters appear in non-decreasing precursor bin.
func TestRunEmitsNonDecreasingPrecursorBin(t *testing.T) {
	eng := newTestEngine(t, 5)

	in := make(chan spectrum.BinarySpectrum, 5)
	out := make(chan *cluster.Cluster, 10)
	in <- spec("", []int32{1, 2}, []int32{5, 5}, 9000, 2)
	in <- spec("", []int32{50, 60}, []int32{5, 5}, 1000, 1)
	in <- spec("", []int32{100, 110}, []int32{5, 5}, 5000, 3)
	close(in)

	eng.Run(NewCancelToken(context.Background()), in, out)

	clusters := collect(out)
	require.Len(t, clusters, 3)
	for i := 1; i < len(clusters); i++ {
		assert.LessOrEqual(t, clusters[i-1].PrecursorMzBin(), clusters[i].PrecursorMzBin())
	}
}

// Invariant 2: every input spectrum's uui appears in exactly one output
// cluster.
func TestRunEveryInputAppearsExactlyOnce(t *testing.T) {
	eng := newTestEngine(t, 10)

	ids := []string{spectrum.NewUui(), spectrum.NewUui(), spectrum.NewUui()}
	in := make(chan spectrum.BinarySpectrum, 3)
	out := make(chan *cluster.Cluster, 5)
	in <- spec(ids[0], []int32{10, 20}, []int32{1, 2}, 1000, 2)
	in <- spec(ids[1], []int32{10, 20}, []int32{1, 2}, 1000, 2)
	in <- spec(ids[2], []int32{900, 901}, []int32{1, 2}, 9000, 2)
	close(in)

	eng.Run(NewCancelToken(context.Background()), in, out)

	seen := make(map[string]int)
	for _, c := range collect(out) {
		for _, id := range c.MemberIDs() {
			seen[id]++
		}
	}
	for _, id := range ids {
		assert.Equal(t, 1, seen[id])
	}
}

// A token cancelled before any input stops Run at once: the pending
// spectrum is not clustered, nothing is emitted, and out is closed.
func TestRunCancelledBeforeInputEmitsNothing(t *testing.T) {
	eng := newTestEngine(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan spectrum.BinarySpectrum, 1)
	out := make(chan *cluster.Cluster, 1)
	in <- spec("", []int32{1}, []int32{1}, 100, 1)
	close(in)

	eng.Run(NewCancelToken(ctx), in, out)

	clusters := collect(out)
	assert.Len(t, clusters, 0)
}

// S4: known-comparison predicate only after a recorded comparison.
func TestKnownComparisonPredicateTracksRecordedMatches(t *testing.T) {
	c1 := cluster.New(100)
	c1.AddSpectra(nil, spec("", []int32{1, 2}, []int32{1, 2}, 1000, 1))
	c2 := cluster.New(100)
	c2.AddSpectra(nil, spec("", []int32{3, 4}, []int32{1, 2}, 1000, 1))

	p := cluster.ClusterIsKnownComparisonPredicate{}
	s1 := c1.Representative()
	s2 := c2.Representative()

	assert.True(t, p.Admit(c1, s2))
	assert.True(t, p.Admit(c2, s1))

	c1.SaveComparisonResult(c2.ID(), 1.0)
	c2.SaveComparisonResult(c1.ID(), 1.0)

	assert.False(t, p.Admit(c1, s2))
	assert.False(t, p.Admit(c2, s1))
}

func TestRunMergeMergesMatchingClusters(t *testing.T) {
	eng := newTestEngine(t, 10)

	a := cluster.New(100)
	a.AddSpectra(nil, spec("", []int32{10, 20}, []int32{5, 5}, 1000, 1))
	b := cluster.New(100)
	b.AddSpectra(nil, spec("", []int32{10, 20}, []int32{5, 5}, 1000, 1))

	in := make(chan *cluster.Cluster, 2)
	out := make(chan *cluster.Cluster, 2)
	in <- a
	in <- b
	close(in)

	eng.RunMerge(NewCancelToken(context.Background()), in, out)

	clusters := collect(out)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].MemberCount())
}
