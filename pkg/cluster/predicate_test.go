package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func clusterOf(t *testing.T, s spectrum.BinarySpectrum) *Cluster {
	t.Helper()
	c := New(100)
	c.AddSpectra(nil, s)
	return c
}

func TestShareHighestPeaksClusterPredicateAdmitsOverlap(t *testing.T) {
	a := spec([]int32{100, 200, 300}, []int32{5, 50, 1}, 1000)
	b := spec([]int32{200, 250, 999}, []int32{60, 2, 1}, 1000)

	p := ShareHighestPeaksClusterPredicate{K: 1}
	ca := clusterOf(t, a)

	assert.True(t, p.Admit(ca, b))
}

func TestShareHighestPeaksClusterPredicateRejectsDisjoint(t *testing.T) {
	a := spec([]int32{100, 200, 300}, []int32{5, 50, 1}, 1000)
	b := spec([]int32{900, 901}, []int32{10, 20}, 1000)

	p := ShareHighestPeaksClusterPredicate{K: 1}
	ca := clusterOf(t, a)

	assert.False(t, p.Admit(ca, b))
}

func TestShareHighestPeaksClusterPredicateSymmetric(t *testing.T) {
	a := spec([]int32{100, 200, 300, 400}, []int32{5, 50, 1, 9}, 1000)
	b := spec([]int32{200, 300, 500, 600}, []int32{60, 2, 30, 1}, 1000)

	p := ShareHighestPeaksClusterPredicate{K: 2}
	ca := clusterOf(t, a)
	cb := clusterOf(t, b)

	require.Equal(t, p.Admit(ca, b), p.Admit(cb, a))
}

func TestClusterIsKnownComparisonPredicate(t *testing.T) {
	a := spec([]int32{1}, []int32{10}, 1000)
	known := spec([]int32{2}, []int32{20}, 1000)
	unknown := spec([]int32{3}, []int32{30}, 1000)

	ca := clusterOf(t, a)
	ca.SaveComparisonResult(known.Uui, 0.5)

	p := ClusterIsKnownComparisonPredicate{}
	assert.False(t, p.Admit(ca, known))
	assert.True(t, p.Admit(ca, unknown))
}

func TestPredicateChainShortCircuits(t *testing.T) {
	a := spec([]int32{100}, []int32{10}, 1000)
	disjoint := spec([]int32{999}, []int32{10}, 1000)

	ca := clusterOf(t, a)
	chain := Chain{
		ShareHighestPeaksClusterPredicate{K: 1},
		ClusterIsKnownComparisonPredicate{},
	}

	assert.False(t, chain.Admit(ca, disjoint))
}
