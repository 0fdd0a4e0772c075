package cluster

import "github.com/soundprediction/spectracluster/pkg/spectrum"

// Predicate is a cheap pre-filter run before a scorer, used to reject
// cluster/spectrum pairs that cannot plausibly match before paying for a
// full similarity computation.
type Predicate interface {
	Admit(c *Cluster, s spectrum.BinarySpectrum) bool
}

// ShareHighestPeaksClusterPredicate admits a pair only if the candidate
// spectrum shares at least one of its k highest-intensity peaks with one
// of the cluster representative's k highest-intensity peaks. It is
// symmetric in its two highest-peak sets by construction: swapping cluster
// and spectrum swaps which set is computed from the representative and
// which from the candidate, but the admit test itself (set intersection)
// is order-independent.
type ShareHighestPeaksClusterPredicate struct {
	K int
}

// Admit implements Predicate.
func (p ShareHighestPeaksClusterPredicate) Admit(c *Cluster, s spectrum.BinarySpectrum) bool {
	k := p.K
	if k <= 0 {
		k = 1
	}
	rep := c.Representative()
	repTop := highestPeakBins(rep, k)
	candTop := highestPeakBins(s, k)

	for bin := range candTop {
		if _, ok := repTop[bin]; ok {
			return true
		}
	}
	return false
}

// highestPeakBins returns the set of mz bins among the k highest-intensity
// peaks of s (ties broken by lower bin first, matching
// spectrum.HighestPeakPerBinFunction's tie rule).
func highestPeakBins(s spectrum.BinarySpectrum, k int) map[int32]struct{} {
	n := len(s.Mz)
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// Partial selection: simple full sort is fine at peak-list scale.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s.Intensity[idx[j]] > s.Intensity[idx[i]] ||
				(s.Intensity[idx[j]] == s.Intensity[idx[i]] && s.Mz[idx[j]] < s.Mz[idx[i]]) {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}

	out := make(map[int32]struct{}, k)
	for i := 0; i < k; i++ {
		out[s.Mz[idx[i]]] = struct{}{}
	}
	return out
}

// ClusterIsKnownComparisonPredicate rejects a candidate spectrum outright
// if it is already recorded among the cluster's best comparisons, avoiding
// redundant rescoring of a pair the engine has already seen (spec.md §4.6
// supplemented predicate).
type ClusterIsKnownComparisonPredicate struct{}

// Admit implements Predicate.
func (ClusterIsKnownComparisonPredicate) Admit(c *Cluster, s spectrum.BinarySpectrum) bool {
	return !c.IsInBestComparisonResults(s.Uui)
}

// Chain runs predicates in order, short-circuiting on the first rejection.
type Chain []Predicate

// Admit implements Predicate.
func (chain Chain) Admit(c *Cluster, s spectrum.BinarySpectrum) bool {
	for _, p := range chain {
		if !p.Admit(c, s) {
			return false
		}
	}
	return true
}
