// Package similarity implements the scorers used to decide cluster
// membership: a Fisher-exact share-of-peaks test combined with a custom
// Kendall tau-b on shared-peak intensities.
package similarity

import "math"

// logBinomial returns log(C(n, k)), using log-gamma so it stays finite for
// the peak counts involved (hundreds, not factorial-overflow territory,
// but log-space keeps the downstream survival-function sum numerically
// stable regardless).
func logBinomial(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	lg1, _ := math.Lgamma(float64(n) + 1)
	lg2, _ := math.Lgamma(float64(k) + 1)
	lg3, _ := math.Lgamma(float64(n-k) + 1)
	return lg1 - lg2 - lg3
}

// hypergeometricPmf is P(X = k) for X ~ Hypergeometric(population, successes, draws):
// population items, `successes` of them "marked", drawing `draws` without
// replacement, k of the draws land on marked items.
func hypergeometricPmf(k, population, successes, draws int) float64 {
	logP := logBinomial(successes, k) + logBinomial(population-successes, draws-k) - logBinomial(population, draws)
	return math.Exp(logP)
}

// hypergeometricUpperTail is P(X >= k), the probability of observing at
// least this many shared peaks by chance alone.
func hypergeometricUpperTail(k, population, successes, draws int) float64 {
	lo := maxInt(0, draws-(population-successes))
	hi := minInt(successes, draws)
	if k > hi {
		return 0
	}
	if k < lo {
		k = lo
	}
	var sum float64
	for x := k; x <= hi; x++ {
		sum += hypergeometricPmf(x, population, successes, draws)
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

// FisherShareScore returns a share-of-peaks similarity in [0,1]: one minus
// the one-sided Fisher exact p-value of observing `shared` or more matching
// bins by chance, given peaksA and peaksB peaks each drawn from a universe
// of binUniverse possible m/z bins. Higher means the overlap is less likely
// to be coincidental, i.e. more similar.
func FisherShareScore(shared, peaksA, peaksB, binUniverse int) float64 {
	if binUniverse <= 0 || peaksA <= 0 || peaksB <= 0 {
		return 0
	}
	if shared <= 0 {
		return 0
	}
	// Hypergeometric(population=binUniverse, successes=peaksA, draws=peaksB).
	pValue := hypergeometricUpperTail(shared, binUniverse, peaksA, peaksB)
	score := 1 - pValue
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
