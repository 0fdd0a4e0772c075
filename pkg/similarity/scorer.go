package similarity

import "github.com/soundprediction/spectracluster/pkg/spectrum"

// Scorer computes a similarity in [0,1] between two binary spectra, higher
// meaning more similar. It is the one open extension point in this
// package: third-party scorers can be plugged into the engine alongside
// CombinedFisherIntensityTest.
type Scorer interface {
	Score(a, b spectrum.BinarySpectrum) float64
}

// CombinedFisherIntensityTest is the primary scorer: it combines a
// Fisher-exact share-of-peaks probability with a Kendall tau-b correlation
// on the intensities of the peaks the two spectra share.
type CombinedFisherIntensityTest struct {
	// PeakMatchTolerance is reserved for future fractional-bin matching;
	// the current implementation only matches on exact integer bin
	// equality (tolerance 0 in integer space), per spec.md §4.3.
	PeakMatchTolerance int32
}

// sharedPeaks walks the two sorted mz arrays and returns, for every bin
// present in both, the paired intensities, plus the bin universe for the
// Fisher exact test: the number of bins spanned by the union of the two
// mz ranges.
func sharedPeaks(a, b spectrum.BinarySpectrum) (xs, ys []int32, binUniverse int) {
	i, j := 0, 0
	for i < len(a.Mz) && j < len(b.Mz) {
		switch {
		case a.Mz[i] == b.Mz[j]:
			xs = append(xs, a.Intensity[i])
			ys = append(ys, b.Intensity[j])
			i++
			j++
		case a.Mz[i] < b.Mz[j]:
			i++
		default:
			j++
		}
	}

	lo, hi := unionRange(a.Mz, b.Mz)
	if hi >= lo {
		binUniverse = int(hi-lo) + 1
	}
	return xs, ys, binUniverse
}

func unionRange(a, b []int32) (lo, hi int32) {
	hasAny := false
	for _, arr := range [][]int32{a, b} {
		if len(arr) == 0 {
			continue
		}
		first, last := arr[0], arr[len(arr)-1]
		if !hasAny {
			lo, hi = first, last
			hasAny = true
			continue
		}
		if first < lo {
			lo = first
		}
		if last > hi {
			hi = last
		}
	}
	return lo, hi
}

// Score implements Scorer: fisher(share) * (1 + max(0, tau))/2, clamped to
// [0,1].
func (t CombinedFisherIntensityTest) Score(a, b spectrum.BinarySpectrum) float64 {
	xs, ys, binUniverse := sharedPeaks(a, b)
	shared := len(xs)

	fisher := FisherShareScore(shared, len(a.Mz), len(b.Mz), binUniverse)

	var tau float64
	if shared >= 2 {
		tau = KendallTauB(xs, ys)
	}
	if tau < 0 {
		tau = 0
	}

	score := fisher * (1 + tau) / 2
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
