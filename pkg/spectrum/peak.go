// Package spectrum implements the binary (integerized) spectrum representation
// and the filter chain that turns a raw peak list into one.
package spectrum

import "sort"

// Peak is a single raw (m/z, intensity) pair as read from a peak-list file.
type Peak struct {
	Mz        float64
	Intensity float64
}

// RawSpectrum is the input the filter chain operates on: a precursor and its
// unfiltered, unbinned peak list. Peaks need not be sorted on entry.
type RawSpectrum struct {
	PrecursorMz     float64
	PrecursorCharge int32 // 0 = unknown
	Peaks           []Peak
}

// RawFilter removes or reorders peaks before binarization. Filters are pure:
// they return a new slice and never mutate the input.
type RawFilter func(RawSpectrum) RawSpectrum

// Chain composes filters left to right, applying each to the output of the last.
func Chain(filters ...RawFilter) RawFilter {
	return func(s RawSpectrum) RawSpectrum {
		for _, f := range filters {
			s = f(s)
		}
		return s
	}
}

// RemoveImpossiblyHighPeaks drops peaks whose m/z exceeds what the precursor's
// mass and charge could plausibly produce, allowing a small tolerance.
//
// A charge of 0 (unknown) is treated as charge 1 for the purpose of this
// bound, the lowest limit any charge gives: peaks above precursor m/z plus
// the tolerance are dropped.
func RemoveImpossiblyHighPeaks(toleranceDa float64) RawFilter {
	return func(s RawSpectrum) RawSpectrum {
		charge := s.PrecursorCharge
		if charge <= 0 {
			charge = 1
		}
		limit := s.PrecursorMz*float64(charge) + toleranceDa
		out := make([]Peak, 0, len(s.Peaks))
		for _, p := range s.Peaks {
			if p.Mz <= limit {
				out = append(out, p)
			}
		}
		s.Peaks = out
		return s
	}
}

// precursorNeighborhoodK bounds how many small-k precursor-loss satellites
// RemovePrecursorPeaks strips around the precursor itself (e.g. the 2+/3+
// in-source fragments that cluster tightly around the selected ion).
const precursorNeighborhoodK = 3

// RemovePrecursorPeaks drops peaks within windowDa of the precursor m/z and
// of its low-order charge-reduced satellites (precursor ± k/charge for small
// k), which are dominated by the precursor ion rather than fragmentation.
func RemovePrecursorPeaks(windowDa float64) RawFilter {
	return func(s RawSpectrum) RawSpectrum {
		charge := s.PrecursorCharge
		if charge <= 0 {
			charge = 1
		}

		centers := make([]float64, 0, 2*precursorNeighborhoodK+1)
		centers = append(centers, s.PrecursorMz)
		for k := 1; k <= precursorNeighborhoodK; k++ {
			delta := float64(k) / float64(charge)
			centers = append(centers, s.PrecursorMz+delta, s.PrecursorMz-delta)
		}

		out := make([]Peak, 0, len(s.Peaks))
		for _, p := range s.Peaks {
			near := false
			for _, c := range centers {
				d := p.Mz - c
				if d < 0 {
					d = -d
				}
				if d <= windowDa {
					near = true
					break
				}
			}
			if !near {
				out = append(out, p)
			}
		}
		s.Peaks = out
		return s
	}
}

// KeepNHighestRawPeaks retains only the N most intense peaks, breaking ties
// by lowest m/z, then re-sorts the survivors ascending by m/z.
func KeepNHighestRawPeaks(n int) RawFilter {
	return func(s RawSpectrum) RawSpectrum {
		if n <= 0 || len(s.Peaks) <= n {
			sorted := append([]Peak(nil), s.Peaks...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Mz < sorted[j].Mz })
			s.Peaks = sorted
			return s
		}

		ranked := append([]Peak(nil), s.Peaks...)
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Intensity != ranked[j].Intensity {
				return ranked[i].Intensity > ranked[j].Intensity
			}
			return ranked[i].Mz < ranked[j].Mz
		})
		kept := ranked[:n]
		sort.Slice(kept, func(i, j int) bool { return kept[i].Mz < kept[j].Mz })
		s.Peaks = kept
		return s
	}
}
