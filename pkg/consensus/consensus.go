// Package consensus implements the incrementally-maintained consensus
// spectrum: a sparse sum of member peaks from which a representative,
// noise-filtered spectrum is derived lazily.
package consensus

import (
	"math"
	"sort"

	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

// peakAccumulator is the per-bin running sum kept in the sparse peak map.
type peakAccumulator struct {
	SummedIntensity int64
	Count           int32
}

// NoiseFilterIncrement is the default window width, in m/z bins, used to
// partition the sparse peak map before the per-window top-K noise filter.
const NoiseFilterIncrement = 100

// State is the incrementally-maintained consensus spectrum for a cluster.
// add and merge are associative and commutative with respect to the
// underlying sums; the noise filter that produces Representative() is only
// applied at read time so repeated adds stay cheap.
type State struct {
	uui                string
	nSpectra           int64
	sumPrecursorMz     int64
	sumPrecursorCharge int64
	chargeVotes        map[int32]int64
	peakMap            map[int32]*peakAccumulator

	dirty          bool
	representative []spectrum.BinarySpectrum // length 0 or 1, used as a cache cell
	noiseIncrement int32
}

// New creates an empty consensus state with a stable uui, assigned once at
// creation and kept for the cluster's lifetime (spec.md §4.2).
func New(noiseIncrement int32) *State {
	if noiseIncrement <= 0 {
		noiseIncrement = NoiseFilterIncrement
	}
	return &State{
		uui:            spectrum.NewUui(),
		chargeVotes:    make(map[int32]int64),
		peakMap:        make(map[int32]*peakAccumulator),
		dirty:          true,
		noiseIncrement: noiseIncrement,
	}
}

// Uui returns the consensus spectrum's stable identifier.
func (s *State) Uui() string { return s.uui }

// NSpectra returns the number of spectra folded into this consensus so far.
func (s *State) NSpectra() int64 { return s.nSpectra }

// Add folds a single binarized spectrum into the running sums.
func (s *State) Add(bs spectrum.BinarySpectrum) {
	for i, mzBin := range bs.Mz {
		acc, ok := s.peakMap[mzBin]
		if !ok {
			acc = &peakAccumulator{}
			s.peakMap[mzBin] = acc
		}
		acc.SummedIntensity += int64(bs.Intensity[i])
		acc.Count++
	}
	s.sumPrecursorMz += int64(bs.PrecursorMzBin)
	if bs.PrecursorCharge != 0 {
		s.sumPrecursorCharge += int64(bs.PrecursorCharge)
		s.chargeVotes[bs.PrecursorCharge]++
	}
	s.nSpectra++
	s.dirty = true
}

// Merge pointwise-sums another consensus state's peak map, precursor sums,
// and member count into this one.
func (s *State) Merge(other *State) {
	for mzBin, otherAcc := range other.peakMap {
		acc, ok := s.peakMap[mzBin]
		if !ok {
			acc = &peakAccumulator{}
			s.peakMap[mzBin] = acc
		}
		acc.SummedIntensity += otherAcc.SummedIntensity
		acc.Count += otherAcc.Count
	}
	for charge, votes := range other.chargeVotes {
		s.chargeVotes[charge] += votes
	}
	s.sumPrecursorMz += other.sumPrecursorMz
	s.sumPrecursorCharge += other.sumPrecursorCharge
	s.nSpectra += other.nSpectra
	s.dirty = true
}

// binPeak is a (mzBin, summedIntensity) pair used while deriving the
// representative spectrum.
type binPeak struct {
	MzBin     int32
	Intensity int64
}

// noiseFilterRetention is ceil(5*log2(n+1)), the number of peaks kept per
// noise-filter window.
func noiseFilterRetention(nSpectra int64) int {
	if nSpectra < 0 {
		nSpectra = 0
	}
	return int(math.Ceil(5 * math.Log2(float64(nSpectra)+1)))
}

// representativePeaks recomputes the noise-filtered, mz-sorted peak list: bins
// are partitioned into windows of noiseIncrement bins, and within each
// window only the top-K peaks by summed intensity survive. Dropped bins
// stay in the underlying map; only the derived view is pruned.
func (s *State) representativePeaks() []binPeak {
	if len(s.peakMap) == 0 {
		return nil
	}

	windows := make(map[int32][]binPeak)
	for mzBin, acc := range s.peakMap {
		w := floorDivInt32(mzBin, s.noiseIncrement)
		windows[w] = append(windows[w], binPeak{MzBin: mzBin, Intensity: acc.SummedIntensity})
	}

	keep := noiseFilterRetention(s.nSpectra)
	out := make([]binPeak, 0, len(s.peakMap))
	for _, peaks := range windows {
		sort.Slice(peaks, func(i, j int) bool {
			if peaks[i].Intensity != peaks[j].Intensity {
				return peaks[i].Intensity > peaks[j].Intensity
			}
			return peaks[i].MzBin < peaks[j].MzBin
		})
		if len(peaks) > keep {
			peaks = peaks[:keep]
		}
		out = append(out, peaks...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].MzBin < out[j].MzBin })
	return out
}

func floorDivInt32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// modeCharge returns the most frequently voted precursor charge, breaking
// ties by the lowest charge value; falls back to the rounded average when
// no member reported a known charge.
func (s *State) modeCharge() int32 {
	if len(s.chargeVotes) == 0 {
		if s.nSpectra == 0 {
			return 0
		}
		return int32(math.Round(float64(s.sumPrecursorCharge) / float64(s.nSpectra)))
	}
	var best int32
	var bestVotes int64 = -1
	for charge, votes := range s.chargeVotes {
		if votes > bestVotes || (votes == bestVotes && charge < best) {
			best, bestVotes = charge, votes
		}
	}
	return best
}

// Representative returns the current noise-filtered BinarySpectrum view,
// recomputing it lazily if the state has changed since the last call.
func (s *State) Representative() spectrum.BinarySpectrum {
	if !s.dirty && len(s.representative) == 1 {
		return s.representative[0]
	}

	peaks := s.representativePeaks()
	mz := make([]int32, len(peaks))
	intensity := make([]int32, len(peaks))
	for i, p := range peaks {
		mz[i] = p.MzBin
		intensity[i] = clampInt32(p.Intensity)
	}

	var precursorBin int32
	if s.nSpectra > 0 {
		precursorBin = int32(math.Round(float64(s.sumPrecursorMz) / float64(s.nSpectra)))
	}

	bs := spectrum.BinarySpectrum{
		Uui:             s.uui,
		PrecursorMzBin:  precursorBin,
		PrecursorCharge: s.modeCharge(),
		Mz:              mz,
		Intensity:       intensity,
	}
	s.representative = []spectrum.BinarySpectrum{bs}
	s.dirty = false
	return bs
}

func clampInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// MemberPeakCount returns sum(peakMap[*].count), the invariant quantity
// that must equal the total number of peaks contributed across all members.
func (s *State) MemberPeakCount() int64 {
	var total int64
	for _, acc := range s.peakMap {
		total += int64(acc.Count)
	}
	return total
}

// SparseBin is one exported (mzBin, summedIntensity, count) row of the
// sparse peak map, used by pkg/store persistence.
type SparseBin struct {
	MzBin           int32
	SummedIntensity int64
	Count           int32
}

// SparseBins returns the full underlying peak map, sorted ascending by
// mzBin, unlike Representative which applies the noise filter.
func (s *State) SparseBins() []SparseBin {
	out := make([]SparseBin, 0, len(s.peakMap))
	for mzBin, acc := range s.peakMap {
		out = append(out, SparseBin{MzBin: mzBin, SummedIntensity: acc.SummedIntensity, Count: acc.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MzBin < out[j].MzBin })
	return out
}

// SumPrecursorMz returns the running precursor m/z bin sum.
func (s *State) SumPrecursorMz() int64 { return s.sumPrecursorMz }

// SumPrecursorCharge returns the running precursor charge sum.
func (s *State) SumPrecursorCharge() int64 { return s.sumPrecursorCharge }

// ChargeVotes returns a copy of the per-charge vote counts.
func (s *State) ChargeVotes() map[int32]int64 {
	out := make(map[int32]int64, len(s.chargeVotes))
	for k, v := range s.chargeVotes {
		out[k] = v
	}
	return out
}

// NoiseIncrement returns the window width used by the noise filter.
func (s *State) NoiseIncrement() int32 { return s.noiseIncrement }

// Restore reconstructs a State from persisted fields, fixing uui to the
// stored value rather than generating a new one. Used by pkg/store when
// deserializing a cluster.
func Restore(uui string, nSpectra, sumPrecursorMz, sumPrecursorCharge int64, chargeVotes map[int32]int64, bins []SparseBin, noiseIncrement int32) *State {
	peakMap := make(map[int32]*peakAccumulator, len(bins))
	for _, b := range bins {
		peakMap[b.MzBin] = &peakAccumulator{SummedIntensity: b.SummedIntensity, Count: b.Count}
	}
	cv := make(map[int32]int64, len(chargeVotes))
	for k, v := range chargeVotes {
		cv[k] = v
	}
	if noiseIncrement <= 0 {
		noiseIncrement = NoiseFilterIncrement
	}
	return &State{
		uui:                uui,
		nSpectra:           nSpectra,
		sumPrecursorMz:     sumPrecursorMz,
		sumPrecursorCharge: sumPrecursorCharge,
		chargeVotes:        cv,
		peakMap:            peakMap,
		dirty:              true,
		noiseIncrement:     noiseIncrement,
	}
}
