package spectrum

import (
	"sort"

	"github.com/google/uuid"

	"github.com/soundprediction/spectracluster/pkg/binning"
)

// BinarySpectrum is the immutable, integerized spectrum the rest of the
// engine operates on: sorted, parallel mz/intensity bins plus the
// precursor bin and charge.
type BinarySpectrum struct {
	Uui             string
	PrecursorMzBin  int32
	PrecursorCharge int32
	Mz              []int32
	Intensity       []int32
}

// NewUui returns a 128-bit random identifier rendered as a fixed-width
// lowercase hex string, per spec.md §9: stable key length, no dashes.
func NewUui() string {
	id := uuid.New()
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 32)
	for i, b := range id {
		buf[2*i] = hexDigits[b>>4]
		buf[2*i+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}

// rankedPeak is a (mz bin, intensity) pair prior to per-bin collapsing.
type rankedPeak struct {
	MzBin     int32
	Intensity float64
}

// Build assembles a BinarySpectrum from a raw, filtered spectrum: the m/z
// binner is applied first, HighestPeakPerBinFunction collapses collisions
// within a window of windowBins bins, and the intensity normalizer runs
// over the survivors.
func Build(raw RawSpectrum, binner binning.MzBinner, precursorBinner binning.PrecursorBinner, intensityNorm binning.IntensityNormalizer, windowBins int32) BinarySpectrum {
	ranked := make([]rankedPeak, len(raw.Peaks))
	for i, p := range raw.Peaks {
		ranked[i] = rankedPeak{MzBin: binner.Bin(p.Mz), Intensity: p.Intensity}
	}

	filteredMz, filteredIntensity := HighestPeakPerBinFunction(ranked, windowBins)

	normalized := intensityNorm.Normalize(filteredIntensity)

	var charge int32
	if raw.PrecursorCharge != 0 {
		charge = raw.PrecursorCharge
	}

	return BinarySpectrum{
		Uui:             NewUui(),
		PrecursorMzBin:  precursorBinner.Bin(raw.PrecursorMz),
		PrecursorCharge: charge,
		Mz:              filteredMz,
		Intensity:       normalized,
	}
}

// HighestPeakPerBinFunction keeps, within every contiguous run of peaks
// sharing floor(mzBin/window), the one with the highest intensity (ties
// broken by lowest mzBin), then re-sorts the survivors ascending by m/z.
// The output never has more peaks than the input and its m/z is strictly
// monotone (window keys are unique by construction).
func HighestPeakPerBinFunction(peaks []rankedPeak, window int32) ([]int32, []float64) {
	if len(peaks) == 0 {
		return []int32{}, []float64{}
	}
	if window <= 0 {
		window = 1
	}

	best := make(map[int32]rankedPeak, len(peaks))
	for _, p := range peaks {
		key := floorDivInt32(p.MzBin, window)
		cur, ok := best[key]
		if !ok || p.Intensity > cur.Intensity || (p.Intensity == cur.Intensity && p.MzBin < cur.MzBin) {
			best[key] = p
		}
	}

	out := make([]rankedPeak, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MzBin < out[j].MzBin })

	mz := make([]int32, len(out))
	intensity := make([]float64, len(out))
	for i, v := range out {
		mz[i] = v.MzBin
		intensity[i] = v.Intensity
	}
	return mz, intensity
}

func floorDivInt32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
