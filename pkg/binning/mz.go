// Package binning implements the normalizers that turn real-valued m/z,
// intensity, and precursor m/z into the integers the rest of the engine
// operates on.
package binning

import "math"

// MzBinner maps a continuous m/z value to its integer bin index.
//
// Implementations are closed over this package: the set of binning
// policies is fixed by the instrument chemistries the engine supports,
// not an extension point for callers.
type MzBinner interface {
	Bin(mz float64) int32
	// Width returns the bin width in Th, used by callers (the per-bin
	// filter, the scorer's fragment tolerance) that need to reason about
	// bin granularity rather than just producing bins.
	Width() float64
}

// floorDiv implements bin(mz) = floor((mz-offset)/width), resolving exact
// ties toward negative infinity as math.Floor already does.
func floorDiv(mz, offset, width float64) int32 {
	return int32(math.Floor((mz - offset) / width))
}

// sequestBinWidth is the default SEQUEST-style bin width in Th.
const sequestBinWidth = 1.0005079

// SequestBinner bins m/z using the fixed, mass-defect-corrected bin width
// SEQUEST popularized. It is the default binner.
type SequestBinner struct {
	width float64
}

// NewSequestBinner returns a SequestBinner with the default bin width.
func NewSequestBinner() SequestBinner {
	return SequestBinner{width: sequestBinWidth}
}

func (b SequestBinner) Bin(mz float64) int32 { return floorDiv(mz, 0, b.width) }
func (b SequestBinner) Width() float64       { return b.width }

// defaultTideBinWidth is Tide's default bin width in Th.
const defaultTideBinWidth = 0.02

// TideBinner bins m/z using Tide's configurable, narrower bin width.
type TideBinner struct {
	width float64
}

// NewTideBinner returns a TideBinner with the given bin width, or the
// default 0.02 Th width if width <= 0.
func NewTideBinner(width float64) TideBinner {
	if width <= 0 {
		width = defaultTideBinWidth
	}
	return TideBinner{width: width}
}

func (b TideBinner) Bin(mz float64) int32 { return floorDiv(mz, 0, b.width) }
func (b TideBinner) Width() float64       { return b.width }

// Debin returns the m/z at the center of bin idx for a given bin width,
// the inverse used by the round-trip tolerance property in tests.
func Debin(idx int32, width float64) float64 {
	return (float64(idx) + 0.5) * width
}

// MzConstant is the fixed scale factor used by PrecursorBinner.
const MzConstant = 1000

// PrecursorBinner converts a precursor m/z into a fixed-scale integer bin,
// independent of the fragment MzBinner in use.
type PrecursorBinner struct {
	scale float64
}

// NewPrecursorBinner returns a PrecursorBinner using MzConstant as its scale.
func NewPrecursorBinner() PrecursorBinner {
	return PrecursorBinner{scale: MzConstant}
}

// Bin returns round(mz * scale).
func (b PrecursorBinner) Bin(mz float64) int32 {
	return int32(math.Round(mz * b.scale))
}

// Debin is the approximate inverse of Bin, used for the round-trip bound
// |bin/1000 - mz| < 0.5/MzConstant.
func (b PrecursorBinner) Debin(bin int32) float64 {
	return float64(bin) / b.scale
}
