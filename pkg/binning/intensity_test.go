package binning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variance(vals []int32) float64 {
	if len(vals) == 0 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += float64(v)
	}
	mean /= float64(len(vals))
	var acc float64
	for _, v := range vals {
		d := float64(v) - mean
		acc += d * d
	}
	return acc / float64(len(vals))
}

func TestNormalizerVarianceOrdering(t *testing.T) {
	intensities := []float64{10, 2000, 50, 999, 12345, 3, 777, 42}

	basic := BasicIntegerNormalizer{Scale: 1}.Normalize(intensities)
	logN := LogNormalizer{Scale: 1000}.Normalize(intensities)
	cum := CumulativeIntensityNormalizer{Scale: 1000}.Normalize(intensities)

	vBasic := variance(basic)
	vLog := variance(logN)
	vCum := variance(cum)

	assert.Less(t, vCum, vLog, "cumulative variance should be strictly less than log variance")
	assert.Less(t, vLog, vBasic, "log variance should be strictly less than basic variance")
}

func TestMaxPeakNormalizerEdgeCases(t *testing.T) {
	n := MaxPeakNormalizer{Scale: 100}
	require.Equal(t, []int32{}, n.Normalize(nil))
	assert.Equal(t, []int32{0, 0, 0}, n.Normalize([]float64{0, 0, 0}))

	out := n.Normalize([]float64{50, 100})
	assert.Equal(t, []int32{50, 100}, out)
}

func TestCumulativeIntensityNormalizerMonotone(t *testing.T) {
	n := CumulativeIntensityNormalizer{Scale: 1000}
	out := n.Normalize([]float64{5, 1, 3})
	// position 1 (value 1) has the smallest cumulative rank.
	assert.Less(t, out[1], out[2])
	assert.Less(t, out[2], out[0])
}
