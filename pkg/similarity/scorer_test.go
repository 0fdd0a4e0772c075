package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func spec(mz []int32, intensity []int32) spectrum.BinarySpectrum {
	return spectrum.BinarySpectrum{Uui: spectrum.NewUui(), Mz: mz, Intensity: intensity}
}

func TestCombinedFisherIntensityTestIdenticalSpectraScoreHigh(t *testing.T) {
	a := spec([]int32{100, 200, 300, 400}, []int32{10, 20, 30, 40})
	b := spec([]int32{100, 200, 300, 400}, []int32{10, 20, 30, 40})

	scorer := CombinedFisherIntensityTest{}
	score := scorer.Score(a, b)
	assert.Greater(t, score, 0.9)
	assert.LessOrEqual(t, score, 1.0)
}

func TestCombinedFisherIntensityTestDisjointSpectraScoreZero(t *testing.T) {
	a := spec([]int32{100, 200}, []int32{10, 20})
	b := spec([]int32{500, 600}, []int32{10, 20})

	scorer := CombinedFisherIntensityTest{}
	score := scorer.Score(a, b)
	assert.Equal(t, 0.0, score)
}

func TestCombinedFisherIntensityTestBounded(t *testing.T) {
	a := spec([]int32{1, 5, 9, 20, 40}, []int32{100, 1, 50, 3, 77})
	b := spec([]int32{1, 5, 9, 15, 40}, []int32{90, 2, 40, 99, 70})

	scorer := CombinedFisherIntensityTest{}
	score := scorer.Score(a, b)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestFisherShareScoreMonotoneInOverlap(t *testing.T) {
	low := FisherShareScore(2, 20, 20, 1000)
	high := FisherShareScore(10, 20, 20, 1000)
	assert.Less(t, low, high)
}
