package assessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdMonotonicNonIncreasing(t *testing.T) {
	a, err := NewDefault(5)
	require.NoError(t, err)

	prev := a.Threshold(1)
	for _, n := range []int{2, 5, 10, 100, 1000, 50000, 1000000} {
		cur := a.Threshold(n)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestThresholdBelowMinComparisonsUsesFloor(t *testing.T) {
	a, err := NewDefault(10)
	require.NoError(t, err)

	assert.Equal(t, a.Threshold(10), a.Threshold(1))
	assert.Equal(t, a.Threshold(10), a.Threshold(0))
}

func TestThresholdExactMatchTakesPrecedence(t *testing.T) {
	table := []Entry{{N: 1, Threshold: 0.99}, {N: 10, Threshold: 0.5}, {N: 100, Threshold: 0.1}}
	a, err := New(1, table)
	require.NoError(t, err)

	assert.Equal(t, 0.5, a.Threshold(10))
	assert.Equal(t, 0.5, a.Threshold(50))
	assert.Equal(t, 0.1, a.Threshold(100))
}

func TestParseTableRejectsMalformedRow(t *testing.T) {
	_, err := ParseTable("n,threshold\n1,0.9\nbad-row\n")
	assert.Error(t, err)
}
