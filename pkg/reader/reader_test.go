package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/spectracluster/pkg/binning"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

func testConfig() Config {
	return Config{
		RawFilter:           spectrum.Chain(spectrum.KeepNHighestRawPeaks(40)),
		MzBinner:            binning.NewSequestBinner(),
		PrecursorBinner:     binning.NewPrecursorBinner(),
		IntensityNormalizer: binning.BasicIntegerNormalizer{Scale: 1},
		WindowBins:          1,
		BatchSize:           2,
	}
}

func drain(t *testing.T, ch <-chan spectrum.BinarySpectrum) []spectrum.BinarySpectrum {
	t.Helper()
	var out []spectrum.BinarySpectrum
	timeout := time.After(5 * time.Second)
	for {
		select {
		case bs, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, bs)
		case <-timeout:
			t.Fatal("timed out draining prepared spectra")
		}
	}
}

func TestPrepareProducesSortedBinarySpectra(t *testing.T) {
	records := []Record{
		{PrecursorMz: 900.10, PrecursorCharge: 2, Peaks: []spectrum.Peak{{Mz: 100, Intensity: 10}, {Mz: 200, Intensity: 20}}},
		{PrecursorMz: 500.25, PrecursorCharge: 2, Peaks: []spectrum.Peak{{Mz: 150, Intensity: 5}, {Mz: 250, Intensity: 15}}},
	}
	rdr := NewFixtureReader(records)

	out, stats := Prepare(context.Background(), rdr, testConfig())
	prepared := drain(t, out)

	require.Len(t, prepared, 2)
	assert.LessOrEqual(t, prepared[0].PrecursorMzBin, prepared[1].PrecursorMzBin)
	assert.Equal(t, int64(0), stats.EmptySpectraDropped)
}

func TestPrepareDropsEmptySpectraAfterFiltering(t *testing.T) {
	records := []Record{
		{PrecursorMz: 500.25, PrecursorCharge: 1, Peaks: nil},
		{PrecursorMz: 500.25, PrecursorCharge: 1, Peaks: []spectrum.Peak{{Mz: 100, Intensity: 10}}},
	}
	rdr := NewFixtureReader(records)

	out, stats := Prepare(context.Background(), rdr, testConfig())
	prepared := drain(t, out)

	require.Len(t, prepared, 1)
	assert.Equal(t, int64(1), stats.EmptySpectraDropped)
}

func TestPrepareHonorsCancellation(t *testing.T) {
	records := []Record{
		{PrecursorMz: 500.25, PrecursorCharge: 1, Peaks: []spectrum.Peak{{Mz: 100, Intensity: 10}}},
	}
	rdr := NewFixtureReader(records)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, _ := Prepare(ctx, rdr, testConfig())
	prepared := drain(t, out)
	assert.Len(t, prepared, 0)
}
