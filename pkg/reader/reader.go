// Package reader defines the external peak-list reader contract and the
// bounded worker-pool pipeline that turns raw records into BinarySpectrum
// values for the engine. Concrete file-format parsers (MGF/mzML/...) are
// external collaborators; this package only ships a minimal fixture
// reader for tests and demos.
package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/soundprediction/spectracluster/pkg/binning"
	"github.com/soundprediction/spectracluster/pkg/concurrency"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

// Record is one peak-list entry as spec.md §6 describes the reader
// contract: a precursor, its peaks (not required to be pre-sorted), and
// free-form metadata.
type Record struct {
	PrecursorMz      float64
	PrecursorCharge  int32 // 0 = unknown
	Peaks            []spectrum.Peak
	AdditionalParams map[string]string
	Title            string
}

// Reader yields records in file order. Next returns io.EOF when exhausted.
// The preparation pipeline below re-sorts each batch of records by
// precursor bin.
type Reader interface {
	Next(ctx context.Context) (Record, error)
}

// FixtureReader is a minimal in-memory Reader over a pre-built slice of
// records, used for tests and demos; it is not a file-format parser.
type FixtureReader struct {
	records []Record
	pos     int
}

// NewFixtureReader wraps records as a Reader.
func NewFixtureReader(records []Record) *FixtureReader {
	return &FixtureReader{records: records}
}

// Next implements Reader.
func (r *FixtureReader) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if r.pos >= len(r.records) {
		return Record{}, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

// Config parameterizes the preparation pipeline: the raw filter chain, the
// three binarization stages, and the worker pool/batching shape.
type Config struct {
	RawFilter           spectrum.RawFilter
	MzBinner            binning.MzBinner
	PrecursorBinner     binning.PrecursorBinner
	IntensityNormalizer binning.IntensityNormalizer
	WindowBins          int32

	Workers     int
	BatchSize   int
	OutputDepth int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = concurrency.DefaultSemaphoreLimit
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.OutputDepth <= 0 {
		c.OutputDepth = c.BatchSize * 2
	}
	if c.WindowBins <= 0 {
		c.WindowBins = 1
	}
	return c
}

// Stats accumulates counters surfaced after the pipeline finishes.
type Stats struct {
	EmptySpectraDropped int64
	InputFormatErrors   int64
}

// Prepare drives reader on a background goroutine and returns at once. It
// batches the records and fans each batch out across a bounded worker pool
// to run the raw filter chain and binarization (spec.md §5: "spectrum
// preparation...MAY run on a bounded worker pool, producing to a
// size-bounded FIFO that feeds the engine"). Each batch is sorted by
// precursor bin before being forwarded; records are not reordered across
// batches, so the output is globally precursor-sorted only when the
// reader's order already is, apart from disorder within a batch. The
// returned channel is closed when reader is exhausted or ctx is done;
// stats is safe to read only after the channel closes.
func Prepare(ctx context.Context, rdr Reader, cfg Config) (<-chan spectrum.BinarySpectrum, *Stats) {
	cfg = cfg.withDefaults()
	out := make(chan spectrum.BinarySpectrum, cfg.OutputDepth)
	stats := &Stats{}

	pool := concurrency.NewWorkerPool(cfg.Workers, func(_ context.Context, rec Record) (spectrum.BinarySpectrum, error) {
		return prepareOne(rec, cfg)
	})

	go func() {
		defer close(out)

		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}

		var batch []Record
		flush := func() {
			if len(batch) == 0 {
				return
			}
			results, errs := pool.ProcessItems(ctx, batch)
			prepared := make([]spectrum.BinarySpectrum, 0, len(results))
			for i, err := range errs {
				if err != nil {
					stats.InputFormatErrors++
					logger.Warn("dropping record after preparation error", "title", batch[i].Title, "err", err)
					continue
				}
				if len(results[i].Mz) == 0 {
					stats.EmptySpectraDropped++
					logger.Warn("dropping spectrum with no peaks after filtering", "title", batch[i].Title)
					continue
				}
				prepared = append(prepared, results[i])
			}
			sort.Slice(prepared, func(i, j int) bool { return prepared[i].PrecursorMzBin < prepared[j].PrecursorMzBin })
			for _, bs := range prepared {
				select {
				case out <- bs:
				case <-ctx.Done():
					return
				}
			}
			batch = batch[:0]
		}

		for {
			if ctx.Err() != nil {
				return
			}
			rec, err := rdr.Next(ctx)
			if errors.Is(err, io.EOF) {
				flush()
				return
			}
			if err != nil {
				stats.InputFormatErrors++
				logger.Warn("reader error", "err", err)
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= cfg.BatchSize {
				flush()
			}
		}
	}()

	return out, stats
}

func prepareOne(rec Record, cfg Config) (spectrum.BinarySpectrum, error) {
	raw := spectrum.RawSpectrum{
		PrecursorMz:     rec.PrecursorMz,
		PrecursorCharge: rec.PrecursorCharge,
		Peaks:           rec.Peaks,
	}
	if cfg.RawFilter != nil {
		raw = cfg.RawFilter(raw)
	}
	return spectrum.Build(raw, cfg.MzBinner, cfg.PrecursorBinner, cfg.IntensityNormalizer, cfg.WindowBins), nil
}
