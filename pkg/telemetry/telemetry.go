// Package telemetry exports a per-cluster summary row for every cluster the
// engine emits, batched into parquet files the same way the teacher repo's
// slog ParquetHandler batches log records: buffer in memory, flush a whole
// file at once via parquet-go's WriteFile.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/spectracluster/pkg/cluster"
)

// ClusterSummary is one row of the telemetry export: a cluster's shape and
// its strongest recorded match at the time it was flushed.
type ClusterSummary struct {
	ClusterID           string  `parquet:"cluster_id"`
	MemberCount         int     `parquet:"member_count"`
	PrecursorMzBin      int32   `parquet:"precursor_mz_bin"`
	BestMatchID         string  `parquet:"best_match_id"`
	BestMatchSimilarity float32 `parquet:"best_match_similarity"`
	NumRecordedMatches  int     `parquet:"num_recorded_matches"`
}

// Summarize builds a ClusterSummary from a cluster's current state. The
// best match reported is whichever SaveComparisonResult ranked highest
// (BestMatches is kept sorted ascending by similarity).
func Summarize(c *cluster.Cluster) ClusterSummary {
	matches := c.BestMatches()
	s := ClusterSummary{
		ClusterID:         c.ID(),
		MemberCount:        c.MemberCount(),
		PrecursorMzBin:     c.PrecursorMzBin(),
		NumRecordedMatches: len(matches),
	}
	if len(matches) > 0 {
		best := matches[len(matches)-1]
		s.BestMatchID = best.OtherID
		s.BestMatchSimilarity = best.Similarity
	}
	return s
}

// Writer batches ClusterSummary rows and flushes each batch to its own
// parquet file under outputDir, mirroring the teacher's
// "execution_errors_<timestamp>_<nanos>.parquet" naming scheme.
type Writer struct {
	outputDir string
	batchSize int

	mu     sync.Mutex
	buffer []ClusterSummary
}

// NewWriter creates outputDir if needed and returns a Writer that flushes
// every batchSize rows.
func NewWriter(outputDir string, batchSize int) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create output dir: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Writer{outputDir: outputDir, batchSize: batchSize, buffer: make([]ClusterSummary, 0, batchSize)}, nil
}

// Record appends a cluster's summary and flushes if the batch is full.
func (w *Writer) Record(c *cluster.Cluster) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, Summarize(c))
	if len(w.buffer) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush writes any buffered rows to a new parquet file, even if the batch
// is not full. Safe to call repeatedly; a no-op when nothing is buffered.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	name := fmt.Sprintf("clusters_%s_%d.parquet", time.Now().UTC().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(w.outputDir, name)

	if err := parquet.WriteFile(path, w.buffer); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}

	w.buffer = w.buffer[:0]
	return nil
}

// Close flushes any remaining buffered rows.
func (w *Writer) Close() error {
	return w.Flush()
}
