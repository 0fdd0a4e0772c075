package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/spectracluster/pkg/assessor"
	"github.com/soundprediction/spectracluster/pkg/binning"
	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/config"
	"github.com/soundprediction/spectracluster/pkg/engine"
	"github.com/soundprediction/spectracluster/pkg/logger"
	"github.com/soundprediction/spectracluster/pkg/reader"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
	"github.com/soundprediction/spectracluster/pkg/store"
	"github.com/soundprediction/spectracluster/pkg/telemetry"
)

var demoFixture bool

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Run the clustering engine over a fixture spectrum stream",
	Long: `cluster wires the preparation pipeline and the clustering engine
together: it reads peak-list records, bins and normalizes them,
streams them through the engine, and persists resulting clusters to
the configured store.

A real peak-list parser (MGF/mzML/...) is an external collaborator; this
command ships with a small built-in demo fixture for trying the pipeline
end to end.`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.Flags().BoolVar(&demoFixture, "demo", true, "use the built-in demo fixture instead of a real reader")
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clusterStore, err := openClusterStore(cfg.Store, cfg.CircuitBreaker)
	if err != nil {
		return fmt.Errorf("open cluster store: %w", err)
	}
	defer clusterStore.Close()

	var telem *telemetry.Writer
	if cfg.Telemetry.Enabled {
		telem, err = telemetry.NewWriter(cfg.Telemetry.ParquetPath, 100)
		if err != nil {
			return fmt.Errorf("open telemetry writer: %w", err)
		}
		defer telem.Close()
	}

	if !demoFixture {
		return fmt.Errorf("no peak-list reader is wired in; pass --demo or provide a reader.Reader implementation")
	}

	eng := buildEngine(cfg.Engine, log)

	rdr := reader.NewFixtureReader(demoRecords())
	in, stats := reader.Prepare(ctx, rdr, readerConfig(cfg.Binning, log))

	out := make(chan *cluster.Cluster, 16)
	go eng.Run(engine.NewCancelToken(ctx), in, out)

	n := 0
	for c := range out {
		n++
		key := store.HashKey(c.ID())
		if err := clusterStore.Put(ctx, key, c); err != nil {
			log.Error("failed to persist cluster", "cluster", c.ID(), "err", err)
			continue
		}
		if telem != nil {
			if err := telem.Record(c); err != nil {
				log.Error("failed to record telemetry", "cluster", c.ID(), "err", err)
			}
		}
	}

	log.Info("clustering run complete",
		"clusters_emitted", n,
		"empty_spectra_dropped", stats.EmptySpectraDropped,
		"input_format_errors", stats.InputFormatErrors,
		"engine_empty_spectra_dropped", eng.EmptySpectraDropped(),
	)
	return nil
}

func buildEngine(cfg config.EngineConfig, log *slog.Logger) *engine.Engine {
	a, err := assessor.NewDefault(cfg.MinComparisons)
	if err != nil {
		// The embedded default table is frozen at build time; a parse
		// failure here means the embedded resource itself is broken.
		panic(fmt.Sprintf("spectracluster: embedded assessor table: %v", err))
	}

	return engine.New(engine.Config{
		PrecursorToleranceBins: cfg.PrecursorToleranceBins,
		NoiseFilterIncrement:   cfg.NoiseFilterIncrement,
		Assessor:               a,
		Predicates: []cluster.Predicate{
			cluster.ShareHighestPeaksClusterPredicate{K: cfg.ShareHighestPeaksK},
		},
		Logger: log,
	})
}

func readerConfig(cfg config.BinningConfig, log *slog.Logger) reader.Config {
	var mzBinner binning.MzBinner
	if cfg.MzBinPolicy == "tide" {
		mzBinner = binning.NewTideBinner(cfg.TideBinWidth)
	} else {
		mzBinner = binning.NewSequestBinner()
	}

	var normalizer binning.IntensityNormalizer
	switch cfg.IntensityNormalization {
	case "max_peak":
		normalizer = binning.MaxPeakNormalizer{Scale: cfg.IntensityScale}
	case "log":
		normalizer = binning.LogNormalizer{Scale: cfg.IntensityScale}
	case "cumulative":
		normalizer = binning.CumulativeIntensityNormalizer{Scale: cfg.IntensityScale}
	default:
		normalizer = binning.BasicIntegerNormalizer{Scale: cfg.IntensityScale}
	}

	// spec.md §4.1: raw-peak loading filters, composed left-to-right.
	filters := []spectrum.RawFilter{
		spectrum.RemoveImpossiblyHighPeaks(cfg.HighPeakToleranceDa),
		spectrum.RemovePrecursorPeaks(cfg.PrecursorWindowDa),
	}
	if cfg.TopNRawPeaks > 0 {
		filters = append(filters, spectrum.KeepNHighestRawPeaks(cfg.TopNRawPeaks))
	}
	rawFilter := spectrum.Chain(filters...)

	return reader.Config{
		RawFilter:           rawFilter,
		MzBinner:            mzBinner,
		PrecursorBinner:     binning.NewPrecursorBinner(),
		IntensityNormalizer: normalizer,
		WindowBins:          cfg.PrecursorWindowBins,
		Workers:             cfg.Workers,
		BatchSize:           cfg.BatchSize,
		OutputDepth:         cfg.OutputDepth,
		Logger:              log,
	}
}

func openClusterStore(cfg config.StoreConfig, breakerCfg config.CircuitBreakerConfig) (store.ClusterStore, error) {
	switch cfg.Backend {
	case "static":
		return store.OpenStaticClusterStore(cfg.StaticPath, cfg.StaticCapacity, cfg.StaticMaxValueSize)
	case "dynamic":
		return store.OpenDynamicClusterStore(cfg.DynamicDir, breakerCfg)
	default:
		return store.NewMemoryClusterStore(), nil
	}
}

// demoRecords is the built-in fixture the --demo flag runs against: a
// handful of near-identical spectra that should collapse into one
// cluster, plus one far-apart precursor that should not.
func demoRecords() []reader.Record {
	return []reader.Record{
		{
			Title:           "demo-1",
			PrecursorMz:     500.25,
			PrecursorCharge: 2,
			Peaks: []spectrum.Peak{
				{Mz: 100.001, Intensity: 1000},
				{Mz: 150.002, Intensity: 500},
				{Mz: 200.003, Intensity: 250},
			},
		},
		{
			Title:           "demo-2",
			PrecursorMz:     500.25,
			PrecursorCharge: 2,
			Peaks: []spectrum.Peak{
				{Mz: 100.001, Intensity: 900},
				{Mz: 150.002, Intensity: 450},
				{Mz: 200.003, Intensity: 260},
			},
		},
		{
			Title:           "demo-3",
			PrecursorMz:     900.10,
			PrecursorCharge: 3,
			Peaks: []spectrum.Peak{
				{Mz: 300.010, Intensity: 700},
				{Mz: 400.020, Intensity: 300},
			},
		},
	}
}
