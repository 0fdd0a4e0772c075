// Package config loads spectracluster's runtime configuration from file and
// environment, following the same viper/mapstructure layering the teacher
// repo uses: defaults set centrally, a single Unmarshal, then a thin
// environment-override pass for secrets and deployment-specific paths.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the clustering engine and its CLI.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Binning BinningConfig `mapstructure:"binning"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Store   StoreConfig   `mapstructure:"store"`

	// CircuitBreaker configures the dynamic store's fail-fast I/O wrapper.
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Telemetry configures the optional per-cluster parquet export.
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// BinningConfig selects the preparation pipeline's binning and
// normalization policies (spec.md §3).
type BinningConfig struct {
	// MzBinPolicy is "sequest" or "tide".
	MzBinPolicy string `mapstructure:"mz_bin_policy"`
	// TideBinWidth is only used when MzBinPolicy is "tide".
	TideBinWidth float64 `mapstructure:"tide_bin_width"`

	// IntensityNormalization is "basic", "max_peak", "log", or "cumulative".
	IntensityNormalization string  `mapstructure:"intensity_normalization"`
	IntensityScale         float64 `mapstructure:"intensity_scale"`

	// HighPeakToleranceDa is the tolerance RemoveImpossiblyHighPeaks adds
	// to precursor_mz × charge (spec.md §4.1).
	HighPeakToleranceDa float64 `mapstructure:"high_peak_tolerance_da"`
	// PrecursorWindowDa is the window RemovePrecursorPeaks strips around
	// the precursor and its low-order charge-reduced satellites.
	PrecursorWindowDa float64 `mapstructure:"precursor_window_da"`
	// TopNRawPeaks bounds the raw-peak filter chain's keep-n-highest stage;
	// 0 disables it.
	TopNRawPeaks int `mapstructure:"top_n_raw_peaks"`

	// PrecursorWindowBins is the window, in fragment m/z bins, of the
	// per-bin highest-peak filter (spectrum.HighestPeakPerBinFunction).
	PrecursorWindowBins int32 `mapstructure:"precursor_window_bins"`

	// Workers, BatchSize, OutputDepth size the preparation worker pool.
	Workers     int `mapstructure:"workers"`
	BatchSize   int `mapstructure:"batch_size"`
	OutputDepth int `mapstructure:"output_depth"`
}

// EngineConfig parameterizes the clustering engine itself (spec.md §5, §9).
type EngineConfig struct {
	// PrecursorToleranceBins is Δp, the half-width of the active-cluster
	// candidate window.
	PrecursorToleranceBins int32 `mapstructure:"precursor_tolerance_bins"`
	// NoiseFilterIncrement seeds every new cluster's consensus noise
	// filter.
	NoiseFilterIncrement int32 `mapstructure:"noise_filter_increment"`
	// MinComparisons is the floor the number-of-comparisons assessor uses
	// before trusting its threshold table.
	MinComparisons int `mapstructure:"min_comparisons"`
	// ShareHighestPeaksK is K in the share-highest-peaks pre-filter
	// predicate.
	ShareHighestPeaksK int `mapstructure:"share_highest_peaks_k"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is "memory", "static", or "dynamic".
	Backend string `mapstructure:"backend"`

	// StaticPath, StaticCapacity, StaticMaxValueSize configure the
	// memory-mapped fixed-capacity backend.
	StaticPath         string `mapstructure:"static_path"`
	StaticCapacity     uint32 `mapstructure:"static_capacity"`
	StaticMaxValueSize uint32 `mapstructure:"static_max_value_size"`

	// DynamicDir is the badger data directory for the dynamic backend.
	DynamicDir string `mapstructure:"dynamic_dir"`
}

// CircuitBreakerConfig configures the dynamic store's gobreaker wrapper.
type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds the optional parquet summary export's destination.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file (if one was bound via viper.SetConfigFile
// / AddConfigPath upstream) and environment variables.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(cfg)

	return cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetDefault("binning.mz_bin_policy", "sequest")
	viper.SetDefault("binning.tide_bin_width", 0.02)
	viper.SetDefault("binning.intensity_normalization", "basic")
	viper.SetDefault("binning.intensity_scale", 1.0)
	viper.SetDefault("binning.high_peak_tolerance_da", 1.5)
	viper.SetDefault("binning.precursor_window_da", 0.5)
	viper.SetDefault("binning.top_n_raw_peaks", 100)
	viper.SetDefault("binning.precursor_window_bins", 1)
	viper.SetDefault("binning.workers", 0) // 0 -> concurrency.DefaultSemaphoreLimit
	viper.SetDefault("binning.batch_size", 64)
	viper.SetDefault("binning.output_depth", 128)

	viper.SetDefault("engine.precursor_tolerance_bins", 1)
	viper.SetDefault("engine.noise_filter_increment", 100)
	viper.SetDefault("engine.min_comparisons", 10)
	viper.SetDefault("engine.share_highest_peaks_k", 20)

	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.static_capacity", 1<<20)
	viper.SetDefault("store.static_max_value_size", 1<<16)

	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.spectracluster/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables, mirroring
// the layering the teacher repo uses for credentials and deployment paths.
func overrideWithEnv(cfg *Config) {
	if dir := os.Getenv("SPECTRACLUSTER_STORE_DYNAMIC_DIR"); dir != "" {
		cfg.Store.DynamicDir = dir
	}
	if path := os.Getenv("SPECTRACLUSTER_STORE_STATIC_PATH"); path != "" {
		cfg.Store.StaticPath = path
	}
	if backend := os.Getenv("SPECTRACLUSTER_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if level := os.Getenv("SPECTRACLUSTER_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if path := os.Getenv("SPECTRACLUSTER_TELEMETRY_PARQUET_PATH"); path != "" {
		cfg.Telemetry.ParquetPath = path
	}
}
