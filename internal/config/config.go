// Package config loads terrain-cli settings and sets up logging.
package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment" mapstructure:"environment"`
	Unit        UnitConfig        `yaml:"unit" mapstructure:"unit"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Download    DownloadConfig    `yaml:"download" mapstructure:"download"`
	Terrain     TerrainConfig     `yaml:"terrain" mapstructure:"terrain"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// EnvironmentConfig holds the working directories.
type EnvironmentConfig struct {
	RawDataDir       string `yaml:"raw_data_dir" mapstructure:"raw_data_dir"`
	ProcessedDataDir string `yaml:"processed_data_dir" mapstructure:"processed_data_dir"`
	MapDataDir       string `yaml:"map_data_dir" mapstructure:"map_data_dir"`
	// ProjDir holds an optional PROJ "epsg" definitions file.
	ProjDir string `yaml:"proj_dir" mapstructure:"proj_dir"`
}

// TileDir is where downloaded elevation tiles are cached.
func (e EnvironmentConfig) TileDir() string {
	return filepath.Join(e.RawDataDir, "dem_tiles")
}

// UnitConfig describes the area of interest.
type UnitConfig struct {
	Name                string  `yaml:"name" mapstructure:"name"`
	BoundaryFile        string  `yaml:"boundary_file" mapstructure:"boundary_file"`
	BufferDistanceMiles float64 `yaml:"buffer_distance_miles" mapstructure:"buffer_distance_miles"`
}

// BoundaryPath resolves the boundary file, relative paths against the raw
// data directory.
func (c *Config) BoundaryPath() string {
	p := c.Unit.BoundaryFile
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Environment.RawDataDir, p)
}

// CatalogConfig configures the elevation product catalog.
type CatalogConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Dataset     string  `yaml:"dataset" mapstructure:"dataset"`
	Format      string  `yaml:"format" mapstructure:"format"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DownloadConfig configures tile downloads.
type DownloadConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// TerrainConfig configures the derived layers.
type TerrainConfig struct {
	ElevationIntervalFt float64 `yaml:"elevation_interval_ft" mapstructure:"elevation_interval_ft"`
	SlopeThresholdDeg   float64 `yaml:"slope_threshold_deg" mapstructure:"slope_threshold_deg"`
	OutputFormat        string  `yaml:"output_format" mapstructure:"output_format"`
}

// StoreConfig configures the optional PostGIS sink.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml in the working directory and
// TERRAIN_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TERRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("environment.raw_data_dir", "data/raw")
	v.SetDefault("environment.processed_data_dir", "data/processed")
	v.SetDefault("environment.map_data_dir", "../frontend/public/data")
	v.SetDefault("environment.proj_dir", "")
	v.SetDefault("unit.name", "")
	v.SetDefault("unit.boundary_file", "hunting_district.geojson")
	v.SetDefault("unit.buffer_distance_miles", 1.0)
	v.SetDefault("catalog.base_url", "https://tnmaccess.nationalmap.gov/api/v1/products")
	v.SetDefault("catalog.dataset", "National Elevation Dataset (NED) 1/3 arc-second")
	v.SetDefault("catalog.format", "GeoTIFF")
	v.SetDefault("catalog.page_size", 200)
	v.SetDefault("catalog.timeout_secs", 120)
	v.SetDefault("catalog.rate_limit", 5.0)
	v.SetDefault("download.timeout_secs", 300)
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.max_retries", 0)
	v.SetDefault("download.rate_limit", 0.0)
	v.SetDefault("download.user_agent", "terrain-cli/1.0")
	v.SetDefault("terrain.elevation_interval_ft", 1000.0)
	v.SetDefault("terrain.slope_threshold_deg", 45.0)
	v.SetDefault("terrain.output_format", "geojson")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.schema", "terrain")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Terrain.ElevationIntervalFt <= 0:
		return eris.New("config: terrain.elevation_interval_ft must be positive")
	case c.Terrain.SlopeThresholdDeg <= 0 || c.Terrain.SlopeThresholdDeg >= 90:
		return eris.New("config: terrain.slope_threshold_deg must be in (0, 90)")
	case c.Unit.BufferDistanceMiles < 0:
		return eris.New("config: unit.buffer_distance_miles must not be negative")
	case c.Catalog.PageSize <= 0:
		return eris.New("config: catalog.page_size must be positive")
	}
	switch c.Terrain.OutputFormat {
	case "geojson", "shapefile":
	default:
		return eris.Errorf("config: unknown terrain.output_format %q", c.Terrain.OutputFormat)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
