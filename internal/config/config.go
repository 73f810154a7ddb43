// Package config loads heatgrid configuration from file and environment
// and bootstraps the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	EarthEngine EarthEngineConfig `yaml:"earthengine" mapstructure:"earthengine"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// EarthEngineConfig holds imagery backend credentials and endpoints.
type EarthEngineConfig struct {
	Project      string `yaml:"project" mapstructure:"project"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
}

// PipelineConfig configures the aggregation pipeline.
type PipelineConfig struct {
	// Scale is the linear ground resolution in meters for variable
	// zonal statistics.
	Scale float64 `yaml:"scale" mapstructure:"scale"`
	// ChunkSize bounds the number of grid cells sent in one backend
	// request.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
	// BufferKM is the rural reference ring width around the urban
	// footprint.
	BufferKM float64 `yaml:"buffer_km" mapstructure:"buffer_km"`
	// MaxCloudCover filters Landsat scenes by cloud percentage.
	MaxCloudCover float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	// Workers bounds concurrent (image, chunk) aggregation requests.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// RequestsPerSecond paces backend calls across all workers.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// StoreConfig configures the feature table persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// DataConfig holds local data directories.
type DataConfig struct {
	GridDir   string `yaml:"grid_dir" mapstructure:"grid_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and HEATGRID_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HEATGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("earthengine.base_url", "https://earthengine.googleapis.com")
	v.SetDefault("earthengine.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("pipeline.scale", 30.0)
	v.SetDefault("pipeline.chunk_size", 5000)
	v.SetDefault("pipeline.buffer_km", 10.0)
	v.SetDefault("pipeline.max_cloud_cover", 10.0)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.requests_per_second", 5.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "heatgrid.db")
	v.SetDefault("data.grid_dir", "data/grids")
	v.SetDefault("data.output_dir", "data/processed")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration required by the given command mode.
// It fails fast on the first missing or invalid value.
func (c *Config) Validate(mode string) error {
	if c.Pipeline.ChunkSize <= 0 {
		return eris.Errorf("config: pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.Workers <= 0 {
		return eris.Errorf("config: pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.Scale <= 0 {
		return eris.Errorf("config: pipeline.scale must be positive, got %v", c.Pipeline.Scale)
	}

	switch mode {
	case "grid":
		return nil
	case "features", "baseline":
		if c.EarthEngine.Project == "" {
			return eris.New("config: earthengine.project is required")
		}
		if c.EarthEngine.ClientID == "" || c.EarthEngine.ClientSecret == "" {
			return eris.New("config: earthengine credentials are required")
		}
		if c.Pipeline.BufferKM <= 0 {
			return eris.Errorf("config: pipeline.buffer_km must be positive, got %v", c.Pipeline.BufferKM)
		}
		return nil
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
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
