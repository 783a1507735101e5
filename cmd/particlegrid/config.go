package main

import (
	"errors"
	"os"

	"github.com/23skdu/particlegrid/internal/collision"
	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from PARTICLEGRID_* environment variables, after an
// optional .env file.
type Config struct {
	InputPath string `envconfig:"INPUT"`
	QueryPath string `envconfig:"QUERY"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"./out"`

	Dim          int     `envconfig:"DIM" default:"3"`
	Radius       float32 `envconfig:"RADIUS" default:"1"`
	MaxGridDim   int     `envconfig:"MAX_GRID_DIM" default:"96"`
	MaxNeighbors int     `envconfig:"MAX_NEIGHBORS" default:"128"`
	IncludeSelf  bool    `envconfig:"INCLUDE_SELF" default:"true"`
	Backend      string  `envconfig:"BACKEND" default:"serial"`
	Workers      int     `envconfig:"WORKERS" default:"0"`
	Placement    string  `envconfig:"PLACEMENT" default:"host"`
	DeviceID     int     `envconfig:"DEVICE_ID" default:"0"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	MetricsAddr       string  `envconfig:"METRICS_ADDR"`
	TracingEnabled    bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TracingSampleRate float64 `envconfig:"TRACING_SAMPLE_RATE" default:"1"`
}

const envPrefix = "PARTICLEGRID"

// Config validation errors
var (
	ErrInvalidInputPath    = errors.New("input cannot be empty")
	ErrInvalidOutputDir    = errors.New("output_dir cannot be empty")
	ErrInvalidPlacement    = errors.New("placement must be 'host' or 'device'")
	ErrInvalidLogFormat    = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel     = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidSampleRate   = errors.New("tracing_sample_rate must be between 0 and 1")
	ErrInvalidMaxNeighbors = errors.New("max_neighbors must be positive")
)

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		OutputDir:         "./out",
		Dim:               3,
		Radius:            1,
		MaxGridDim:        96,
		MaxNeighbors:      128,
		IncludeSelf:       true,
		Backend:           collision.BackendSerial,
		Placement:         "host",
		LogFormat:         "json",
		LogLevel:          "info",
		TracingSampleRate: 1,
	}
}

// LoadConfig loads envFile when it exists and then processes the environment.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, err
			}
		}
	}
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, gerrors.WrapConfigurationError(err, "load_config", "parse environment")
	}
	return cfg, nil
}

// ValidateConfig validates the CLI-level settings. Engine parameters are
// validated by collision.Config.
func ValidateConfig(cfg *Config) error {
	if cfg.InputPath == "" {
		return ErrInvalidInputPath
	}
	if cfg.OutputDir == "" {
		return ErrInvalidOutputDir
	}
	if cfg.MaxNeighbors <= 0 {
		return ErrInvalidMaxNeighbors
	}
	if cfg.Placement != "host" && cfg.Placement != "device" {
		return ErrInvalidPlacement
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return ErrInvalidSampleRate
	}
	ec := cfg.EngineConfig()
	return ec.Validate()
}

// EngineConfig maps the CLI settings onto the engine configuration.
func (c *Config) EngineConfig() collision.Config {
	ec := collision.DefaultConfig()
	ec.Dim = c.Dim
	ec.Radius = c.Radius
	ec.MaxGridDim = c.MaxGridDim
	ec.MaxNeighbors = c.MaxNeighbors
	ec.IncludeSelf = c.IncludeSelf
	ec.Backend = c.Backend
	ec.Workers = c.Workers
	ec.DeviceID = c.DeviceID
	if c.Dim > ec.MaxDim {
		ec.MaxDim = min(c.Dim, hashgrid.MaxCartesianDim)
	}
	return ec
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Format = c.LogFormat
	lc.Level = c.LogLevel
	return lc
}
