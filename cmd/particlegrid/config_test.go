package main

import (
	"os"
	"path/filepath"
	"testing"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.InputPath = "particles.parquet"
	return cfg
}

func TestValidateConfig_Valid(t *testing.T) {
	cfg := validConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil", err)
	}
}

func TestValidateConfig_Sentinels(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty input", func(c *Config) { c.InputPath = "" }, ErrInvalidInputPath},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }, ErrInvalidOutputDir},
		{"zero max neighbors", func(c *Config) { c.MaxNeighbors = 0 }, ErrInvalidMaxNeighbors},
		{"unknown placement", func(c *Config) { c.Placement = "tpu" }, ErrInvalidPlacement},
		{"xml logs", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"trace level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
		{"sample rate", func(c *Config) { c.TracingSampleRate = 2 }, ErrInvalidSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := ValidateConfig(&cfg); err != tt.want {
				t.Errorf("ValidateConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateConfig_EngineSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Radius = 0
	if err := ValidateConfig(&cfg); !gerrors.IsType(err, gerrors.ErrorTypeConfiguration) {
		t.Errorf("ValidateConfig() with zero radius error = %v, want configuration error", err)
	}

	cfg = validConfig()
	cfg.Backend = "gpu"
	if err := ValidateConfig(&cfg); !gerrors.IsType(err, gerrors.ErrorTypeConfiguration) {
		t.Errorf("ValidateConfig() with unknown backend error = %v, want configuration error", err)
	}
}

func TestEngineConfig_RaisesMaxDim(t *testing.T) {
	cfg := validConfig()
	cfg.Dim = 4
	cfg.MaxGridDim = 32
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("ValidateConfig() error = %v, want nil", err)
	}
	ec := cfg.EngineConfig()
	if ec.MaxDim != 4 {
		t.Errorf("MaxDim = %d, want 4", ec.MaxDim)
	}

	cfg.Dim = 9
	if err := ValidateConfig(&cfg); err == nil {
		t.Error("ValidateConfig() with dim 9 succeeded")
	}
}

func TestLoadConfig_EnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PARTICLEGRID_INPUT=from-dotenv.parquet\nPARTICLEGRID_RADIUS=0.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARTICLEGRID_MAX_NEIGHBORS", "16")
	t.Setenv("PARTICLEGRID_BACKEND", "parallel")
	// godotenv never overrides variables that are already set.
	t.Setenv("PARTICLEGRID_RADIUS", "0.25")
	t.Cleanup(func() { _ = os.Unsetenv("PARTICLEGRID_INPUT") })

	cfg, err := LoadConfig(envFile)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.InputPath != "from-dotenv.parquet" {
		t.Errorf("InputPath = %q, want from-dotenv.parquet", cfg.InputPath)
	}
	if cfg.Radius != 0.25 {
		t.Errorf("Radius = %v, want 0.25", cfg.Radius)
	}
	if cfg.MaxNeighbors != 16 || cfg.Backend != "parallel" {
		t.Errorf("MaxNeighbors/Backend = %d/%s, want 16/parallel", cfg.MaxNeighbors, cfg.Backend)
	}
	if cfg.MaxGridDim != 96 || cfg.Dim != 3 || !cfg.IncludeSelf || cfg.LogFormat != "json" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_MissingDotEnv(t *testing.T) {
	t.Setenv("PARTICLEGRID_INPUT", "in.parquet")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.InputPath != "in.parquet" || cfg.OutputDir != "./out" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadConfig_BadEnvValue(t *testing.T) {
	t.Setenv("PARTICLEGRID_RADIUS", "wide")
	_, err := LoadConfig("")
	if err == nil {
		t.Fatal("LoadConfig() with a non-numeric radius succeeded")
	}
	if !gerrors.IsType(err, gerrors.ErrorTypeConfiguration) {
		t.Errorf("LoadConfig() error = %v, want a configuration error", err)
	}
}
