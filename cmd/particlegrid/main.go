package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/23skdu/particlegrid/internal/collision"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/logging"
	"github.com/23skdu/particlegrid/internal/storage"
	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/23skdu/particlegrid/internal/tracing"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	particlesOutput = "particles.parquet"
	neighborsOutput = "neighbors.parquet"
)

func main() {
	cfg, err := LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := ValidateConfig(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		// Start Metrics Server
		go func() {
			logger.Info().Str("address", cfg.MetricsAddr).Msg("Starting metrics server")
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	}

	ctx := context.Background()
	var shutdownTracer func(context.Context) error
	if cfg.TracingEnabled {
		shutdownTracer, err = tracing.InitTracer(tracing.SpanConfig{
			ServiceName:    "particlegrid",
			ServiceVersion: "dev",
			SampleRate:     cfg.TracingSampleRate,
			Output:         os.Stderr,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialise tracing")
			os.Exit(1)
		}
	}

	err = run(ctx, &cfg, logger)
	if shutdownTracer != nil {
		_ = shutdownTracer(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Particle grid run failed")
		os.Exit(1)
	}
}

// run reads the input particles, runs the forward pipeline and writes the
// sorted particles and their neighbor lists to cfg.OutputDir.
func run(ctx context.Context, cfg *Config, logger zerolog.Logger) (err error) {
	ctx, span := tracing.CreateSpan(ctx, "run")
	defer func() { span.Finish(err) }()
	if id := tracing.GetContextTraceID(ctx); id != "" {
		logger = logger.With().Str("trace_id", id).Logger()
	}
	mem := memory.NewGoAllocator()

	engine, err := collision.NewEngine(cfg.EngineConfig(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	locs, data, _, err := storage.ReadParticlesFile(cfg.InputPath, mem)
	if err != nil {
		return err
	}
	var qlocs *tensor.Float32
	if cfg.QueryPath != "" {
		if qlocs, _, _, err = storage.ReadParticlesFile(cfg.QueryPath, mem); err != nil {
			return err
		}
	}
	if data.Width == 0 {
		data = nil
	}
	if cfg.Placement == "device" {
		for _, t := range []*tensor.Float32{locs, data, qlocs} {
			if t != nil {
				t.Placement = tensor.Device
			}
		}
	}

	logger.Info().
		Str("input", cfg.InputPath).
		Int("batch", locs.Batch).
		Int("particles", locs.Rows).
		Int("dim", locs.Width).
		Msg("Particles loaded")

	start := time.Now()
	res, err := engine.Forward(ctx, locs, data, qlocs)
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		logger.Warn().Err(d).Msg("Grid clamped")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	if err := storage.WriteParticlesFile(filepath.Join(cfg.OutputDir, particlesOutput), mem, res.Locs, res.Data, res.Idxs); err != nil {
		return err
	}
	if err := storage.WriteNeighborsFile(filepath.Join(cfg.OutputDir, neighborsOutput), res.Neighbors); err != nil {
		return err
	}

	logger.Info().
		Str("output_dir", cfg.OutputDir).
		Dur("duration", time.Since(start)).
		Int("clamped_elements", len(res.Diagnostics)).
		Str("order_fingerprint", fmt.Sprintf("%016x", hashgrid.Fingerprint(res.Idxs.Data))).
		Str("locs_fingerprint", fmt.Sprintf("%016x", hashgrid.FingerprintFloat32(res.Locs.Data))).
		Str("neighbor_fingerprint", fmt.Sprintf("%016x", hashgrid.Fingerprint(res.Neighbors.Data))).
		Msg("Particle grid run completed")
	return nil
}
