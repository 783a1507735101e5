package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Hash Grid Pipeline Metrics
// =============================================================================

var (
	// OperationsTotal counts external operations (compute_grid, hashgrid_order,
	// reorder, find_neighbors, forward) by backend and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "particlegrid_operations_total",
			Help: "Total number of hash grid operations",
		},
		[]string{"op", "backend", "status"},
	)

	// OperationDurationSeconds measures operation latency
	OperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "particlegrid_operation_duration_seconds",
			Help:    "Duration of hash grid operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)

	// ParticlesProcessedTotal counts particles that passed through an operation
	ParticlesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "particlegrid_particles_processed_total",
			Help: "Total number of particles processed",
		},
		[]string{"op"},
	)

	// GridClampsTotal counts grid axes whose extent was capped at max_grid_dim
	GridClampsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "particlegrid_grid_clamps_total",
			Help: "Total number of grid axes clamped to the maximum grid dimension",
		},
	)

	// NeighborListsSaturatedTotal counts query points whose list reached the cap
	NeighborListsSaturatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "particlegrid_neighbor_lists_saturated_total",
			Help: "Total number of neighbor lists that reached max_neighbors",
		},
	)

	// OccupiedCells tracks occupied cells per batch element of the last call
	OccupiedCells = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "particlegrid_occupied_cells",
			Help:    "Number of non-empty grid cells per batch element",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// ScratchBytes reports the bytes held by scratch pools
	ScratchBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "particlegrid_scratch_bytes",
			Help: "Bytes currently held by hash grid scratch pools",
		},
	)

	// ScratchGrowsTotal counts scratch reallocations
	ScratchGrowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "particlegrid_scratch_grows_total",
			Help: "Total number of scratch buffer reallocations",
		},
		[]string{"buffer"},
	)

	// DeviceErrorsTotal counts failed kernel launches
	DeviceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "particlegrid_device_errors_total",
			Help: "Total number of kernel launches that failed on a backend",
		},
		[]string{"backend"},
	)
)

// =============================================================================
// Particle File Metrics
// =============================================================================

var (
	// StorageWriteDurationSeconds measures Parquet encode and flush time
	StorageWriteDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "particlegrid_storage_write_duration_seconds",
			Help:    "Duration of particle and neighbor Parquet writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"file"},
	)

	// StorageFileBytes tracks the size of written files
	StorageFileBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "particlegrid_storage_file_bytes",
			Help:    "Size of written Parquet files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"file"},
	)

	// StorageRowsTotal counts rows read and written
	StorageRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "particlegrid_storage_rows_total",
			Help: "Total number of Parquet rows read or written",
		},
		[]string{"file", "op"},
	)
)
