package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hrrr"

// Metrics holds the Prometheus collectors for the ingestion pipeline and the
// tile renderer.
type Metrics struct {
	// Pipeline metrics.
	PipelineRuns     *prometheus.CounterVec // labels: outcome={activated,skipped,no_cycle,failed}
	StageFailures    *prometheus.CounterVec // labels: stage={download,process,ingest}
	DownloadBytes    prometheus.Counter
	IngestedRows     *prometheus.CounterVec // labels: kind={surface,pressure}
	PipelineDuration prometheus.Histogram
	ActiveCycleAge   prometheus.Gauge

	// Raster cache metrics.
	RasterLoads *prometheus.CounterVec // labels: kind={surface,pressure}, outcome={loaded,empty,error}

	// Tile metrics.
	TileRequests   *prometheus.CounterVec // labels: result={hit,miss,empty,out_of_bounds}
	RenderDuration prometheus.Histogram
	TileCacheSize  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRuns,
		m.StageFailures,
		m.DownloadBytes,
		m.IngestedRows,
		m.PipelineDuration,
		m.ActiveCycleAge,
		m.RasterLoads,
		m.TileRequests,
		m.RenderDuration,
		m.TileCacheSize,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Orchestrator runs by outcome.",
		}, []string{"outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_failures_total",
			Help:      "Per-forecast-hour failures by pipeline stage.",
		}, []string{"stage"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes of GRIB2 data downloaded from the object store.",
		}),
		IngestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_rows_total",
			Help:      "Grid rows handed to the store by kind.",
		}, []string{"kind"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a full cycle ingestion run.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		ActiveCycleAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_cycle_age_seconds",
			Help:      "Age of the active cycle's init time at the end of the last run.",
		}),
		RasterLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raster_loads_total",
			Help:      "Raster builds from the store by kind and outcome.",
		}, []string{"kind", "outcome"}),
		TileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_requests_total",
			Help:      "Tile renders by result.",
		}, []string{"result"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_render_duration_seconds",
			Help:      "Time to rasterize and encode one tile.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		TileCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tile_cache_entries",
			Help:      "Encoded tiles currently held in memory.",
		}),
	}
}
