package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generations
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evador_generations_total",
			Help: "Generation requests by output kind and result",
		},
		[]string{"kind", "result"}, // result: success|validation|generation|validation_backend|storage|internal
	)
	ActiveGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "evador_generations_active",
			Help: "Current number of generations in progress",
		},
	)
	GenerationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evador_generation_duration_seconds",
			Help:    "Duration of generation strategies",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s..256s
		},
		[]string{"kind"},
	)

	// Self-check
	ThreatChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evador_threat_checks_total",
			Help: "Threat check runs by result",
		},
		[]string{"result"}, // result: clean|detected|error
	)

	// Upload storage
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evador_upload_bytes",
			Help:    "Size of uploaded source binaries",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB..16MiB
		},
	)
	CleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evador_cleanup_failures_total",
			Help: "Request workspaces that could not be fully removed",
		},
	)
	OrphansSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evador_orphans_swept_total",
			Help: "Stale request files removed by the sweeper",
		},
	)

	// History
	DBRecordOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evador_db_record_ops_total",
			Help: "Generation history operations in the database",
		},
		[]string{"op"}, // op: save|list|count
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evador_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Generations
		Generations,
		ActiveGenerations,
		GenerationDurationSeconds,
		// Self-check
		ThreatChecks,
		// Storage
		UploadBytes,
		CleanupFailures,
		OrphansSwept,
		// History
		DBRecordOps,
		// Errors
		Errors,
	)
}

// StartMetricsServer blocks serving /metrics on addr.
func StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// Generations
func IncGeneration(kind, result string) {
	Generations.WithLabelValues(kind, result).Inc()
}

func GenerationStarted() {
	ActiveGenerations.Inc()
}

func GenerationFinished() {
	ActiveGenerations.Dec()
}

func ObserveGenerationDuration(kind string, d time.Duration) {
	GenerationDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// Self-check
func IncThreatCheck(result string) {
	ThreatChecks.WithLabelValues(result).Inc()
}

// Storage
func ObserveUploadSize(n int64) {
	UploadBytes.Observe(float64(n))
}

func IncCleanupFailure() {
	CleanupFailures.Inc()
}

func AddOrphansSwept(n int) {
	OrphansSwept.Add(float64(n))
}

// History
func IncDBRecordOp(op string) {
	DBRecordOps.WithLabelValues(op).Inc()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
