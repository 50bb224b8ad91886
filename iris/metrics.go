package iris

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the prometheus surface for an encoder and/or remote reader
// running inside a long-lived process (a server binary, not the one-shot
// CLI). Nothing in this package touches the default prometheus registry on
// its own; a caller builds one Metrics with NewMetrics and passes it
// wherever it wants observability.
type Metrics struct {
	tilesWritten    *prometheus.CounterVec
	tileWriteErrors *prometheus.CounterVec
	encodeDuration  *prometheus.HistogramVec
	cascadeTasks    *prometheus.CounterVec
	taskQueueDepth  prometheus.Gauge

	bucketRequests        *prometheus.CounterVec
	bucketRequestDuration *prometheus.HistogramVec
}

func register[K prometheus.Collector](logger *log.Logger, metric K) K {
	if err := prometheus.Register(metric); err != nil {
		logger.Println("iris: metric registration:", err)
	}
	return metric
}

// NewMetrics builds a Metrics instance under the "iris" namespace, scoped
// by subsystem (e.g. "encoder", "remote") so one process can run both an
// encoder and a remote reader without colliding metric names.
func NewMetrics(scope string, logger *log.Logger) *Metrics {
	if logger == nil {
		logger = log.Default()
	}
	namespace := "iris"
	durationBuckets := prometheus.DefBuckets

	return &Metrics{
		tilesWritten: register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "tiles_written_total",
			Help:      "Tiles successfully compressed and written by the encoder, by layer kind",
		}, []string{"layer_kind"})),
		tileWriteErrors: register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "tile_write_errors_total",
			Help:      "Tile compress/write failures encountered by the encoder",
		}, []string{"layer_kind"})),
		encodeDuration: register(logger, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "encode_duration_seconds",
			Help:      "Wall-clock duration of a full encoder run",
			Buckets:   durationBuckets,
		}, []string{"status"})),
		cascadeTasks: register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "derivation_cascade_tasks_total",
			Help:      "Parent-tile compress tasks issued to the derivation task pool",
		}, []string{"strategy"})),
		taskQueueDepth: register(logger, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "task_queue_depth",
			Help:      "Pending tasks in the derivation cascade's task pool",
		})),
		bucketRequests: register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "bucket_requests_total",
			Help:      "Ranged reads issued to the remote reader's bucket, by kind and status",
		}, []string{"kind", "status"})),
		bucketRequestDuration: register(logger, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "bucket_request_duration_seconds",
			Help:      "Duration of individual ranged reads to the remote reader's bucket",
			Buckets:   durationBuckets,
		}, []string{"status"})),
	}
}

// ObserveTileWritten records one successfully compressed tile; layerKind is
// "source" or "derived" so the two encoder work paths are distinguishable.
func (m *Metrics) ObserveTileWritten(layerKind string) {
	m.tilesWritten.WithLabelValues(layerKind).Inc()
}

func (m *Metrics) ObserveTileWriteError(layerKind string) {
	m.tileWriteErrors.WithLabelValues(layerKind).Inc()
}

func (m *Metrics) ObserveCascadeTask(strategy DerivationStrategy) {
	m.cascadeTasks.WithLabelValues(strategy.String()).Inc()
}

func (m *Metrics) SetTaskQueueDepth(n int) {
	m.taskQueueDepth.Set(float64(n))
}

// EncodeTimer times one full Encoder.Encode call; call Finish with the
// terminal Result once Encode returns.
type EncodeTimer struct {
	start   time.Time
	metrics *Metrics
}

func (m *Metrics) StartEncode() *EncodeTimer {
	return &EncodeTimer{start: time.Now(), metrics: m}
}

func (t *EncodeTimer) Finish(result Result) {
	t.metrics.encodeDuration.WithLabelValues(result.Flag.String()).Observe(time.Since(t.start).Seconds())
}

// BucketRequestTimer times one ranged read against a remote reader's
// Bucket; call Finish with the outcome status (readRange passes "ok" or
// "error").
type BucketRequestTimer struct {
	start   time.Time
	metrics *Metrics
	kind    string
}

func (m *Metrics) StartBucketRequest(kind string) *BucketRequestTimer {
	return &BucketRequestTimer{start: time.Now(), metrics: m, kind: kind}
}

func (t *BucketRequestTimer) Finish(status string) {
	t.metrics.bucketRequests.WithLabelValues(t.kind, status).Inc()
	t.metrics.bucketRequestDuration.WithLabelValues(status).Observe(time.Since(t.start).Seconds())
}
