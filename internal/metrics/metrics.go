// Package metrics exposes prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the counter set shared by pipeline components. A nil *Metrics
// is safe to use; every method no-ops.
type Metrics struct {
	registry *prometheus.Registry

	artifactsStaged    prometheus.Counter
	duplicatesRejected prometheus.Counter
	archivedEmpty      prometheus.Counter
	eventsIndexed      prometheus.Counter
	indexBatchRetries  prometheus.Counter
	violationsRecorded prometheus.Counter
	iocHits            prometheus.Counter
	engineFailures     prometheus.Counter
	workerRestarts     prometheus.Counter
	reconcileRepairs   prometheus.Counter
	staleRecovered     prometheus.Counter

	queueDepth  prometheus.Gauge
	busyWorkers prometheus.Gauge
}

// New constructs a Metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		artifactsStaged: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_artifacts_staged_total",
			Help: "Artifacts accepted by the stager.",
		}),
		duplicatesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_duplicates_rejected_total",
			Help: "Uploads rejected because fingerprint and name already exist.",
		}),
		archivedEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_archived_empty_total",
			Help: "Zero-event artifacts relocated to the archive.",
		}),
		eventsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_events_indexed_total",
			Help: "Events written to the search index.",
		}),
		indexBatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_index_batch_retries_total",
			Help: "Index batches retried after a transient write failure.",
		}),
		violationsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_violations_recorded_total",
			Help: "Detection violations persisted.",
		}),
		iocHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_ioc_hits_total",
			Help: "Documents flagged by the IOC hunter.",
		}),
		engineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_engine_failures_total",
			Help: "Detection engine invocations that ended degraded.",
		}),
		workerRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_worker_restarts_total",
			Help: "Workers retired and replaced by the supervisor.",
		}),
		reconcileRepairs: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_reconcile_repairs_total",
			Help: "Queue/status desyncs repaired by the reconciliation sweep.",
		}),
		staleRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "casefile_stale_recovered_total",
			Help: "Artifacts recovered from stuck processing statuses.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casefile_queue_depth",
			Help: "Work items currently waiting in the broker.",
		}),
		busyWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casefile_busy_workers",
			Help: "Workers currently processing an artifact.",
		}),
	}
}

// Handler returns the HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncArtifactsStaged() {
	if m == nil {
		return
	}
	m.artifactsStaged.Inc()
}

func (m *Metrics) IncDuplicatesRejected() {
	if m == nil {
		return
	}
	m.duplicatesRejected.Inc()
}

func (m *Metrics) IncArchivedEmpty() {
	if m == nil {
		return
	}
	m.archivedEmpty.Inc()
}

func (m *Metrics) AddEventsIndexed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.eventsIndexed.Add(float64(count))
}

func (m *Metrics) IncIndexBatchRetries() {
	if m == nil {
		return
	}
	m.indexBatchRetries.Inc()
}

func (m *Metrics) AddViolationsRecorded(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.violationsRecorded.Add(float64(count))
}

func (m *Metrics) AddIOCHits(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.iocHits.Add(float64(count))
}

func (m *Metrics) IncEngineFailures() {
	if m == nil {
		return
	}
	m.engineFailures.Inc()
}

func (m *Metrics) IncWorkerRestarts() {
	if m == nil {
		return
	}
	m.workerRestarts.Inc()
}

func (m *Metrics) IncReconcileRepairs() {
	if m == nil {
		return
	}
	m.reconcileRepairs.Inc()
}

func (m *Metrics) IncStaleRecovered() {
	if m == nil {
		return
	}
	m.staleRecovered.Inc()
}

func (m *Metrics) SetQueueDepth(depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// WorkerBusy marks one worker as occupied until the matching WorkerIdle.
func (m *Metrics) WorkerBusy() {
	if m == nil {
		return
	}
	m.busyWorkers.Inc()
}

func (m *Metrics) WorkerIdle() {
	if m == nil {
		return
	}
	m.busyWorkers.Dec()
}
