package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the control plane.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	instancesCreated prometheus.Counter
	instancesDeleted prometheus.Counter
	instancesStarted prometheus.Counter
	instancesStopped prometheus.Counter
	workersSpawned   prometheus.Counter
	workersCrashed   prometheus.Counter
	workersRestarted prometheus.Counter
	retryLimitReached prometheus.Counter
	ipcCallsTotal    *prometheus.CounterVec

	// Histograms
	ipcLatency prometheus.HistogramVec

	// Gauges
	uptime          prometheus.GaugeFunc
	instanceGauge   *prometheus.GaugeVec
	workerGauge     *prometheus.GaugeVec
	retryWindow     *prometheus.GaugeVec
}

// Default histogram buckets for IPC round-trip latency (milliseconds).
var defaultBuckets = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		instancesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "instances_created_total", Help: "Total instances created",
		}),
		instancesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "instances_deleted_total", Help: "Total instances deleted",
		}),
		instancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "instances_started_total", Help: "Total instance start transitions",
		}),
		instancesStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "instances_stopped_total", Help: "Total instance stop transitions",
		}),
		workersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "workers_spawned_total", Help: "Total worker subprocesses spawned",
		}),
		workersCrashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "workers_crashed_total", Help: "Total worker crashes observed by the Supervisor",
		}),
		workersRestarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "workers_restarted_total", Help: "Total automatic worker restarts",
		}),
		retryLimitReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_limit_reached_total", Help: "Total instances stopped after exceeding the retry limit",
		}),
		ipcCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ipc_calls_total", Help: "Total IPC request/response round-trips by message type and result",
		}, []string{"message_type", "result"}),

		instanceGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instances", Help: "Current instance count by state",
		}, []string{"state"}),
		workerGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workers", Help: "Current worker count by lifecycle state",
		}, []string{"state"}),
		retryWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "retry_window_count", Help: "Current rolling-window crash count for an instance",
		}, []string{"instance"}),
	}

	pm.ipcLatency = *prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "ipc_latency_milliseconds", Help: "IPC round-trip latency in milliseconds", Buckets: buckets,
	}, []string{"message_type"})

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: "uptime_seconds", Help: "Time since the control plane started"},
		func() float64 { return time.Since(StartTime()).Seconds() },
	)

	registry.MustRegister(
		pm.instancesCreated, pm.instancesDeleted, pm.instancesStarted, pm.instancesStopped,
		pm.workersSpawned, pm.workersCrashed, pm.workersRestarted, pm.retryLimitReached,
		pm.ipcCallsTotal, &pm.ipcLatency, pm.uptime, pm.instanceGauge, pm.workerGauge, pm.retryWindow,
	)

	promMetrics = pm
}

func RecordPrometheusInstanceCreated() {
	if promMetrics != nil {
		promMetrics.instancesCreated.Inc()
	}
}

func RecordPrometheusInstanceDeleted() {
	if promMetrics != nil {
		promMetrics.instancesDeleted.Inc()
	}
}

func RecordPrometheusInstanceStarted() {
	if promMetrics != nil {
		promMetrics.instancesStarted.Inc()
	}
}

func RecordPrometheusInstanceStopped() {
	if promMetrics != nil {
		promMetrics.instancesStopped.Inc()
	}
}

func RecordPrometheusWorkerSpawned() {
	if promMetrics != nil {
		promMetrics.workersSpawned.Inc()
	}
}

func RecordPrometheusWorkerCrashed() {
	if promMetrics != nil {
		promMetrics.workersCrashed.Inc()
	}
}

func RecordPrometheusWorkerRestarted() {
	if promMetrics != nil {
		promMetrics.workersRestarted.Inc()
	}
}

func RecordPrometheusRetryLimitReached() {
	if promMetrics != nil {
		promMetrics.retryLimitReached.Inc()
	}
}

// RecordPrometheusIPCCall records one IPC round-trip's result and latency.
func RecordPrometheusIPCCall(msgType string, durationMs int64, success, timedOut bool) {
	if promMetrics == nil {
		return
	}
	result := "success"
	switch {
	case timedOut:
		result = "timeout"
	case !success:
		result = "error"
	}
	promMetrics.ipcCallsTotal.WithLabelValues(msgType, result).Inc()
	promMetrics.ipcLatency.WithLabelValues(msgType).Observe(float64(durationMs))
}

// SetInstanceGauge sets the current instance count for a state
// ("loaded", "running", "retry_limit_reached").
func SetInstanceGauge(state string, count int) {
	if promMetrics != nil {
		promMetrics.instanceGauge.WithLabelValues(state).Set(float64(count))
	}
}

// SetWorkerGauge sets the current worker count for a lifecycle state
// (starting/ready/busy/stopping/stopped/crashed).
func SetWorkerGauge(state string, count int) {
	if promMetrics != nil {
		promMetrics.workerGauge.WithLabelValues(state).Set(float64(count))
	}
}

// SetRetryWindowCount sets the current rolling-window crash count for an
// instance, as tracked by the RetryMonitor.
func SetRetryWindowCount(instanceID string, count int) {
	if promMetrics != nil {
		promMetrics.retryWindow.WithLabelValues(instanceID).Set(float64(count))
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
