// Package metrics collects and exposes control-plane observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (atomic counters + a minute-bucketed
//     time series) for a lightweight JSON introspection endpoint.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.).
//
// # Concurrency — hot path
//
// RecordIPCCall is called from the Supervisor on every request/response
// round-trip made through Supervisor.Send (heartbeat PINGs and the
// termination SHUTDOWN are not recorded) and must be fast: it uses atomic increments for global
// counters and dispatches a lightweight event onto a buffered channel
// for the time-series worker to process asynchronously, avoiding any
// lock on the hot path.
//
// # Invariants
//
//   - IPCCallsTotal == IPCCallsSuccess + IPCCallsFailed (maintained by
//     RecordIPCCall).
//   - The time-series ring buffer holds at most timeSeriesBucketCount
//     buckets (24 * 60 = 1440 for the last 24 hours at 1-minute
//     granularity).
//   - tsChan capacity is 8192 events; events dropped when full are
//     counted in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores IPC call metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Calls        int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes control-plane runtime metrics: instance
// lifecycle counts, worker restarts/crashes, and IPC round-trip latency.
type Metrics struct {
	// Instance lifecycle counters
	InstancesCreated atomic.Int64
	InstancesDeleted atomic.Int64
	InstancesStarted atomic.Int64
	InstancesStopped atomic.Int64

	// IPC call metrics (Supervisor -> Worker round trips)
	IPCCallsTotal   atomic.Int64
	IPCCallsSuccess atomic.Int64
	IPCCallsFailed  atomic.Int64
	IPCCallsTimeout atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Worker metrics
	WorkersSpawned atomic.Int64
	WorkersCrashed atomic.Int64
	WorkersRestarted atomic.Int64
	RetryLimitReached atomic.Int64

	// Per-instance metrics
	instMetrics sync.Map // instanceID -> *InstanceMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention
// on the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// InstanceMetrics tracks IPC call metrics for a single instance.
type InstanceMetrics struct {
	Calls     atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	Restarts  atomic.Int64
	TotalMs   atomic.Int64
	MinMs     atomic.Int64
	MaxMs     atomic.Int64
}

// Global metrics instance
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized
func StartTime() time.Time {
	return global.startTime
}

// RecordInstanceCreated records an instance creation.
func (m *Metrics) RecordInstanceCreated() {
	m.InstancesCreated.Add(1)
	RecordPrometheusInstanceCreated()
}

// RecordInstanceDeleted records an instance deletion.
func (m *Metrics) RecordInstanceDeleted() {
	m.InstancesDeleted.Add(1)
	RecordPrometheusInstanceDeleted()
}

// RecordInstanceStarted records an instance transitioning to running.
func (m *Metrics) RecordInstanceStarted() {
	m.InstancesStarted.Add(1)
	RecordPrometheusInstanceStarted()
}

// RecordInstanceStopped records an instance transitioning out of running.
func (m *Metrics) RecordInstanceStopped() {
	m.InstancesStopped.Add(1)
	RecordPrometheusInstanceStopped()
}

// RecordIPCCall records one Supervisor<->Worker request/response
// round-trip, keyed by instance id.
func (m *Metrics) RecordIPCCall(instanceID, msgType string, durationMs int64, success bool, timedOut bool) {
	m.IPCCallsTotal.Add(1)
	if success {
		m.IPCCallsSuccess.Add(1)
	} else {
		m.IPCCallsFailed.Add(1)
	}
	if timedOut {
		m.IPCCallsTimeout.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	im := m.getInstanceMetrics(instanceID)
	im.Calls.Add(1)
	if success {
		im.Successes.Add(1)
	} else {
		im.Failures.Add(1)
	}
	im.TotalMs.Add(durationMs)
	updateMin(&im.MinMs, durationMs)
	updateMax(&im.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)
	RecordPrometheusIPCCall(msgType, durationMs, success, timedOut)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot IPC path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called
// from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Calls++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordWorkerSpawned records a worker subprocess being spawned.
func (m *Metrics) RecordWorkerSpawned() {
	m.WorkersSpawned.Add(1)
	RecordPrometheusWorkerSpawned()
}

// RecordWorkerCrashed records a worker crash observed by the Supervisor's
// monitor loop.
func (m *Metrics) RecordWorkerCrashed(instanceID string) {
	m.WorkersCrashed.Add(1)
	m.getInstanceMetrics(instanceID).Restarts.Add(1)
	RecordPrometheusWorkerCrashed()
}

// RecordWorkerRestarted records a successful automatic restart.
func (m *Metrics) RecordWorkerRestarted() {
	m.WorkersRestarted.Add(1)
	RecordPrometheusWorkerRestarted()
}

// RecordRetryLimitReached records an instance hitting its retry ceiling
// and being stopped by CheckAndHandleRetryLimits.
func (m *Metrics) RecordRetryLimitReached() {
	m.RetryLimitReached.Add(1)
	RecordPrometheusRetryLimitReached()
}

func (m *Metrics) getInstanceMetrics(instanceID string) *InstanceMetrics {
	if v, ok := m.instMetrics.Load(instanceID); ok {
		return v.(*InstanceMetrics)
	}

	im := &InstanceMetrics{}
	im.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.instMetrics.LoadOrStore(instanceID, im)
	return actual.(*InstanceMetrics)
}

// GetInstanceMetrics returns the metrics for a specific instance (or nil
// if none recorded yet)
func (m *Metrics) GetInstanceMetrics(instanceID string) *InstanceMetrics {
	if v, ok := m.instMetrics.Load(instanceID); ok {
		return v.(*InstanceMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.IPCCallsTotal.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	result := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"instances": map[string]interface{}{
			"created": m.InstancesCreated.Load(),
			"deleted": m.InstancesDeleted.Load(),
			"started": m.InstancesStarted.Load(),
			"stopped": m.InstancesStopped.Load(),
		},
		"ipc_calls": map[string]interface{}{
			"total":   total,
			"success": m.IPCCallsSuccess.Load(),
			"failed":  m.IPCCallsFailed.Load(),
			"timeout": m.IPCCallsTimeout.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"workers": map[string]interface{}{
			"spawned":            m.WorkersSpawned.Load(),
			"crashed":            m.WorkersCrashed.Load(),
			"restarted":          m.WorkersRestarted.Load(),
			"retry_limit_reached": m.RetryLimitReached.Load(),
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}

	return result
}

// InstanceStats returns per-instance IPC metrics.
func (m *Metrics) InstanceStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.instMetrics.Range(func(key, value interface{}) bool {
		instanceID := key.(string)
		im := value.(*InstanceMetrics)

		total := im.Calls.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(im.TotalMs.Load()) / float64(total)
		}

		minMs := im.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[instanceID] = map[string]interface{}{
			"calls":     total,
			"successes": im.Successes.Load(),
			"failures":  im.Failures.Load(),
			"restarts":  im.Restarts.Load(),
			"avg_ms":    avgMs,
			"min_ms":    minMs,
			"max_ms":    im.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["per_instance"] = m.InstanceStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"calls":        bucket.Calls,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
