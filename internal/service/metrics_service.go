package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// Verification outcomes used as metric labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sessionsCreated  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	faceScore        prometheus.Histogram
	faceLatency      prometheus.Histogram
	recordsCreated   *prometheus.CounterVec
	overrideStudents *prometheus.CounterVec
	eventsProcessed  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	sessionCount         uint64
	recordCount          uint64
	faceCount            uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_created_total",
		Help: "Attendance sessions opened",
	})

	sessionsEnded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_ended_total",
		Help: "Attendance sessions ended by reason",
	}, []string{"status"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_verification_steps_total",
		Help: "Verification steps by stage and outcome",
	}, []string{"stage", "outcome"})

	faceScore := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_face_similarity",
		Help:    "Similarity scores returned by the face engine",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	faceLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_face_compare_seconds",
		Help:    "Latency of face comparisons",
		Buckets: prometheus.DefBuckets,
	})

	recordsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_created_total",
		Help: "Ledger records created by source",
	}, []string{"source"})

	overrideStudents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_override_students_total",
		Help: "Students processed by manual override",
	}, []string{"result"})

	eventsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_events_processed_total",
		Help: "Background attendance events by type",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		sessionsCreated, sessionsEnded, verifications, faceScore, faceLatency, recordsCreated, overrideStudents,
		eventsProcessed, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		sessionsCreated:  sessionsCreated,
		sessionsEnded:    sessionsEnded,
		verifications:    verifications,
		faceScore:        faceScore,
		faceLatency:      faceLatency,
		recordsCreated:   recordsCreated,
		overrideStudents: overrideStudents,
		eventsProcessed:  eventsProcessed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

func (m *MetricsService) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	atomic.AddUint64(&m.sessionCount, 1)
}

func (m *MetricsService) SessionEnded(status models.SessionStatus) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(string(status)).Inc()
}

// VerificationStep counts one pipeline step for the stage that was attempted.
func (m *MetricsService) VerificationStep(stage models.VerificationStage, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(stage), outcome).Inc()
}

func (m *MetricsService) FaceCompared(score float64, duration time.Duration) {
	if m == nil {
		return
	}
	m.faceScore.Observe(score)
	m.faceLatency.Observe(duration.Seconds())
	atomic.AddUint64(&m.faceCount, 1)
}

func (m *MetricsService) RecordCreated(byTeacher bool) {
	if m == nil {
		return
	}
	source := "verified"
	if byTeacher {
		source = "override"
	}
	m.recordsCreated.WithLabelValues(source).Inc()
	atomic.AddUint64(&m.recordCount, 1)
}

func (m *MetricsService) OverrideProcessed(created, skipped int) {
	if m == nil {
		return
	}
	m.overrideStudents.WithLabelValues("created").Add(float64(created))
	m.overrideStudents.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *MetricsService) EventProcessed(eventType string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(eventType).Inc()
}

// Snapshot returns aggregated counters for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		SessionsCreated:          atomic.LoadUint64(&m.sessionCount),
		RecordsCreated:           atomic.LoadUint64(&m.recordCount),
		FaceComparisons:          atomic.LoadUint64(&m.faceCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
