// Package metrics provides the Prometheus metrics of the attendance service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recognition outcomes.
const (
	OutcomeMatched = "matched"
	OutcomeUnknown = "unknown"
	OutcomeNoFace  = "no_face"
	OutcomeError   = "error"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Recognitions   *prometheus.CounterVec
	Marks          *prometheus.CounterVec
	SessionStarts  *prometheus.CounterVec
	GalleryBuilds  *prometheus.CounterVec
	BuildDuration  *prometheus.HistogramVec
	DetectDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{registry: registry}
	m.Recognitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_recognitions_total",
			Help: "Faces processed by live recognition partitioned by scope kind and outcome.",
		},
		[]string{"scope", "outcome"},
	)
	m.Marks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Attendance record updates partitioned by resulting status and marker.",
		},
		[]string{"status", "marked_by"},
	)
	m.SessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_session_starts_total",
			Help: "Session start requests, created or reused.",
		},
		[]string{"result"},
	)
	m.GalleryBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_gallery_builds_total",
			Help: "Gallery builds partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_gallery_build_duration_seconds",
			Help:    "Time taken to build and publish a gallery",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"entity_type"},
	)
	m.DetectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_detect_duration_seconds",
			Help:    "Latency of face detection calls on the live path",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	for _, c := range []prometheus.Collector{
		m.Recognitions, m.Marks, m.SessionStarts, m.GalleryBuilds, m.BuildDuration, m.DetectDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register attendance metrics: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRecognition(scope, outcome string) {
	if m == nil {
		return
	}
	m.Recognitions.WithLabelValues(scopeKind(scope), outcome).Inc()
}

func (m *Metrics) RecordMark(status, markedBy string) {
	if m == nil {
		return
	}
	m.Marks.WithLabelValues(status, markedBy).Inc()
}

func (m *Metrics) RecordSessionStart(created bool) {
	if m == nil {
		return
	}
	result := "reused"
	if created {
		result = "created"
	}
	m.SessionStarts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBuild(entityType string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.GalleryBuilds.WithLabelValues(outcome).Inc()
	m.BuildDuration.WithLabelValues(entityType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDetect(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DetectDuration.Observe(elapsed.Seconds())
}

// scopeKind keeps label cardinality bounded: one value per gallery kind, not per class.
func scopeKind(scope string) string {
	if scope == "" || scope == "teachers" {
		return "teachers"
	}
	return "students"
}
