package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enrollhub/enrollment-service/internal/models"
)

// Delivery outcomes recorded by the processor.
const (
	DeliveryAcked   = "ack"
	DeliveryNacked  = "nack"
	DeliveryDropped = "dropped"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// worker. A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	fetchAttempts      *prometheus.CounterVec
	processingDuration prometheus.Histogram
	published          *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
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

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_decisions_total",
		Help: "Enrollment status decisions written by the processor",
	}, []string{"status", "rule"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_deliveries_total",
		Help: "Queue deliveries settled by the processor",
	}, []string{"outcome"})

	fetchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "age_groups_fetch_attempts_total",
		Help: "Calls made to the age-range service",
	}, []string{"result"})

	processingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollment_processing_duration_seconds",
		Help:    "Wall time spent handling one delivery",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 120},
	})

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_publish_total",
		Help: "Enrollment ids published to the work queue",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, decisions, deliveries, fetchAttempts, processingDuration, published, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		decisions:          decisions,
		deliveries:         deliveries,
		fetchAttempts:      fetchAttempts,
		processingDuration: processingDuration,
		published:          published,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDecision counts a status written by the processor.
func (m *MetricsService) RecordDecision(status models.EnrollmentStatus, rule string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(status), rule).Inc()
}

// RecordDelivery counts how a delivery was settled.
func (m *MetricsService) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// RecordFetchAttempt counts one call to the age-range service.
func (m *MetricsService) RecordFetchAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.fetchAttempts.WithLabelValues(result).Inc()
}

// ObserveProcessing records the time spent on one delivery.
func (m *MetricsService) ObserveProcessing(duration time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(duration.Seconds())
}

// RecordPublish counts a publish attempt from the API.
func (m *MetricsService) RecordPublish(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}
