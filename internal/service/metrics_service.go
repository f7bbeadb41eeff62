package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the screening pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	verdictTotal       *prometheus.CounterVec
	classifierFailures *prometheus.CounterVec
	responsesFlagged   *prometheus.CounterVec
	screeningJobs      *prometheus.CounterVec
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

	verdictTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_verdicts_total",
		Help: "Classifier verdicts by severity, genuine results only",
	}, []string{"severity"})

	classifierFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_classifier_failures_total",
		Help: "Classifier calls degraded to a non-flagging verdict, by failure kind",
	}, []string{"kind"})

	responsesFlagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "responses_flagged_total",
		Help: "Responses flagged, by which screening path set the flag",
	}, []string{"source"})

	screeningJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_jobs_total",
		Help: "Completed async screening jobs by outcome",
	}, []string{"outcome"})

	registry.MustRegister(requestDuration, requestTotal, verdictTotal, classifierFailures, responsesFlagged, screeningJobs)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		verdictTotal:       verdictTotal,
		classifierFailures: classifierFailures,
		responsesFlagged:   responsesFlagged,
		screeningJobs:      screeningJobs,
	}
}

// Handler exposes the /metrics endpoint handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := fmt.Sprintf("%d", status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordVerdict counts a genuine classifier verdict.
func (s *MetricsService) RecordVerdict(severity string) {
	s.verdictTotal.WithLabelValues(severity).Inc()
}

// RecordClassifierFailure counts a degraded classifier call. Kind is one of
// "transport" or "parse" so outages stay distinguishable from genuine
// negative verdicts.
func (s *MetricsService) RecordClassifierFailure(kind string) {
	s.classifierFailures.WithLabelValues(kind).Inc()
}

// RecordResponseFlagged counts one flag transition by its source
// ("rule" or "classifier").
func (s *MetricsService) RecordResponseFlagged(source string) {
	s.responsesFlagged.WithLabelValues(source).Inc()
}

// RecordScreeningJob counts one finished async job by outcome
// ("flagged", "clean" or "error").
func (s *MetricsService) RecordScreeningJob(outcome string) {
	s.screeningJobs.WithLabelValues(outcome).Inc()
}
