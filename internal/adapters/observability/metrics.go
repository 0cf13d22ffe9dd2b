package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "looreview"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "submissions_total", Help: "Review submission attempts by outcome."},
		[]string{"outcome"}, // ok|invalid|policy_hold|transport_error|auth_error
	)
	SubmissionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "submission_duration_seconds",
			Help:    "Time spent sending a review to the backend.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	ValidationMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "validation_missing_total", Help: "Missing fields reported by submit-time validation."},
		[]string{"field"},
	)
	ModerationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "moderation_actions_total", Help: "Reports, blocks and unblocks."},
		[]string{"action", "outcome"},
	)
)

// NewMetricsServer exposes reg under /metrics on addr.
func NewMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs a standalone metrics server for reg in the background. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return // disabled
	}
	srv := NewMetricsServer(addr, reg)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		Submissions, SubmissionLatency, ValidationMisses, ModerationActions,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

// ObserveSubmission counts one submit attempt. dur is zero when nothing was sent.
func ObserveSubmission(outcome string, dur time.Duration) {
	Submissions.WithLabelValues(outcome).Inc()
	if dur > 0 {
		SubmissionLatency.Observe(dur.Seconds())
	}
}

func ObserveValidation(field string) {
	ValidationMisses.WithLabelValues(field).Inc()
}

func ObserveModeration(action, outcome string) {
	ModerationActions.WithLabelValues(action, outcome).Inc()
}

// LabelErr names the concrete error type for log fields.
func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
