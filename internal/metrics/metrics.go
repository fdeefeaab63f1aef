package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes session and HTTP metrics for Prometheus.
type Collector struct {
	gatherer prometheus.Gatherer

	sessionsActive     prometheus.Gauge
	sessionsFinished   *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	submissionDuration prometheus.Histogram
	pollErrors         prometheus.Counter
	requestCounter     *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Collector {
	c := &Collector{
		gatherer: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clicker_sessions_active",
			Help: "Number of running quiz sessions",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clicker_sessions_finished_total",
			Help: "Quiz sessions that left the running state",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clicker_submissions_total",
			Help: "Ledger submission attempts",
		}, []string{"result"}),
		submissionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clicker_submission_duration_seconds",
			Help:    "Duration of ledger submission attempts",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clicker_poll_errors_total",
			Help: "Failed latest key event fetches",
		}),
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}
	reg.MustRegister(
		c.sessionsActive,
		c.sessionsFinished,
		c.submissions,
		c.submissionDuration,
		c.pollErrors,
		c.requestCounter,
		c.requestDuration,
	)
	return c
}

func (c *Collector) SessionStarted() {
	c.sessionsActive.Inc()
}

func (c *Collector) SessionFinished(outcome string) {
	c.sessionsActive.Dec()
	c.sessionsFinished.WithLabelValues(outcome).Inc()
}

func (c *Collector) SubmissionAttempted(success bool, took time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.submissions.WithLabelValues(result).Inc()
	c.submissionDuration.Observe(took.Seconds())
}

func (c *Collector) PollFailed() {
	c.pollErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Instrument counts requests served by next under the given route pattern.
func (c *Collector) Instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.requestCounter.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		c.requestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer so websocket upgrades keep working.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
