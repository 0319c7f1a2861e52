package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"temple-quiz-service/internal/domain"
)

// Metrics holds the service collectors on a private registry. It implements
// app.Observer.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted prometheus.Counter
	LoadFailures    prometheus.Counter
	AnswersSelected prometheus.Counter
	Submissions     *prometheus.CounterVec
	Scores          prometheus.Histogram
	Connections     prometheus.Gauge
	RateLimited     prometheus.Counter
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Quiz sessions that reached IN_PROGRESS",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_exam_load_failures_total",
			Help: "Sessions that ended in LOAD_FAILED",
		}),
		AnswersSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_answers_selected_total",
			Help: "Accepted answer selections",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Submitted sessions by trigger and content API outcome",
		}, []string{"reason", "outcome"}),
		Scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_score_percentage",
			Help:    "Distribution of submitted scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_ws_connections",
			Help: "Open websocket connections",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ws_rate_limited_total",
			Help: "Inbound websocket messages rejected by the rate limiter",
		}),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.LoadFailures,
		m.AnswersSelected,
		m.Submissions,
		m.Scores,
		m.Connections,
		m.RateLimited,
		m.RequestCounter,
		m.RequestDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument wraps a plain HTTP handler with request count and latency.
// Do not wrap websocket upgrades with it.
func (m *Metrics) Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SessionStarted(int) {
	m.SessionsStarted.Inc()
}

func (m *Metrics) SessionLoadFailed(int) {
	m.LoadFailures.Inc()
}

func (m *Metrics) AnswerSelected() {
	m.AnswersSelected.Inc()
}

func (m *Metrics) SessionSubmitted(reason domain.SubmitReason, marks int, err error) {
	outcome := "posted"
	if err != nil {
		outcome = "failed"
	}
	m.Submissions.WithLabelValues(string(reason), outcome).Inc()
	m.Scores.Observe(float64(marks))
}

func (m *Metrics) ConnectionOpened() {
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.Connections.Dec()
}

func (m *Metrics) MessageRateLimited() {
	m.RateLimited.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
