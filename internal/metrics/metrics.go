package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	validations     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_answer_validations_total",
				Help: "Single answer validations by outcome",
			},
			[]string{"correct"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Scored quiz submissions by persistence outcome",
			},
			[]string{"saved"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
	m.registry.MustRegister(m.requestCounter, m.requestDuration, m.validations, m.submissions, m.rateLimited)
	return m
}

// AnswerValidated records a single answer validation.
func (m *Metrics) AnswerValidated(correct bool) {
	m.validations.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// SubmissionScored records a scored submission.
func (m *Metrics) SubmissionScored(saved bool) {
	m.submissions.WithLabelValues(strconv.FormatBool(saved)).Inc()
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// Middleware counts and times every request by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
