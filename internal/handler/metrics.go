package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the vote-integrity engine.
var Metrics = struct {
	Decisions        *prometheus.CounterVec
	VotesAdmitted    prometheus.Counter
	VotesDuplicate   prometheus.Counter
	VotesBlocked     prometheus.Counter
	ChallengesIssued *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	SignalDegraded   *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	DBPoolActive     prometheus.GaugeFunc
	DBPoolIdle       prometheus.GaugeFunc
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
func InitMetrics(pool *pgxpool.Pool) {
	Metrics.Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truepulse_risk_decisions_total",
			Help: "Risk decisions emitted, by action and level.",
		},
		[]string{"action", "level"},
	)

	Metrics.VotesAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truepulse_votes_admitted_total",
			Help: "Votes admitted and recorded.",
		},
	)

	Metrics.VotesDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truepulse_votes_duplicate_total",
			Help: "Admission attempts resolved as already-voted.",
		},
	)

	Metrics.VotesBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truepulse_votes_blocked_total",
			Help: "Vote attempts refused by integrity checks.",
		},
	)

	Metrics.ChallengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truepulse_challenges_issued_total",
			Help: "Challenges issued, by type.",
		},
		[]string{"type"},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truepulse_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.SignalDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truepulse_signal_degraded_total",
			Help: "Signal sources replaced by their safe default, by signal.",
		},
		[]string{"signal"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "truepulse_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	// DB pool gauges — read live stats from pgxpool
	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "truepulse_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "truepulse_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		prometheus.MustRegister(Metrics.DBPoolActive)
		prometheus.MustRegister(Metrics.DBPoolIdle)
	}

	prometheus.MustRegister(
		Metrics.Decisions,
		Metrics.VotesAdmitted,
		Metrics.VotesDuplicate,
		Metrics.VotesBlocked,
		Metrics.ChallengesIssued,
		Metrics.RequestDuration,
		Metrics.SignalDegraded,
		Metrics.RequestsInFlight,
	)
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next() — Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	switch {
	case len(path) > 16 && path[:16] == "/api/reputation/":
		return "/api/reputation/:identityHash"
	case len(path) > 11 && path[:11] == "/api/polls/":
		return "/api/polls/:pollId/votes/count"
	default:
		return path
	}
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
