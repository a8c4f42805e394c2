package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// password hashing
	HashDuration *prometheus.HistogramVec
	HashInFlight prometheus.Gauge

	// access control
	AccessDenials *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rolegate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rolegate",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rolegate",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rolegate",
				Subsystem: "password",
				Name:      "hash_duration_seconds",
				Help:      "bcrypt hash/verify duration, excluding time queued for a slot.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2},
			},
			[]string{"op", "result"}, // op=hash|verify result=ok|error
		),
		HashInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rolegate",
				Subsystem: "password",
				Name:      "in_flight",
				Help:      "bcrypt operations currently running.",
			},
		),
		AccessDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "access_denials_total",
				Help:      "Requests rejected by the access gate, by reason.",
			},
			[]string{"reason"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by route.",
			},
			[]string{"route"},
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.HashDuration, p.HashInFlight,
		p.AccessDenials, p.RateLimited,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) ObserveHash(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.HashDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

func (p *Prom) HashStarted()  { p.HashInFlight.Inc() }
func (p *Prom) HashFinished() { p.HashInFlight.Dec() }

func (p *Prom) AccessDenied(reason string) {
	p.AccessDenials.WithLabelValues(reason).Inc()
}

func (p *Prom) RateLimitHit(route string) {
	p.RateLimited.WithLabelValues(route).Inc()
}
