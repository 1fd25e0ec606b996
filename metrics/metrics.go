// Package metrics provides Prometheus metrics for the staking engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/staking-engine/generic"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	reg prometheus.Gatherer

	// Strategy metrics
	StakesTotal     *prometheus.CounterVec
	PayoutsTotal    *prometheus.CounterVec
	PayoutUSD       *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	LedgerOpsTotal  *prometheus.CounterVec
	SchedulerRuns   *prometheus.CounterVec
	LastSchedulerOK prometheus.Gauge

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
}

var _ generic.Recorder = (*Metrics)(nil)

// New creates a Metrics instance registered on reg.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "staking_engine"
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		StakesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "stakes_total",
			Help:      "Total number of staked positions",
		}, []string{"strategy"}),
		PayoutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "payouts_total",
			Help:      "Total number of settled claims and sales",
		}, []string{"strategy", "kind"}),
		PayoutUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "payout_usd_total",
			Help:      "USD value paid out, in whole dollars",
		}, []string{"strategy", "kind"}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "failures_total",
			Help:      "Rejected or failed strategy operations by error code",
		}, []string{"strategy", "op", "code"}),
		LedgerOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Period ledger operations",
		}, []string{"strategy", "op"}),
		SchedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Deposit scheduler runs by result",
		}, []string{"result"}),
		LastSchedulerOK: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful scheduler run",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) RecordStake(strategy generic.StrategyID) {
	m.StakesTotal.WithLabelValues(string(strategy)).Inc()
}

func (m *Metrics) RecordPayout(strategy generic.StrategyID, kind generic.PayoutKind, usd generic.Amount) {
	m.PayoutsTotal.WithLabelValues(string(strategy), string(kind)).Inc()
	dollars, _ := usd.Dollars().Float64()
	m.PayoutUSD.WithLabelValues(string(strategy), string(kind)).Add(dollars)
}

func (m *Metrics) RecordFailure(strategy generic.StrategyID, op string, err error) {
	m.FailuresTotal.WithLabelValues(string(strategy), op, generic.ErrorCode(err)).Inc()
}

func (m *Metrics) RecordLedger(strategy generic.StrategyID, op string) {
	m.LedgerOpsTotal.WithLabelValues(string(strategy), op).Inc()
}

// RecordSchedulerRun counts one scheduler pass.
func (m *Metrics) RecordSchedulerRun(at time.Time, err error) {
	if err != nil {
		m.SchedulerRuns.WithLabelValues("error").Inc()
		return
	}
	m.SchedulerRuns.WithLabelValues("ok").Inc()
	m.LastSchedulerOK.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware observes request latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
