// Package metrics provides Prometheus metrics for the betting service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"azuro-bet/internal/tx"
)

const namespace = "azuro_bet"

// Metrics collects and exposes bet workflow metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	AllowanceReads      *prometheus.CounterVec
	OddsRequests        *prometheus.CounterVec
	Transactions        *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec
	RiskRejections      prometheus.Counter
	CooldownActive      prometheus.Gauge
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		AllowanceReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allowance_reads_total",
				Help:      "Bet token allowance reads",
			},
			[]string{"result"},
		),
		OddsRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "odds_requests_total",
				Help:      "Odds quotes requested from the odds collaborator",
			},
			[]string{"result"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Settled approval and bet transactions",
			},
			[]string{"kind", "status"},
		),
		ConfirmationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confirmation_seconds",
				Help:      "Time from signing a transaction to observing its receipt",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
			},
			[]string{"kind"},
		),
		RiskRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_rejections_total",
				Help:      "Bet requests rejected by risk limits",
			},
		),
		CooldownActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cooldown_active",
				Help:      "1 while betting is paused after consecutive failures",
			},
		),
	}
	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.AllowanceReads,
		m.OddsRequests,
		m.Transactions,
		m.ConfirmationLatency,
		m.RiskRejections,
		m.CooldownActive,
	)
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAllowanceRead counts an allowance read.
func (m *Metrics) ObserveAllowanceRead(err error) {
	m.AllowanceReads.WithLabelValues(result(err)).Inc()
}

// ObserveOdds counts an odds quote.
func (m *Metrics) ObserveOdds(err error) {
	m.OddsRequests.WithLabelValues(result(err)).Inc()
}

// ObserveTx records a transaction reaching a terminal status.
func (m *Metrics) ObserveTx(kind string, status tx.Status, latency time.Duration) {
	m.Transactions.WithLabelValues(kind, string(status)).Inc()
	if latency > 0 {
		m.ConfirmationLatency.WithLabelValues(kind).Observe(latency.Seconds())
	}
}

// RecordRiskRejection counts a request refused by risk limits.
func (m *Metrics) RecordRiskRejection() {
	m.RiskRejections.Inc()
}

// SetCooldown updates the cooldown gauge.
func (m *Metrics) SetCooldown(active bool) {
	if active {
		m.CooldownActive.Set(1)
		return
	}
	m.CooldownActive.Set(0)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
