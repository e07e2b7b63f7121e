// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskdesk"

// Metrics bundles every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	tradesTotal     *prometheus.CounterVec
	tradeRejections *prometheus.CounterVec
	tradeDuration   prometheus.Histogram
	riskEvaluations *prometheus.CounterVec
	riskScore       prometheus.Histogram
	alertsTotal     *prometheus.CounterVec
	alertsDropped   prometheus.Counter
	priceTicks      prometheus.Counter
	loadedAccounts  prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	wsClients       prometheus.Gauge
	archivedOrders  prometheus.Counter
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		tradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "orders_total",
			Help:      "Orders processed by type and final status.",
		}, []string{"type", "status"}),
		tradeRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "rejections_total",
			Help:      "Rejected orders by error kind.",
		}, []string{"kind"}),
		tradeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "execute_duration_seconds",
			Help:      "Time from receipt to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		riskEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "evaluations_total",
			Help:      "Risk snapshots computed by resulting level.",
		}, []string{"level"}),
		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		alertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Alerts emitted by level.",
		}, []string{"level"}),
		alertsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Alerts dropped because the dispatch buffer was full.",
		}),
		priceTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_total",
			Help:      "Price ticks written to the cache.",
		}),
		loadedAccounts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "loaded_accounts",
			Help:      "Accounts held in memory.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}),
		archivedOrders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "orders_total",
			Help:      "Orders written to object storage.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) TradeProcessed(orderType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.tradesTotal.WithLabelValues(orderType, status).Inc()
	m.tradeDuration.Observe(seconds)
}

func (m *Metrics) TradeRejected(kind string) {
	if m == nil {
		return
	}
	m.tradeRejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) RiskEvaluated(level string, score float64) {
	if m == nil {
		return
	}
	m.riskEvaluations.WithLabelValues(level).Inc()
	m.riskScore.Observe(score)
}

func (m *Metrics) AlertEmitted(level string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(level).Inc()
}

func (m *Metrics) AlertDropped() {
	if m == nil {
		return
	}
	m.alertsDropped.Inc()
}

func (m *Metrics) PriceTick() {
	if m == nil {
		return
	}
	m.priceTicks.Inc()
}

func (m *Metrics) SetLoadedAccounts(n int) {
	if m == nil {
		return
	}
	m.loadedAccounts.Set(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) WSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) OrdersArchived(n int64) {
	if m == nil {
		return
	}
	m.archivedOrders.Add(float64(n))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
