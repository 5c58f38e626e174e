package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the marketplace engine and its HTTP surface.
type Metrics struct {
	gatherer prometheus.Gatherer

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	txRetries         prometheus.Counter
	settlementsTotal  prometheus.Counter
	grossSettled      prometheus.Counter
	commissionSettled prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeFeeds         prometheus.Gauge
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "operations_total", Help: "Engine operations by outcome"},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation latency, including transaction retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		txRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transaction_retries_total", Help: "Transaction attempts beyond the first",
		}),
		settlementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "settlements_total", Help: "Ledger entries written",
		}),
		grossSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "settled_gross_amount_total", Help: "Gross amount of settled services",
		}),
		commissionSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "settled_commission_amount_total", Help: "Commission recorded by settlements",
		}),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		activeFeeds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_feeds", Help: "Open websocket live feeds",
		}),
	}
}

func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	m.operationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSettlement(gross, commission float64) {
	m.settlementsTotal.Inc()
	m.grossSettled.Add(gross)
	m.commissionSettled.Add(commission)
}

// ObserveAttempt is meant for the store's attempt hook; only retries are counted.
func (m *Metrics) ObserveAttempt(attempt int) {
	if attempt > 1 {
		m.txRetries.Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

func (m *Metrics) FeedOpened() {
	m.activeFeeds.Inc()
}

func (m *Metrics) FeedClosed() {
	m.activeFeeds.Dec()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
