package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
)

type Ledger struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	volume      *prometheus.CounterVec
	unresolved  prometheus.Gauge
	published   *prometheus.CounterVec
	escalations prometheus.Counter
}

func NewLedger(reg prometheus.Registerer) *Ledger {
	f := promauto.With(reg)
	return &Ledger{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome",
		}, []string{"operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		volume: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_committed_amount_total",
			Help: "Sum of committed amounts per operation",
		}, []string{"operation"}),
		unresolved: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_unresolved_withdrawals",
			Help: "Withdrawal intents that are pending or awaiting reconciliation",
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Post-commit events handed to the broker",
		}, []string{"type", "result"}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_withdrawal_escalations_total",
			Help: "Withdrawals moved to manual reconciliation",
		}),
	}
}

func (m *Ledger) ObserveOperation(operation string, kind domain.ErrorKind, elapsed time.Duration) {
	outcome := string(kind)
	if kind == domain.KindNone {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Ledger) AddVolume(operation string, amount decimal.Decimal) {
	m.volume.WithLabelValues(operation).Add(amount.InexactFloat64())
}

func (m *Ledger) SetUnresolvedWithdrawals(n int) {
	m.unresolved.Set(float64(n))
}

func (m *Ledger) IncEscalations() {
	m.escalations.Inc()
}

func (m *Ledger) ObservePublish(eventType domain.EventType, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(string(eventType), result).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
