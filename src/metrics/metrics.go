package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchange counters exported at /metrics. Registered on a dedicated
// registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated   *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	TradesExecuted  prometheus.Counter
	TradeVolume     prometheus.Counter
	BatchesExecuted prometheus.Counter
	PoolSwaps       prometheus.Counter
	RecordConflicts *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_exchange_orders_created_total",
			Help: "Orders accepted, by side.",
		}, []string{"side"}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_exchange_orders_cancelled_total",
			Help: "Orders cancelled by their creator.",
		}),
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_exchange_trades_executed_total",
			Help: "Matched trades settled, including batch entries.",
		}),
		TradeVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_exchange_trade_volume_total",
			Help: "Cumulative settled energy volume.",
		}),
		BatchesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_exchange_batches_executed_total",
			Help: "Batch settlement calls that cleared in full.",
		}),
		PoolSwaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_exchange_pool_swaps_total",
			Help: "Bonding-curve swaps executed.",
		}),
		RecordConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_exchange_record_conflicts_total",
			Help: "Operations rejected because the record was held.",
		}, []string{"operation"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grid_exchange_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
