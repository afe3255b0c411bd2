package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derivegate_tool_calls_total",
		Help: "The total number of tool calls dispatched",
	}, []string{"tool", "status"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derivegate_orders_total",
		Help: "The total number of orders submitted to the exchange",
	}, []string{"status", "side"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "derivegate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	ExchangeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derivegate_exchange_errors_total",
		Help: "Exchange-side failures by classification",
	}, []string{"code"})

	AuthRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "derivegate_auth_refreshes_total",
		Help: "Number of session authentication refreshes",
	})
)
