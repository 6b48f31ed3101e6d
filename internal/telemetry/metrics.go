package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OrdersPlaced     *prometheus.CounterVec
	PlaceOrderTiming *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the service collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_placed_total",
		Help:      "Order placement attempts by result.",
	}, []string{"result"})
	timing := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "place_order_duration_seconds",
		Help:      "Order placement latency including the transaction.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"result"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})

	reg.MustRegister(placed, timing, requests)
	return &Metrics{
		OrdersPlaced:     placed,
		PlaceOrderTiming: timing,
		HTTPRequests:     requests,
		gatherer:         reg,
	}
}

// ObservePlaceOrder is a no-op on a nil receiver.
func (m *Metrics) ObservePlaceOrder(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(result).Inc()
	m.PlaceOrderTiming.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
