// Package metrics exposes the ambient Prometheus instrumentation every
// engine node carries regardless of which feature set is in scope.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the counters and gauges one engine node reports.
type Collector struct {
	OrdersSubmitted       prometheus.Counter
	OrdersRouted          prometheus.Counter
	Fills                 prometheus.Counter
	GossipBroadcastErrors prometheus.Counter
	GossipPullErrors      prometheus.Counter
	FillsDropped          prometheus.Counter

	bestBid *prometheus.GaugeVec
	bestAsk *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New constructs a Collector with its own registry, labeled with the
// engine's id so multiple engines can be scraped side by side.
func New(engineID string) *Collector {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"engine_id": engineID}

	c := &Collector{
		registry: reg,
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_orders_submitted_total", Help: "Orders accepted by SubmitOrder.", ConstLabels: constLabels,
		}),
		OrdersRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_orders_routed_total", Help: "Orders forwarded to a peer engine.", ConstLabels: constLabels,
		}),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_fills_total", Help: "Fill records produced by local matching.", ConstLabels: constLabels,
		}),
		GossipBroadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_gossip_broadcast_errors_total", Help: "Failed SyncOrderBook pushes to a peer.", ConstLabels: constLabels,
		}),
		GossipPullErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_gossip_pull_errors_total", Help: "Failed GetOrderBook pulls from a peer.", ConstLabels: constLabels,
		}),
		FillsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_fills_dropped_total", Help: "Fills dropped due to a missing routing-table entry.", ConstLabels: constLabels,
		}),
		bestBid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_local_best_bid", Help: "Local best bid price per symbol.", ConstLabels: constLabels,
		}, []string{"symbol"}),
		bestAsk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_local_best_ask", Help: "Local best ask price per symbol.", ConstLabels: constLabels,
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		c.OrdersSubmitted, c.OrdersRouted, c.Fills,
		c.GossipBroadcastErrors, c.GossipPullErrors, c.FillsDropped,
		c.bestBid, c.bestAsk,
	)
	return c
}

// SetLocalBest records the current local best bid/ask for symbol.
func (c *Collector) SetLocalBest(symbol string, bid, ask float64) {
	c.bestBid.WithLabelValues(symbol).Set(bid)
	c.bestAsk.WithLabelValues(symbol).Set(ask)
}

// Handler returns the HTTP handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
