// Package metrics exposes the Prometheus collectors that let an operator
// see the hot-path invariants hold externally: fair price, spread,
// position, close-mode flag, reconcile batch sizes, feed staleness. It is
// not a profiling tool and holds no quoting logic of its own.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the agent publishes. Each Collector owns
// its own prometheus.Registry, so building a second Collector (e.g. after
// a rebuild on reconnect) never panics on a duplicate registration — the
// new registry simply starts fresh.
type Collector struct {
	registry *prometheus.Registry

	FairPrice       *prometheus.GaugeVec
	LocalMid        *prometheus.GaugeVec
	FairPriceOffset *prometheus.GaugeVec
	SpreadBps       *prometheus.GaugeVec
	PositionBase    *prometheus.GaugeVec
	PositionUSD     *prometheus.GaugeVec
	CloseMode       *prometheus.GaugeVec
	FeedStaleness   *prometheus.GaugeVec

	QuotesGenerated *prometheus.CounterVec
	OrdersPlaced    *prometheus.CounterVec
	OrdersCanceled  *prometheus.CounterVec
	Fills           *prometheus.CounterVec
	AtomicFailures  *prometheus.CounterVec
	FeedFailovers   *prometheus.CounterVec

	ReconcileBatchSize *prometheus.HistogramVec
	AtomicSubmitLatency *prometheus.HistogramVec
}

// New builds a Collector with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Collector{
		registry: reg,

		FairPrice: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_fair_price",
			Help: "Current fair price estimate.",
		}, []string{"symbol"}),
		LocalMid: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_local_mid",
			Help: "Current local orderbook mid price.",
		}, []string{"symbol"}),
		FairPriceOffset: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_fair_price_offset",
			Help: "Median offset applied to the local mid to derive fair price.",
		}, []string{"symbol"}),
		SpreadBps: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_spread_bps",
			Help: "Currently quoted spread in basis points.",
		}, []string{"symbol"}),
		PositionBase: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_position_base",
			Help: "Net position in base units, signed.",
		}, []string{"symbol"}),
		PositionUSD: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_position_usd",
			Help: "Net position notional in USD, unsigned.",
		}, []string{"symbol"}),
		CloseMode: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_close_mode",
			Help: "1 if the market is in reduce-only close mode, else 0.",
		}, []string{"symbol"}),
		FeedStaleness: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotekeeper_feed_staleness_ms",
			Help: "Milliseconds since the last admitted reference feed price.",
		}, []string{"symbol", "feed"}),

		QuotesGenerated: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_quotes_generated_total",
			Help: "Quotes generated, by side.",
		}, []string{"symbol", "side"}),
		OrdersPlaced: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_orders_placed_total",
			Help: "Orders placed, by side.",
		}, []string{"symbol", "side"}),
		OrdersCanceled: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_orders_canceled_total",
			Help: "Orders canceled, by side.",
		}, []string{"symbol", "side"}),
		Fills: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_fills_total",
			Help: "Fills received, by side.",
		}, []string{"symbol", "side"}),
		AtomicFailures: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_atomic_submission_failures_total",
			Help: "Atomic batch submissions that returned an error.",
		}, []string{"symbol"}),
		FeedFailovers: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quotekeeper_feed_failovers_total",
			Help: "Reference feed failovers performed.",
		}, []string{"symbol"}),

		ReconcileBatchSize: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotekeeper_reconcile_batch_size",
			Help:    "Number of actions in each atomic submission chunk.",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		}, []string{"symbol"}),
		AtomicSubmitLatency: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotekeeper_atomic_submit_latency_seconds",
			Help:    "Latency of atomic batch submission calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"symbol"}),
	}
}

// Handler returns the HTTP handler serving this Collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
