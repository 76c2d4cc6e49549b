// Package metrics exposes gateway counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dexrouter"

// Recorder owns the gateway collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	ordersTotal      *prometheus.CounterVec
	orderLatency     *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	fillEvents       *prometheus.CounterVec
	tickerEvents     *prometheus.CounterVec
	fillsEvicted     *prometheus.CounterVec
	positionsClosed  *prometheus.CounterVec
	streamReconnects *prometheus.CounterVec
}

// NewRecorder creates a recorder on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders by exchange, side and final state",
		}, []string{"exchange", "side", "state"}),
		orderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_latency_seconds",
			Help:      "Time from request to confirmed result",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"exchange"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed exchange calls by operation",
		}, []string{"exchange", "operation"}),
		fillEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_events_total",
			Help:      "Fill events received, split by whether they were new",
		}, []string{"exchange", "result"}),
		tickerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticker_events_total",
			Help:      "Ticker events applied to the price cache",
		}, []string{"exchange"}),
		fillsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_evicted_total",
			Help:      "Fill records removed by the sweeper",
		}, []string{"exchange"}),
		positionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Positions flattened by close-all",
		}, []string{"exchange", "side"}),
		streamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connects_total",
			Help:      "Successful websocket (re)connections",
		}, []string{"exchange", "feed"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ordersTotal,
		r.orderLatency,
		r.upstreamErrors,
		r.fillEvents,
		r.tickerEvents,
		r.fillsEvicted,
		r.positionsClosed,
		r.streamReconnects,
	)

	return r
}

// RecordOrder counts one order outcome.
func (r *Recorder) RecordOrder(exchange, side, state string) {
	if r == nil {
		return
	}

	r.ordersTotal.WithLabelValues(exchange, side, state).Inc()
}

// RecordOrderLatency observes the duration of create_order.
func (r *Recorder) RecordOrderLatency(exchange string, d time.Duration) {
	if r == nil {
		return
	}

	r.orderLatency.WithLabelValues(exchange).Observe(d.Seconds())
}

func (r *Recorder) RecordUpstreamError(exchange, operation string) {
	if r == nil {
		return
	}

	r.upstreamErrors.WithLabelValues(exchange, operation).Inc()
}

// RecordFillEvent counts a fill event. Duplicates are counted separately.
func (r *Recorder) RecordFillEvent(exchange string, inserted bool) {
	if r == nil {
		return
	}

	result := "duplicate"
	if inserted {
		result = "inserted"
	}

	r.fillEvents.WithLabelValues(exchange, result).Inc()
}

func (r *Recorder) RecordTickerEvent(exchange string) {
	if r == nil {
		return
	}

	r.tickerEvents.WithLabelValues(exchange).Inc()
}

func (r *Recorder) RecordEviction(exchange string, n int) {
	if r == nil || n <= 0 {
		return
	}

	r.fillsEvicted.WithLabelValues(exchange).Add(float64(n))
}

func (r *Recorder) RecordPositionClosed(exchange, side string) {
	if r == nil {
		return
	}

	r.positionsClosed.WithLabelValues(exchange, side).Inc()
}

func (r *Recorder) RecordStreamConnect(exchange, feed string) {
	if r == nil {
		return
	}

	r.streamReconnects.WithLabelValues(exchange, feed).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Timer measures elapsed time for latency metrics.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
