// Package metrics maintains the prometheus instruments of the node. The
// registry is owned by the Metrics value so tests can build their own.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// Metrics holds the instruments updated by the middleware and the miner.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	errors      prometheus.Counter
	panics      prometheus.Counter
	blocksMined prometheus.Counter
	transMined  prometheus.Counter
	transPerBlk prometheus.Histogram
}

// New constructs the instruments and registers them together with any
// extra collectors provided.
func New(extra ...prometheus.Collector) (*Metrics, error) {
	m := Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of requests handled",
		}, []string{"method", "code"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Number of requests that returned an error",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Number of handler panics recovered",
		}),
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "blocks_total",
			Help:      "Number of blocks mined by this node",
		}),
		transMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "transactions_total",
			Help:      "Number of transactions confirmed by this node",
		}),
		transPerBlk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "block_transactions",
			Help:      "Transactions per mined block",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.errors,
		m.panics,
		m.blocksMined,
		m.transMined,
		m.transPerBlk,
	}

	for _, c := range append(cs, extra...) {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// Handler returns the http handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer returns the registry the instruments are registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// AddRequest counts a handled request.
func (m *Metrics) AddRequest(method string, statusCode int) {
	m.requests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// AddError counts a request that failed.
func (m *Metrics) AddError() {
	m.errors.Inc()
}

// AddPanic counts a recovered panic.
func (m *Metrics) AddPanic() {
	m.panics.Inc()
}

// BlockCommitted implements the state.Notifier interface.
func (m *Metrics) BlockCommitted(ctx context.Context, bd database.BlockData) error {
	m.blocksMined.Inc()
	m.transMined.Add(float64(len(bd.Trans)))
	m.transPerBlk.Observe(float64(len(bd.Trans)))

	return nil
}
