package metrics

import (
	"context"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// collectTimeout bounds the storage read made on every scrape.
const collectTimeout = 5 * time.Second

// LedgerCollector reports the size of the pool and the chain by reading the
// ledger storage on every scrape.
type LedgerCollector struct {
	storer storage.Storer

	poolSize     *prometheus.Desc
	poolValue    *prometheus.Desc
	blocks       *prometheus.Desc
	transactions *prometheus.Desc
}

// NewLedgerCollector constructs a collector for the specified storage.
func NewLedgerCollector(storer storage.Storer, source string) *LedgerCollector {
	labels := prometheus.Labels{"source": source}

	return &LedgerCollector{
		storer: storer,
		poolSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "size"),
			"Number of transactions waiting in the pool",
			nil,
			labels,
		),
		poolValue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "value"),
			"Sum of the amounts waiting in the pool",
			nil,
			labels,
		),
		blocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "blocks_total"),
			"Number of blocks in the chain, genesis included",
			nil,
			labels,
		),
		transactions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "transactions_total"),
			"Number of confirmed transactions",
			nil,
			labels,
		),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolSize
	ch <- c.poolValue
	ch <- c.blocks
	ch <- c.transactions
}

// Collect implements the prometheus.Collector interface.
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	var stats storage.PoolStats
	var blocks, trans int

	err := c.storer.View(ctx, func(ss storage.Session) error {
		var err error

		if stats, err = ss.PendingStats(ctx); err != nil {
			return err
		}
		if blocks, err = ss.CountBlocks(ctx); err != nil {
			return err
		}
		trans, err = ss.CountConfirmed(ctx)
		return err
	})
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.poolSize, err)
		ch <- prometheus.NewInvalidMetric(c.poolValue, err)
		ch <- prometheus.NewInvalidMetric(c.blocks, err)
		ch <- prometheus.NewInvalidMetric(c.transactions, err)
		return
	}

	value, _ := stats.TotalValue.Float64()

	ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(stats.Count))
	ch <- prometheus.MustNewConstMetric(c.poolValue, prometheus.GaugeValue, value)
	ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.CounterValue, float64(blocks))
	ch <- prometheus.MustNewConstMetric(c.transactions, prometheus.CounterValue, float64(trans))
}
