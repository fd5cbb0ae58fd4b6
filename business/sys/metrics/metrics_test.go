package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chaos0211/block-dt/business/sys/metrics"
	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// brokenStorer fails every unit of work.
type brokenStorer struct {
	storage.Storer
	err error
}

func (b brokenStorer) View(ctx context.Context, fn func(storage.Session) error) error {
	return b.err
}

func TestLedgerCollector(t *testing.T) {
	t.Run("ReportsPool", func(t *testing.T) {
		ctx := context.Background()
		storer := memory.New()

		pool := mempool.New(storer)
		_, err := pool.Submit(ctx, mempool.NewTx{
			Type:   database.TxTransfer,
			From:   "alice",
			To:     "bob",
			Amount: decimal.RequireFromString("2.5"),
		})
		require.NoError(t, err)

		const expected = `
# HELP ledger_pool_size Number of transactions waiting in the pool
# TYPE ledger_pool_size gauge
ledger_pool_size{source="memory"} 1
# HELP ledger_pool_value Sum of the amounts waiting in the pool
# TYPE ledger_pool_value gauge
ledger_pool_value{source="memory"} 2.5
# HELP ledger_chain_blocks_total Number of blocks in the chain, genesis included
# TYPE ledger_chain_blocks_total counter
ledger_chain_blocks_total{source="memory"} 0
`

		c := metrics.NewLedgerCollector(storer, "memory")
		err = testutil.CollectAndCompare(c, strings.NewReader(expected),
			"ledger_pool_size", "ledger_pool_value", "ledger_chain_blocks_total")
		require.NoError(t, err)
	})

	t.Run("WhenStorageFails", func(t *testing.T) {
		c := metrics.NewLedgerCollector(brokenStorer{err: errors.New("db down")}, "memory")

		reg := prometheus.NewRegistry()
		require.NoError(t, reg.Register(c))

		_, err := reg.Gather()
		require.Error(t, err)
		require.Contains(t, err.Error(), "db down")
	})
}

func TestMetricsHandler(t *testing.T) {
	m, err := metrics.New(metrics.NewLedgerCollector(memory.New(), "memory"))
	require.NoError(t, err)

	m.AddRequest(http.MethodGet, http.StatusOK)
	m.AddError()
	m.AddPanic()

	bd := database.BlockData{
		Trans: []database.ConfirmedTx{{}, {}},
	}
	require.NoError(t, m.BlockCommitted(context.Background(), bd))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, line := range []string{
		`ledger_http_requests_total{code="200",method="GET"} 1`,
		`ledger_http_errors_total 1`,
		`ledger_http_panics_total 1`,
		`ledger_miner_blocks_total 1`,
		`ledger_miner_transactions_total 2`,
		`ledger_pool_size{source="memory"} 0`,
	} {
		require.Contains(t, string(body), line)
	}
}
