// Package worker implements automatic mining for the ledger. The worker
// calls the same mining operation that is available on demand.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/state"
)

// Config represents the settings of the worker.
type Config struct {
	Interval     time.Duration
	MinerAddress string
	MaxTrans     int
	EvHandler    state.EventHandler
}

// Worker manages the automatic mining workflow for the ledger.
type Worker struct {
	state        *state.State
	cfg          Config
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	evHandler    state.EventHandler
	shutdownOnce sync.Once
}

// Run creates a worker, registers the worker with the state package, and
// starts the mining goroutine.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	w := Worker{
		state:       st,
		cfg:         cfg,
		ticker:      time.NewTicker(cfg.Interval),
		shut:        make(chan struct{}),
		startMining: make(chan bool, 1),
		evHandler:   ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work. It waits for a block
// being mined to finish.
func (w *Worker) Shutdown() {
	w.shutdownOnce.Do(func() {
		w.evHandler("worker: shutdown: started")
		defer w.evHandler("worker: shutdown: completed")

		w.evHandler("worker: shutdown: stop ticker")
		w.ticker.Stop()

		w.evHandler("worker: shutdown: terminate goroutines")
		close(w.shut)
		w.wg.Wait()
	})
}

// SignalStartMining starts a mining operation without waiting for the next
// tick. If there is already a signal pending in the channel, just return
// since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// =============================================================================

// miningOperations handles mining on every tick or signal.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation asks the ledger to mine a block. A miner that is busy
// or a pool that is empty just skips this round.
func (w *Worker) runMiningOperation() {
	result, err := w.state.MineBlock(context.Background(), w.cfg.MinerAddress, w.cfg.MaxTrans)
	switch {
	case err == nil:
		w.evHandler("worker: runMiningOperation: MINING: blk[%d]: hash[%s]: trans[%d]", result.BlockNumber, result.BlockHash, result.TransCount)

	case errors.Is(err, state.ErrMiningInProgress), errors.Is(err, state.ErrNoPendingTransactions):
		w.evHandler("worker: runMiningOperation: MINING: skipped: %s", err)

	default:
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
