package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/merkle"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMinerAddress is credited when no miner address is provided.
const DefaultMinerAddress = "system_miner"

// Phase represents where the miner is in the mining of a block.
type Phase string

// Set of mining phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseHashing    Phase = "hashing"
	PhaseSearching  Phase = "searching"
	PhaseCommitting Phase = "committing"
	PhaseFailed     Phase = "failed"
)

// MiningResult describes a block that was mined and committed.
type MiningResult struct {
	Success     bool            `json:"success"`
	BlockHash   string          `json:"block_hash"`
	BlockNumber uint64          `json:"block_number"`
	Nonce       uint64          `json:"nonce"`
	MiningTime  float64         `json:"mining_time"` // Seconds.
	TransCount  int             `json:"transactions_count"`
	Reward      decimal.Decimal `json:"reward"`
}

// MiningStatus is a snapshot of the miner.
type MiningStatus struct {
	IsMining   bool          `json:"is_mining"`
	Phase      Phase         `json:"phase"`
	LastResult *MiningResult `json:"last_result,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

// =============================================================================

// MineBlock packages up to maxTrans of the best transactions in the pool
// into a new block, solves the proof of work and commits the block, the
// confirmed transactions and the domain updates as one unit of work. Only
// one block can be mined at a time, a concurrent call gets back
// ErrMiningInProgress immediately.
func (s *State) MineBlock(ctx context.Context, minerAddress string, maxTrans int) (MiningResult, error) {
	if !s.mining.CompareAndSwap(false, true) {
		return MiningResult{}, ErrMiningInProgress
	}

	if minerAddress == "" {
		minerAddress = s.minerAddress
	}
	if maxTrans <= 0 {
		maxTrans = int(s.genesis.TransPerBlock)
	}

	ctx, span := otel.Tracer("block-dt/state").Start(ctx, "state.mine_block", trace.WithAttributes(
		attribute.String("miner.address", minerAddress),
		attribute.Int("max.transactions", maxTrans),
	))
	defer span.End()

	// finish releases the guard together with the final phase, before the
	// notifiers run so a slow notifier doesn't hold up the next block.
	bd, result, err := s.mineBlockSafe(ctx, minerAddress, maxTrans)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finish(nil, err)
		return MiningResult{}, err
	}

	span.SetAttributes(
		attribute.Int64("block.number", int64(result.BlockNumber)),
		attribute.String("block.hash", result.BlockHash),
	)
	s.finish(&result, nil)

	s.evHandler("viewer: block: mined: blk[%d]: hash[%s]: trans[%d]", result.BlockNumber, result.BlockHash, result.TransCount)

	s.notify(context.WithoutCancel(ctx), bd)

	return result, nil
}

// MiningStatus returns a snapshot of the miner.
func (s *State) MiningStatus() MiningStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := MiningStatus{
		IsMining:  s.mining.Load(),
		Phase:     s.phase,
		LastError: s.lastError,
	}

	if s.lastResult != nil {
		r := *s.lastResult
		status.LastResult = &r
	}

	return status
}

// =============================================================================

// mineBlockSafe turns a panic while mining into an error so the guard is
// always released by finish.
func (s *State) mineBlockSafe(ctx context.Context, minerAddress string, maxTrans int) (bd database.BlockData, result MiningResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			bd, result, err = database.BlockData{}, MiningResult{}, fmt.Errorf("PANIC[%v]", rec)
		}
	}()

	return s.mineBlock(ctx, minerAddress, maxTrans)
}

func (s *State) mineBlock(ctx context.Context, minerAddress string, maxTrans int) (database.BlockData, MiningResult, error) {
	start := s.now()

	s.setPhase(PhaseCollecting)
	s.evHandler("state: MineBlock: MINING: collecting: max[%d]", maxTrans)

	trans, err := s.pool.PeekBatch(ctx, maxTrans)
	if err != nil {
		return database.BlockData{}, MiningResult{}, fmt.Errorf("collecting transactions: %w", err)
	}

	if len(trans) == 0 {
		return database.BlockData{}, MiningResult{}, ErrNoPendingTransactions
	}

	tip, err := s.tip(ctx)
	if err != nil {
		return database.BlockData{}, MiningResult{}, fmt.Errorf("loading chain tip: %w", err)
	}

	s.setPhase(PhaseHashing)
	s.evHandler("state: MineBlock: MINING: hashing: trans[%d]", len(trans))

	root, err := merkle.Root(database.Hashes(trans))
	if err != nil {
		return database.BlockData{}, MiningResult{}, fmt.Errorf("calculating merkle root: %w", err)
	}

	s.setPhase(PhaseSearching)
	s.evHandler("state: MineBlock: MINING: searching: prevBlk[%d]: root[%s]", tip.Header.Number, root)

	// Neither the search nor the commit is tied to the caller's cancellation.
	// The search is bounded by the maximum number of attempts.
	work := context.WithoutCancel(ctx)

	block, err := s.search(work, database.POWArgs{
		MinerAddress: minerAddress,
		Difficulty:   uint(s.genesis.Difficulty),
		MaxAttempts:  s.genesis.MaxAttempts,
		MerkleRoot:   root,
		Reward:       s.genesis.MiningReward,
		PrevBlock:    tip,
		Trans:        trans,
		EvHandler:    s.evHandler,
	})
	if err != nil {
		if errors.Is(err, database.ErrPOWExhausted) {
			return database.BlockData{}, MiningResult{}, fmt.Errorf("%w: %w", ErrMiningTimeout, err)
		}
		return database.BlockData{}, MiningResult{}, fmt.Errorf("searching nonce: %w", err)
	}

	s.setPhase(PhaseCommitting)
	s.evHandler("state: MineBlock: MINING: committing: blk[%d]: hash[%s]", block.Header.Number, block.Hash)

	confirmed := make([]database.ConfirmedTx, len(trans))
	for i, tx := range trans {
		confirmed[i] = database.NewConfirmedTx(tx, block, i)
	}

	err = s.storer.WithinTran(work, func(ss storage.Session) error {
		return s.commit(work, ss, tip, block, confirmed)
	})
	if err != nil {
		return database.BlockData{}, MiningResult{}, fmt.Errorf("%w: %w", ErrMiningCommitFailed, err)
	}

	result := MiningResult{
		Success:     true,
		BlockHash:   block.Hash,
		BlockNumber: block.Header.Number,
		Nonce:       block.Header.Nonce,
		MiningTime:  s.now().Sub(start).Seconds(),
		TransCount:  len(trans),
		Reward:      block.Reward,
	}

	return database.BlockData{Block: block, Trans: confirmed}, result, nil
}

// search runs the proof of work on its own goroutine and waits for it.
func (s *State) search(ctx context.Context, args database.POWArgs) (database.Block, error) {
	type solution struct {
		block database.Block
		err   error
	}

	ch := make(chan solution, 1)
	go func() {
		block, err := database.POW(ctx, args)
		ch <- solution{block: block, err: err}
	}()

	sol := <-ch
	return sol.block, sol.err
}

// commit writes the block and moves its transactions from the pool to the
// confirmed ledger.
func (s *State) commit(ctx context.Context, ss storage.Session, tip database.Block, block database.Block, trans []database.ConfirmedTx) error {
	latest, err := ss.QueryLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("query latest block: %w", err)
	}

	if latest.Hash != tip.Hash {
		return fmt.Errorf("chain tip moved from blk[%d] to blk[%d]", tip.Header.Number, latest.Header.Number)
	}

	if err := ss.InsertBlock(ctx, block); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}

	for _, tx := range trans {
		if err := ss.InsertConfirmed(ctx, tx); err != nil {
			return fmt.Errorf("insert confirmed tx[%s]: %w", tx.Hash, err)
		}

		n, err := ss.DeletePending(ctx, tx.Hash)
		if err != nil {
			return fmt.Errorf("delete pending tx[%s]: %w", tx.Hash, err)
		}
		if n != 1 {
			return fmt.Errorf("pending tx[%s] is no longer in the pool", tx.Hash)
		}

		if err := s.synchronize(ctx, ss, tx); err != nil {
			return err
		}
	}

	if s.reward != nil {
		if err := s.reward.Credit(ctx, ss, block); err != nil {
			return fmt.Errorf("credit reward: %w", err)
		}
	}

	return nil
}

// tip returns the latest block of the chain. A genesis block is created in
// its own unit of work when the chain is empty.
func (s *State) tip(ctx context.Context) (database.Block, error) {
	var latest database.Block

	err := s.storer.View(ctx, func(ss storage.Session) error {
		var err error
		latest, err = ss.QueryLatestBlock(ctx)
		return err
	})

	switch {
	case err == nil:
		return latest, nil
	case !errors.Is(err, storage.ErrNotFound):
		return database.Block{}, err
	}

	genesisBlock, err := database.NewGenesisBlock(s.genesis.StartNumber, s.now().UTC().UnixMilli())
	if err != nil {
		return database.Block{}, fmt.Errorf("constructing genesis: %w", err)
	}

	err = s.storer.WithinTran(ctx, func(ss storage.Session) error {
		existing, err := ss.QueryLatestBlock(ctx)
		switch {
		case err == nil:
			genesisBlock = existing
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		return ss.InsertBlock(ctx, genesisBlock)
	})
	if err != nil {
		return database.Block{}, fmt.Errorf("persisting genesis: %w", err)
	}

	s.evHandler("viewer: block: genesis: blk[%d]: hash[%s]", genesisBlock.Header.Number, genesisBlock.Hash)

	return genesisBlock, nil
}

// notify hands the committed block to the cache and the notifiers.
func (s *State) notify(ctx context.Context, bd database.BlockData) {
	if s.cache != nil {
		s.cache.StoreBlock(ctx, bd)
	}

	for _, n := range s.notifiers {
		if err := n.BlockCommitted(ctx, bd); err != nil {
			s.evHandler("state: notify: WARNING: blk[%d]: %s", bd.Header.Number, err)
		}
	}
}

func (s *State) setPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = phase
}

// finish records the outcome of a mining run and releases the mining guard
// under the same lock MiningStatus reads with, so a snapshot never shows an
// idle miner in a working phase.
func (s *State) finish(result *MiningResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.mining.Store(false)

	switch {
	case err == nil:
		s.phase = PhaseIdle
		s.lastResult = result
		s.lastError = ""

	case errors.Is(err, ErrNoPendingTransactions):
		s.phase = PhaseIdle

	default:
		s.phase = PhaseFailed
		s.lastError = err.Error()
	}
}
