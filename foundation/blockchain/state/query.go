package state

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/merkle"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"golang.org/x/sync/errgroup"
)

// Set of transaction lookup states.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
)

// ChainInfo summarizes the ledger.
type ChainInfo struct {
	TotalBlocks       int             `json:"total_blocks"`
	Height            int             `json:"height"`
	TotalTransactions int             `json:"total_transactions"`
	PendingPoolSize   int             `json:"pending_pool_size"`
	LatestBlock       *database.Block `json:"latest_block"`
	ChainValid        bool            `json:"chain_valid"`
	InvalidReason     string          `json:"invalid_reason,omitempty"`
}

// BlockPage is a window of the chain, newest blocks first.
type BlockPage struct {
	Items []database.Block `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// TxLookup is a transaction found in the pool or the confirmed ledger.
type TxLookup struct {
	Status      string               `json:"status"`
	Transaction database.ConfirmedTx `json:"transaction"`
}

// Proof is the merkle proof that a transaction is part of a block.
type Proof struct {
	TxHash      string   `json:"tx_hash"`
	BlockHash   string   `json:"block_hash"`
	BlockNumber uint64   `json:"block_number"`
	MerkleRoot  string   `json:"merkle_root"`
	Proof       []string `json:"proof"`
	Order       []int64  `json:"order"`
	Verified    bool     `json:"verified"`
}

// =============================================================================

// ChainInfo returns the counts of the ledger and reports if the stored chain
// is still valid. Only the blocks added since the last successful check are
// validated, anchored on the last checked block still carrying the same hash.
// ValidateChain rechecks the whole chain.
func (s *State) ChainInfo(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	var blocks []database.Block
	var trans []database.ConfirmedTx
	var anchored bool

	err := s.storer.View(ctx, func(ss storage.Session) error {
		var err error

		if info.TotalBlocks, err = ss.CountBlocks(ctx); err != nil {
			return err
		}
		if info.TotalTransactions, err = ss.CountConfirmed(ctx); err != nil {
			return err
		}
		if info.PendingPoolSize, err = ss.CountPending(ctx); err != nil {
			return err
		}
		if info.TotalBlocks == 0 {
			return nil
		}

		latest, err := ss.QueryLatestBlock(ctx)
		if err != nil {
			return err
		}
		info.LatestBlock = &latest

		blocks, trans, anchored, err = s.uncheckedBlocks(ctx, ss)
		return err
	})
	if err != nil {
		return ChainInfo{}, fmt.Errorf("chain info: %w", err)
	}

	if info.TotalBlocks > 0 {
		info.Height = info.TotalBlocks - 1
	}

	info.ChainValid = true
	if err := s.validateChain(ctx, blocks, trans, !anchored); err != nil {
		s.evHandler("state: ChainInfo: WARNING: chain invalid: %s", err)
		info.ChainValid = false
		info.InvalidReason = err.Error()
		s.setChecked(nil)
		return info, nil
	}

	if len(blocks) > 0 {
		s.setChecked(&blocks[len(blocks)-1])
	}

	return info, nil
}

// QueryBlocks returns a page of the chain, newest blocks first.
func (s *State) QueryBlocks(ctx context.Context, page int, limit int) (BlockPage, error) {
	if page < 1 || limit < 1 || limit > mempool.MaxPageLimit {
		return BlockPage{}, fmt.Errorf("%w: page[%d] limit[%d]", mempool.ErrInvalidPage, page, limit)
	}

	result := BlockPage{
		Items: []database.Block{},
		Page:  page,
		Limit: limit,
	}

	err := s.storer.View(ctx, func(ss storage.Session) error {
		total, err := ss.CountBlocks(ctx)
		if err != nil {
			return err
		}
		result.Total = total

		blocks, err := ss.QueryBlocks(ctx, (page-1)*limit, limit)
		if err != nil {
			return err
		}
		if blocks != nil {
			result.Items = blocks
		}

		return nil
	})
	if err != nil {
		return BlockPage{}, fmt.Errorf("query blocks: %w", err)
	}

	return result, nil
}

// QueryBlockByNumber returns the block with its transactions.
func (s *State) QueryBlockByNumber(ctx context.Context, number uint64) (database.BlockData, error) {
	if s.cache != nil {
		if bd, exists := s.cache.BlockByNumber(ctx, number); exists {
			return bd, nil
		}
	}

	return s.queryBlock(ctx, func(ss storage.Session) (database.Block, error) {
		return ss.QueryBlockByNumber(ctx, number)
	})
}

// QueryBlockByHash returns the block with its transactions.
func (s *State) QueryBlockByHash(ctx context.Context, hash string) (database.BlockData, error) {
	if s.cache != nil {
		if bd, exists := s.cache.BlockByHash(ctx, hash); exists {
			return bd, nil
		}
	}

	return s.queryBlock(ctx, func(ss storage.Session) (database.Block, error) {
		return ss.QueryBlockByHash(ctx, hash)
	})
}

// QueryTransaction looks for the transaction in the pool first and then in
// the confirmed ledger.
func (s *State) QueryTransaction(ctx context.Context, hash string) (TxLookup, error) {
	var lookup TxLookup

	err := s.storer.View(ctx, func(ss storage.Session) error {
		tx, err := ss.QueryPending(ctx, hash)
		switch {
		case err == nil:
			lookup = TxLookup{Status: TxStatusPending, Transaction: database.ConfirmedTx{BlockTx: tx}}
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		confirmed, err := ss.QueryConfirmed(ctx, hash)
		if err != nil {
			return err
		}
		lookup = TxLookup{Status: TxStatusConfirmed, Transaction: confirmed}

		return nil
	})
	if err != nil {
		return TxLookup{}, fmt.Errorf("query tx[%s]: %w", hash, err)
	}

	return lookup, nil
}

// TransactionProof returns the merkle proof of a confirmed transaction
// against the root stored in its block.
func (s *State) TransactionProof(ctx context.Context, hash string) (Proof, error) {
	var block database.Block
	var trans []database.ConfirmedTx

	err := s.storer.View(ctx, func(ss storage.Session) error {
		tx, err := ss.QueryConfirmed(ctx, hash)
		if err != nil {
			return err
		}

		if block, err = ss.QueryBlockByHash(ctx, tx.BlockHash); err != nil {
			return err
		}

		trans, err = ss.QueryConfirmedByBlock(ctx, tx.BlockHash)
		return err
	})
	if err != nil {
		return Proof{}, fmt.Errorf("query proof tx[%s]: %w", hash, err)
	}

	leafs := make([]merkle.Leaf, len(trans))
	for i, tx := range trans {
		leafs[i] = merkle.Leaf(tx.Hash)
	}

	tree, err := merkle.NewTree(leafs)
	if err != nil {
		return Proof{}, fmt.Errorf("building tree: %w", err)
	}

	proof, order, err := tree.Proof(merkle.Leaf(hash))
	if err != nil {
		return Proof{}, fmt.Errorf("proof tx[%s]: %w", hash, err)
	}

	p := Proof{
		TxHash:      hash,
		BlockHash:   block.Hash,
		BlockNumber: block.Header.Number,
		MerkleRoot:  block.Header.MerkleRoot,
		Proof:       proof,
		Order:       order,
		Verified:    merkle.VerifyProof(hash, proof, order, block.Header.MerkleRoot),
	}

	if p.Proof == nil {
		p.Proof = []string{}
		p.Order = []int64{}
	}

	return p, nil
}

// ValidateChain recalculates every block of the stored chain and returns the
// first problem found.
func (s *State) ValidateChain(ctx context.Context) error {
	var blocks []database.Block
	var trans []database.ConfirmedTx

	err := s.storer.View(ctx, func(ss storage.Session) error {
		var err error
		if blocks, err = ss.QueryAllBlocks(ctx); err != nil {
			return err
		}
		trans, err = ss.QueryAllConfirmed(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}

	if err := s.validateChain(ctx, blocks, trans, true); err != nil {
		s.setChecked(nil)
		return err
	}

	if len(blocks) > 0 {
		s.setChecked(&blocks[len(blocks)-1])
	}

	return nil
}

// =============================================================================

func (s *State) queryBlock(ctx context.Context, find func(ss storage.Session) (database.Block, error)) (database.BlockData, error) {
	var bd database.BlockData

	err := s.storer.View(ctx, func(ss storage.Session) error {
		block, err := find(ss)
		if err != nil {
			return err
		}

		trans, err := ss.QueryConfirmedByBlock(ctx, block.Hash)
		if err != nil {
			return err
		}

		if trans == nil {
			trans = []database.ConfirmedTx{}
		}
		bd = database.BlockData{Block: block, Trans: trans}

		return nil
	})
	if err != nil {
		return database.BlockData{}, fmt.Errorf("query block: %w", err)
	}

	if s.cache != nil {
		s.cache.StoreBlock(ctx, bd)
	}

	return bd, nil
}

// uncheckedBlocks loads the blocks that still need validation. When the last
// checked block is still stored with the same hash the result starts with it
// and anchored is true. Otherwise the whole chain is returned.
func (s *State) uncheckedBlocks(ctx context.Context, ss storage.Session) ([]database.Block, []database.ConfirmedTx, bool, error) {
	if checked := s.lastChecked(); checked != nil {
		anchor, err := ss.QueryBlockByNumber(ctx, checked.Header.Number)
		switch {
		case err == nil && anchor.Hash == checked.Hash:
			blocks, err := ss.QueryBlocksAfter(ctx, anchor.Header.Number)
			if err != nil {
				return nil, nil, false, err
			}

			var trans []database.ConfirmedTx
			for _, block := range blocks {
				bt, err := ss.QueryConfirmedByBlock(ctx, block.Hash)
				if err != nil {
					return nil, nil, false, err
				}
				trans = append(trans, bt...)
			}

			return append([]database.Block{anchor}, blocks...), trans, true, nil

		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, nil, false, err
		}

		s.evHandler("state: ChainInfo: checked blk[%d] changed, validating the whole chain", checked.Header.Number)
	}

	blocks, err := ss.QueryAllBlocks(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	trans, err := ss.QueryAllConfirmed(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	return blocks, trans, false, nil
}

func (s *State) lastChecked() *database.Block {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	return s.checkedAt
}

// setChecked records the last block found valid. A nil block forgets it. A
// block lower than the one already recorded is ignored.
func (s *State) setChecked(block *database.Block) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	if block == nil {
		s.checkedAt = nil
		return
	}

	if s.checkedAt != nil && s.checkedAt.Header.Number > block.Header.Number {
		return
	}

	b := *block
	s.checkedAt = &b
}

// validateChain checks the blocks are in ascending order. Each block is
// checked against its parent on its own goroutine. The first block must be
// the genesis block when fromGenesis is set, otherwise it is trusted as an
// already validated anchor.
func (s *State) validateChain(ctx context.Context, blocks []database.Block, trans []database.ConfirmedTx, fromGenesis bool) error {
	if len(blocks) == 0 {
		return nil
	}

	if fromGenesis {
		if err := blocks[0].ValidateGenesis(); err != nil {
			return fmt.Errorf("blk[%d]: %w", blocks[0].Header.Number, err)
		}
	}

	byBlock := make(map[string][]database.BlockTx)
	for _, tx := range trans {
		byBlock[tx.BlockHash] = append(byBlock[tx.BlockHash], tx.BlockTx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 1; i < len(blocks); i++ {
		prev, block := blocks[i-1], blocks[i]

		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := block.ValidateBlock(prev, byBlock[block.Hash], nil); err != nil {
				return fmt.Errorf("blk[%d]: %w", block.Header.Number, err)
			}

			return nil
		})
	}

	return g.Wait()
}
