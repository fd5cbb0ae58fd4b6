// Package balance maintains the value flows of the ledger in memory. The
// sheet is rebuilt from the stored chain at startup and updated as blocks
// are committed.
package balance

import (
	"context"
	"fmt"
	"sync"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/shopspring/decimal"
)

// Sheet represents the data representation to maintain address balances.
// Balances can go negative since addresses are not funded on the ledger.
type Sheet struct {
	sheet map[string]decimal.Decimal
	mu    sync.RWMutex
}

// NewSheet constructs a new balance sheet for use with an optional set of
// starting balances.
func NewSheet(sheet map[string]decimal.Decimal) *Sheet {
	bs := Sheet{
		sheet: make(map[string]decimal.Decimal),
	}

	if sheet != nil {
		bs.Reset(sheet)
	}

	return &bs
}

// Reset takes the specified sheet and resets the balances.
func (bs *Sheet) Reset(sheet map[string]decimal.Decimal) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.sheet = make(map[string]decimal.Decimal)
	for address, value := range sheet {
		bs.sheet[address] = value
	}
}

// Copy makes a copy of the current balance sheet but returns the raw data.
func (bs *Sheet) Copy() map[string]decimal.Decimal {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	sheet := make(map[string]decimal.Decimal, len(bs.sheet))
	for address, value := range bs.sheet {
		sheet[address] = value
	}
	return sheet
}

// Balance returns the balance of the address and if the address has ever
// appeared on the ledger.
func (bs *Sheet) Balance(address string) (decimal.Decimal, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	value, exists := bs.sheet[address]
	return value, exists
}

// Load rebuilds the sheet from the blocks in storage.
func (bs *Sheet) Load(ctx context.Context, storer storage.Storer) error {
	var blocks []database.Block
	var trans []database.ConfirmedTx

	err := storer.View(ctx, func(s storage.Session) error {
		var err error
		if blocks, err = s.QueryAllBlocks(ctx); err != nil {
			return err
		}
		trans, err = s.QueryAllConfirmed(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}

	byBlock := make(map[string][]database.ConfirmedTx)
	for _, tx := range trans {
		byBlock[tx.BlockHash] = append(byBlock[tx.BlockHash], tx)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.sheet = make(map[string]decimal.Decimal)
	for _, block := range blocks {
		bs.applyBlock(database.BlockData{Block: block, Trans: byBlock[block.Hash]})
	}

	return nil
}

// BlockCommitted implements the state.Notifier interface.
func (bs *Sheet) BlockCommitted(ctx context.Context, bd database.BlockData) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.applyBlock(bd)

	return nil
}

// applyBlock moves the value of every transaction and gives the miner the
// block reward plus the gas fees.
func (bs *Sheet) applyBlock(bd database.BlockData) {
	miner := bd.Header.MinerAddress
	if bd.Reward.IsPositive() {
		bs.sheet[miner] = bs.sheet[miner].Add(bd.Reward)
	}

	for _, tx := range bd.Trans {
		bs.sheet[tx.From] = bs.sheet[tx.From].Sub(tx.Amount).Sub(tx.GasFee)
		bs.sheet[tx.To] = bs.sheet[tx.To].Add(tx.Amount)
		bs.sheet[miner] = bs.sheet[miner].Add(tx.GasFee)
	}
}
