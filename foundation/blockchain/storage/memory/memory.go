// Package memory implements the ledger storage in memory using maps and
// slices. Each unit of work runs against a copy of the data which replaces
// the live data on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/shopspring/decimal"
)

// Memory represents the in memory implementation of storage.Storer.
type Memory struct {
	mu   sync.RWMutex
	data *data
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{data: newData()}
}

// WithinTran runs fn against a copy of the data. The copy replaces the live
// data when fn succeeds. Writers are serialized.
func (m *Memory) WithinTran(ctx context.Context, fn func(storage.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	cpy := m.data.clone()
	if err := fn(cpy); err != nil {
		return err
	}

	m.data = cpy

	return nil
}

// View runs fn against a copy of the data that is thrown away.
func (m *Memory) View(ctx context.Context, fn func(storage.Session) error) error {
	m.mu.RLock()
	cpy := m.data.clone()
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(cpy)
}

// StatusCheck has nothing to check since everything is in memory.
func (m *Memory) StatusCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// =============================================================================

type pending struct {
	seq int64
	tx  database.BlockTx
}

// data is the full data set. It implements storage.Session.
type data struct {
	seq       int64
	pool      map[string]pending
	blocks    []database.Block
	confirmed map[string]database.ConfirmedTx
	projects  map[string]funding.Project
	donations map[string]funding.Donation
}

func newData() *data {
	return &data{
		pool:      make(map[string]pending),
		confirmed: make(map[string]database.ConfirmedTx),
		projects:  make(map[string]funding.Project),
		donations: make(map[string]funding.Donation),
	}
}

func (d *data) clone() *data {
	cpy := data{
		seq:       d.seq,
		pool:      make(map[string]pending, len(d.pool)),
		blocks:    make([]database.Block, len(d.blocks)),
		confirmed: make(map[string]database.ConfirmedTx, len(d.confirmed)),
		projects:  make(map[string]funding.Project, len(d.projects)),
		donations: make(map[string]funding.Donation, len(d.donations)),
	}

	copy(cpy.blocks, d.blocks)
	for k, v := range d.pool {
		cpy.pool[k] = v
	}
	for k, v := range d.confirmed {
		cpy.confirmed[k] = v
	}
	for k, v := range d.projects {
		cpy.projects[k] = v
	}
	for k, v := range d.donations {
		cpy.donations[k] = v
	}

	return &cpy
}

// =============================================================================
// Transaction pool.

func (d *data) InsertPending(ctx context.Context, tx database.BlockTx) error {
	if _, exists := d.pool[tx.Hash]; exists {
		return fmt.Errorf("pool tx[%s]: %w", tx.Hash, storage.ErrDuplicate)
	}

	d.seq++
	d.pool[tx.Hash] = pending{seq: d.seq, tx: tx}

	return nil
}

func (d *data) DeletePending(ctx context.Context, hash string) (int64, error) {
	if _, exists := d.pool[hash]; !exists {
		return 0, nil
	}

	delete(d.pool, hash)

	return 1, nil
}

func (d *data) PeekPending(ctx context.Context, limit int) ([]database.BlockTx, error) {
	entries := d.sortedPool(func(a, b pending) bool {
		if a.tx.Priority != b.tx.Priority {
			return a.tx.Priority > b.tx.Priority
		}
		return a.seq < b.seq
	})

	return page(entries, 0, limit), nil
}

func (d *data) ListPending(ctx context.Context, offset int, limit int) ([]database.BlockTx, error) {
	entries := d.sortedPool(func(a, b pending) bool {
		return a.seq > b.seq
	})

	return page(entries, offset, limit), nil
}

func (d *data) QueryPending(ctx context.Context, hash string) (database.BlockTx, error) {
	p, exists := d.pool[hash]
	if !exists {
		return database.BlockTx{}, storage.ErrNotFound
	}

	return p.tx, nil
}

func (d *data) CountPending(ctx context.Context) (int, error) {
	return len(d.pool), nil
}

func (d *data) PendingStats(ctx context.Context) (storage.PoolStats, error) {
	stats := storage.PoolStats{
		Count:      len(d.pool),
		TotalValue: decimal.Zero,
		TotalFees:  decimal.Zero,
	}

	for _, p := range d.pool {
		stats.TotalValue = stats.TotalValue.Add(p.tx.Amount)
		stats.TotalFees = stats.TotalFees.Add(p.tx.GasFee)
	}

	return stats, nil
}

func (d *data) TransactionExists(ctx context.Context, hash string) (bool, error) {
	if _, exists := d.pool[hash]; exists {
		return true, nil
	}

	_, exists := d.confirmed[hash]

	return exists, nil
}

func (d *data) sortedPool(less func(a, b pending) bool) []database.BlockTx {
	entries := make([]pending, 0, len(d.pool))
	for _, p := range d.pool {
		entries = append(entries, p)
	}

	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})

	trans := make([]database.BlockTx, len(entries))
	for i, p := range entries {
		trans[i] = p.tx
	}

	return trans
}

// =============================================================================
// Blocks.

func (d *data) InsertBlock(ctx context.Context, block database.Block) error {
	for _, b := range d.blocks {
		if b.Hash == block.Hash || b.Header.Number == block.Header.Number {
			return fmt.Errorf("block[%d]: %w", block.Header.Number, storage.ErrDuplicate)
		}
	}

	d.blocks = append(d.blocks, block)

	return nil
}

func (d *data) QueryLatestBlock(ctx context.Context) (database.Block, error) {
	if len(d.blocks) == 0 {
		return database.Block{}, storage.ErrNotFound
	}

	latest := d.blocks[0]
	for _, b := range d.blocks[1:] {
		if b.Header.Number > latest.Header.Number {
			latest = b
		}
	}

	return latest, nil
}

func (d *data) QueryBlockByNumber(ctx context.Context, number uint64) (database.Block, error) {
	for _, b := range d.blocks {
		if b.Header.Number == number {
			return b, nil
		}
	}

	return database.Block{}, storage.ErrNotFound
}

func (d *data) QueryBlockByHash(ctx context.Context, hash string) (database.Block, error) {
	for _, b := range d.blocks {
		if b.Hash == hash {
			return b, nil
		}
	}

	return database.Block{}, storage.ErrNotFound
}

func (d *data) QueryBlocks(ctx context.Context, offset int, limit int) ([]database.Block, error) {
	blocks := d.sortedBlocks()

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	return page(blocks, offset, limit), nil
}

func (d *data) QueryAllBlocks(ctx context.Context) ([]database.Block, error) {
	return d.sortedBlocks(), nil
}

func (d *data) QueryBlocksAfter(ctx context.Context, number uint64) ([]database.Block, error) {
	var blocks []database.Block
	for _, b := range d.sortedBlocks() {
		if b.Header.Number > number {
			blocks = append(blocks, b)
		}
	}

	return blocks, nil
}

func (d *data) CountBlocks(ctx context.Context) (int, error) {
	return len(d.blocks), nil
}

func (d *data) sortedBlocks() []database.Block {
	blocks := make([]database.Block, len(d.blocks))
	copy(blocks, d.blocks)

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Header.Number < blocks[j].Header.Number
	})

	return blocks
}

// =============================================================================
// Confirmed transactions.

func (d *data) InsertConfirmed(ctx context.Context, tx database.ConfirmedTx) error {
	if _, exists := d.confirmed[tx.Hash]; exists {
		return fmt.Errorf("confirmed tx[%s]: %w", tx.Hash, storage.ErrDuplicate)
	}

	d.confirmed[tx.Hash] = tx

	return nil
}

func (d *data) QueryConfirmed(ctx context.Context, hash string) (database.ConfirmedTx, error) {
	tx, exists := d.confirmed[hash]
	if !exists {
		return database.ConfirmedTx{}, storage.ErrNotFound
	}

	return tx, nil
}

func (d *data) QueryConfirmedByBlock(ctx context.Context, blockHash string) ([]database.ConfirmedTx, error) {
	var trans []database.ConfirmedTx
	for _, tx := range d.confirmed {
		if tx.BlockHash == blockHash {
			trans = append(trans, tx)
		}
	}

	sort.Slice(trans, func(i, j int) bool {
		return trans[i].Position < trans[j].Position
	})

	return trans, nil
}

func (d *data) QueryAllConfirmed(ctx context.Context) ([]database.ConfirmedTx, error) {
	trans := make([]database.ConfirmedTx, 0, len(d.confirmed))
	for _, tx := range d.confirmed {
		trans = append(trans, tx)
	}

	sort.Slice(trans, func(i, j int) bool {
		if trans[i].BlockNumber != trans[j].BlockNumber {
			return trans[i].BlockNumber < trans[j].BlockNumber
		}
		return trans[i].Position < trans[j].Position
	})

	return trans, nil
}

func (d *data) CountConfirmed(ctx context.Context) (int, error) {
	return len(d.confirmed), nil
}

// =============================================================================
// Projects and donations.

func (d *data) InsertProject(ctx context.Context, prj funding.Project) error {
	if _, exists := d.projects[prj.ID]; exists {
		return fmt.Errorf("project[%s]: %w", prj.ID, storage.ErrDuplicate)
	}

	d.projects[prj.ID] = prj

	return nil
}

func (d *data) UpdateProject(ctx context.Context, prj funding.Project) error {
	if _, exists := d.projects[prj.ID]; !exists {
		return storage.ErrNotFound
	}

	d.projects[prj.ID] = prj

	return nil
}

func (d *data) QueryProjectByID(ctx context.Context, projectID string) (funding.Project, error) {
	prj, exists := d.projects[projectID]
	if !exists {
		return funding.Project{}, storage.ErrNotFound
	}

	return prj, nil
}

func (d *data) InsertDonation(ctx context.Context, dnt funding.Donation) error {
	if _, exists := d.donations[dnt.ID]; exists {
		return fmt.Errorf("donation[%s]: %w", dnt.ID, storage.ErrDuplicate)
	}

	d.donations[dnt.ID] = dnt

	return nil
}

func (d *data) UpdateDonation(ctx context.Context, dnt funding.Donation) error {
	if _, exists := d.donations[dnt.ID]; !exists {
		return storage.ErrNotFound
	}

	d.donations[dnt.ID] = dnt

	return nil
}

func (d *data) QueryDonationByID(ctx context.Context, donationID string) (funding.Donation, error) {
	dnt, exists := d.donations[donationID]
	if !exists {
		return funding.Donation{}, storage.ErrNotFound
	}

	return dnt, nil
}

func (d *data) QueryDonationTotals(ctx context.Context, projectID string) (funding.DonationTotals, error) {
	totals := funding.DonationTotals{ConfirmedAmount: decimal.Zero}
	for _, dnt := range d.donations {
		if projectID != "" && dnt.ProjectID != projectID {
			continue
		}
		totals = totals.Add(dnt)
	}

	return totals, nil
}

func (d *data) QueryDonationByTxHash(ctx context.Context, txHash string) (funding.Donation, error) {
	for _, dnt := range d.donations {
		if txHash != "" && dnt.TxHash == txHash {
			return dnt, nil
		}
	}

	return funding.Donation{}, storage.ErrNotFound
}

// =============================================================================

// page returns the window of values starting at offset. A limit of zero or
// less returns everything after offset.
func page[T any](values []T, offset int, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(values) {
		return nil
	}

	end := len(values)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return values[offset:end]
}
