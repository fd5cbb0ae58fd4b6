// Package storage declares the transactional access the ledger needs to its
// persisted data. Implementations live in the sub-packages.
package storage

import (
	"context"
	"errors"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/shopspring/decimal"
)

// Set of error variables returned by the storage implementations.
var (
	// ErrNotFound is returned when a record being looked up doesn't exist.
	ErrNotFound = database.ErrNotFound

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// =============================================================================

// PoolStats summarizes the transactions waiting in the pool.
type PoolStats struct {
	Count      int
	TotalValue decimal.Decimal
	TotalFees  decimal.Decimal
}

// Session represents the set of operations that can be performed against the
// ledger inside a single atomic unit of work.
type Session interface {
	funding.Storer

	// QueryDonationTotals sums the donations of a project, or of every
	// project when projectID is empty.
	QueryDonationTotals(ctx context.Context, projectID string) (funding.DonationTotals, error)

	// Transaction pool.
	InsertPending(ctx context.Context, tx database.BlockTx) error
	DeletePending(ctx context.Context, hash string) (int64, error)
	PeekPending(ctx context.Context, limit int) ([]database.BlockTx, error)
	ListPending(ctx context.Context, offset int, limit int) ([]database.BlockTx, error)
	QueryPending(ctx context.Context, hash string) (database.BlockTx, error)
	CountPending(ctx context.Context) (int, error)
	PendingStats(ctx context.Context) (PoolStats, error)
	TransactionExists(ctx context.Context, hash string) (bool, error)

	// Blocks.
	InsertBlock(ctx context.Context, block database.Block) error
	QueryLatestBlock(ctx context.Context) (database.Block, error)
	QueryBlockByNumber(ctx context.Context, number uint64) (database.Block, error)
	QueryBlockByHash(ctx context.Context, hash string) (database.Block, error)
	QueryBlocks(ctx context.Context, offset int, limit int) ([]database.Block, error)
	QueryAllBlocks(ctx context.Context) ([]database.Block, error)
	QueryBlocksAfter(ctx context.Context, number uint64) ([]database.Block, error)
	CountBlocks(ctx context.Context) (int, error)

	// Confirmed transactions.
	InsertConfirmed(ctx context.Context, tx database.ConfirmedTx) error
	QueryConfirmed(ctx context.Context, hash string) (database.ConfirmedTx, error)
	QueryConfirmedByBlock(ctx context.Context, blockHash string) ([]database.ConfirmedTx, error)
	QueryAllConfirmed(ctx context.Context) ([]database.ConfirmedTx, error)
	CountConfirmed(ctx context.Context) (int, error)
}

// Storer represents the behavior required to open units of work against
// the ledger's storage.
type Storer interface {

	// WithinTran runs fn inside a transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	WithinTran(ctx context.Context, fn func(Session) error) error

	// View runs fn against a consistent snapshot. Any writes fn performs are
	// discarded.
	View(ctx context.Context, fn func(Session) error) error

	StatusCheck(ctx context.Context) error
	Close() error
}
