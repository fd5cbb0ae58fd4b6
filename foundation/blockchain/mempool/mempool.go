// Package mempool maintains the pool of transactions waiting to be packaged
// into a block. The pool lives in storage so it is shared with the miner
// through the same units of work.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/shopspring/decimal"
)

// Set of error variables for pool operations.
var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrInvalidPage          = errors.New("invalid page request")
)

// MaxPageLimit is the largest page List will return.
const MaxPageLimit = 100

// =============================================================================

// NewTx is what a producer submits to the pool.
type NewTx struct {
	Type         database.TxType
	From         string
	To           string
	Amount       decimal.Decimal
	GasFee       decimal.NullDecimal // Estimated when not valid.
	Payload      database.Payload
	PriorityHint float64
	TimeStamp    int64 // Milliseconds. Set to now when zero.
}

// Stats summarizes the state of the pool.
type Stats struct {
	Count      int             `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
	AverageFee decimal.Decimal `json:"average_fee"`
}

// Page is a window of the pool, newest transactions first.
type Page struct {
	Items []database.BlockTx `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// =============================================================================

// Mempool provides the pool operations on top of the ledger storage.
type Mempool struct {
	storer storage.Storer
	now    func() time.Time
}

// New constructs a mempool backed by the specified storage.
func New(storer storage.Storer) *Mempool {
	return &Mempool{
		storer: storer,
		now:    time.Now,
	}
}

// Submit validates the transaction and adds it to the pool as one unit
// of work.
func (mp *Mempool) Submit(ctx context.Context, ntx NewTx) (database.BlockTx, error) {
	var tx database.BlockTx

	err := mp.storer.WithinTran(ctx, func(s storage.Session) error {
		var err error
		tx, err = mp.SubmitWithin(ctx, s, ntx)
		return err
	})
	if err != nil {
		return database.BlockTx{}, err
	}

	return tx, nil
}

// SubmitWithin adds the transaction to the pool inside a unit of work owned
// by the caller. Producers use this to keep their own writes and the pool
// entry atomic.
func (mp *Mempool) SubmitWithin(ctx context.Context, s storage.Session, ntx NewTx) (database.BlockTx, error) {
	if ntx.Type == "" || ntx.From == "" || ntx.To == "" {
		return database.BlockTx{}, fmt.Errorf("%w: type, sender and recipient are required", ErrInvalidTransaction)
	}

	if ntx.Amount.IsNegative() {
		return database.BlockTx{}, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, ntx.Amount)
	}

	if ntx.GasFee.Valid && ntx.GasFee.Decimal.IsNegative() {
		return database.BlockTx{}, fmt.Errorf("%w: gas fee %s is negative", ErrInvalidAmount, ntx.GasFee.Decimal)
	}

	if ntx.Payload == nil {
		ntx.Payload = database.Payload{}
	}

	if ntx.TimeStamp == 0 {
		ntx.TimeStamp = mp.now().UTC().UnixMilli()
	}

	tx := database.Tx{
		Type:      ntx.Type,
		From:      ntx.From,
		To:        ntx.To,
		Amount:    ntx.Amount,
		Payload:   ntx.Payload,
		TimeStamp: ntx.TimeStamp,
	}

	hash, err := tx.Digest()
	if err != nil {
		return database.BlockTx{}, fmt.Errorf("hashing tx: %w", err)
	}

	exists, err := s.TransactionExists(ctx, hash)
	if err != nil {
		return database.BlockTx{}, fmt.Errorf("checking tx[%s]: %w", hash, err)
	}
	if exists {
		return database.BlockTx{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, hash)
	}

	fee := ntx.GasFee.Decimal
	if !ntx.GasFee.Valid {
		size, err := s.CountPending(ctx)
		if err != nil {
			return database.BlockTx{}, fmt.Errorf("counting pool: %w", err)
		}

		payload, err := digest.Canonical(ntx.Payload)
		if err != nil {
			return database.BlockTx{}, fmt.Errorf("encoding payload: %w", err)
		}

		fee = EstimateFee(ntx.Type, len(payload), size)
	}

	btx := database.BlockTx{
		Tx:       tx,
		Hash:     hash,
		GasFee:   fee,
		Priority: Priority(fee, ntx.PriorityHint),
	}

	if err := s.InsertPending(ctx, btx); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return database.BlockTx{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, hash)
		}
		return database.BlockTx{}, err
	}

	return btx, nil
}

// PeekBatch returns up to max transactions in the order they will be
// packaged: highest priority first, then arrival order. Nothing is removed
// from the pool.
func (mp *Mempool) PeekBatch(ctx context.Context, max int) ([]database.BlockTx, error) {
	if max <= 0 {
		return nil, nil
	}

	var trans []database.BlockTx

	err := mp.storer.View(ctx, func(s storage.Session) error {
		var err error
		trans, err = s.PeekPending(ctx, max)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("peeking pool: %w", err)
	}

	return trans, nil
}

// Size returns the number of transactions in the pool.
func (mp *Mempool) Size(ctx context.Context) (int, error) {
	var n int

	err := mp.storer.View(ctx, func(s storage.Session) error {
		var err error
		n, err = s.CountPending(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting pool: %w", err)
	}

	return n, nil
}

// Stats returns the count, total value and average fee of the pool.
func (mp *Mempool) Stats(ctx context.Context) (Stats, error) {
	var ps storage.PoolStats

	err := mp.storer.View(ctx, func(s storage.Session) error {
		var err error
		ps, err = s.PendingStats(ctx)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("pool stats: %w", err)
	}

	stats := Stats{
		Count:      ps.Count,
		TotalValue: ps.TotalValue,
		AverageFee: decimal.Zero,
	}

	if ps.Count > 0 {
		stats.AverageFee = ps.TotalFees.DivRound(decimal.NewFromInt(int64(ps.Count)), feePrecision)
	}

	return stats, nil
}

// List returns a page of the pool, newest transactions first. Pages start
// at 1 and hold up to MaxPageLimit transactions.
func (mp *Mempool) List(ctx context.Context, page int, limit int) (Page, error) {
	if page < 1 || limit < 1 || limit > MaxPageLimit {
		return Page{}, fmt.Errorf("%w: page[%d] limit[%d]", ErrInvalidPage, page, limit)
	}

	result := Page{
		Items: []database.BlockTx{},
		Page:  page,
		Limit: limit,
	}

	err := mp.storer.View(ctx, func(s storage.Session) error {
		total, err := s.CountPending(ctx)
		if err != nil {
			return err
		}
		result.Total = total

		items, err := s.ListPending(ctx, (page-1)*limit, limit)
		if err != nil {
			return err
		}
		if items != nil {
			result.Items = items
		}

		return nil
	})
	if err != nil {
		return Page{}, fmt.Errorf("listing pool: %w", err)
	}

	return result, nil
}
