package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	db "github.com/chaos0211/block-dt/foundation/database"
	"github.com/shopspring/decimal"
)

// session implements storage.Session against an open database transaction.
type session struct {
	tx      *sql.Tx
	dialect string
}

func (s *session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.tx.ExecContext(ctx, db.Rebind(s.dialect, query), args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", storage.ErrDuplicate, err)
		}
		return nil, err
	}

	return res, nil
}

func (s *session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, db.Rebind(s.dialect, query), args...)
}

func (s *session) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, db.Rebind(s.dialect, query), args...)
}

func (s *session) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

// =============================================================================
// Transaction pool.

const poolColumns = `hash, type, sender, recipient, amount, gas_fee, payload, priority_score, timestamp_ms`

func (s *session) InsertPending(ctx context.Context, tx database.BlockTx) error {
	const q = `
	INSERT INTO transaction_pool
		(hash, type, sender, recipient, amount, gas_fee, payload, priority_score, timestamp_ms)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	row, err := toTxRow(tx)
	if err != nil {
		return err
	}

	if _, err := s.exec(ctx, q, row.args()...); err != nil {
		return fmt.Errorf("inserting pool tx[%s]: %w", tx.Hash, err)
	}

	return nil
}

func (s *session) DeletePending(ctx context.Context, hash string) (int64, error) {
	const q = `DELETE FROM transaction_pool WHERE hash = ?`

	res, err := s.exec(ctx, q, hash)
	if err != nil {
		return 0, fmt.Errorf("deleting pool tx[%s]: %w", hash, err)
	}

	return res.RowsAffected()
}

func (s *session) PeekPending(ctx context.Context, limit int) ([]database.BlockTx, error) {
	const q = `
	SELECT ` + poolColumns + `
	FROM transaction_pool
	ORDER BY priority_score DESC, id ASC
	LIMIT ?`

	return s.queryBlockTxs(ctx, q, limit)
}

func (s *session) ListPending(ctx context.Context, offset int, limit int) ([]database.BlockTx, error) {
	const q = `
	SELECT ` + poolColumns + `
	FROM transaction_pool
	ORDER BY id DESC
	LIMIT ? OFFSET ?`

	return s.queryBlockTxs(ctx, q, limit, offset)
}

func (s *session) QueryPending(ctx context.Context, hash string) (database.BlockTx, error) {
	const q = `SELECT ` + poolColumns + ` FROM transaction_pool WHERE hash = ?`

	var row txRow
	if err := s.queryRow(ctx, q, hash).Scan(row.dest()...); err != nil {
		return database.BlockTx{}, notFound(err)
	}

	return row.toBlockTx()
}

func (s *session) CountPending(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM transaction_pool`)
}

// PendingStats sums the pool in code since amounts are stored as exact
// decimal strings.
func (s *session) PendingStats(ctx context.Context) (storage.PoolStats, error) {
	const q = `SELECT amount, gas_fee FROM transaction_pool`

	rows, err := s.query(ctx, q)
	if err != nil {
		return storage.PoolStats{}, err
	}
	defer rows.Close()

	stats := storage.PoolStats{
		TotalValue: decimal.Zero,
		TotalFees:  decimal.Zero,
	}

	for rows.Next() {
		var amount, fee string
		if err := rows.Scan(&amount, &fee); err != nil {
			return storage.PoolStats{}, err
		}

		a, err := decimal.NewFromString(amount)
		if err != nil {
			return storage.PoolStats{}, fmt.Errorf("parsing amount: %w", err)
		}
		f, err := decimal.NewFromString(fee)
		if err != nil {
			return storage.PoolStats{}, fmt.Errorf("parsing gas fee: %w", err)
		}

		stats.Count++
		stats.TotalValue = stats.TotalValue.Add(a)
		stats.TotalFees = stats.TotalFees.Add(f)
	}

	return stats, rows.Err()
}

func (s *session) TransactionExists(ctx context.Context, hash string) (bool, error) {
	const q = `
	SELECT
		(SELECT COUNT(*) FROM transaction_pool WHERE hash = ?) +
		(SELECT COUNT(*) FROM transactions WHERE hash = ?)`

	n, err := s.count(ctx, q, hash, hash)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (s *session) queryBlockTxs(ctx context.Context, query string, args ...any) ([]database.BlockTx, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trans []database.BlockTx
	for rows.Next() {
		var row txRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}

		tx, err := row.toBlockTx()
		if err != nil {
			return nil, err
		}
		trans = append(trans, tx)
	}

	return trans, rows.Err()
}

// =============================================================================
// Blocks.

const blockColumns = `number, hash, previous_hash, merkle_root, timestamp_ms, miner_address, nonce, difficulty, reward, transaction_count`

func (s *session) InsertBlock(ctx context.Context, block database.Block) error {
	const q = `
	INSERT INTO blocks
		(number, hash, previous_hash, merkle_root, timestamp_ms, miner_address, nonce, difficulty, reward, transaction_count)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []any{
		int64(block.Header.Number),
		block.Hash,
		block.Header.PrevBlockHash,
		block.Header.MerkleRoot,
		block.Header.TimeStamp,
		block.Header.MinerAddress,
		int64(block.Header.Nonce),
		int64(block.Difficulty),
		block.Reward.String(),
		block.TransCount,
	}

	if _, err := s.exec(ctx, q, args...); err != nil {
		return fmt.Errorf("inserting block[%d]: %w", block.Header.Number, err)
	}

	return nil
}

func (s *session) QueryLatestBlock(ctx context.Context) (database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks ORDER BY number DESC LIMIT 1`

	return s.queryBlock(ctx, q)
}

func (s *session) QueryBlockByNumber(ctx context.Context, number uint64) (database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks WHERE number = ?`

	return s.queryBlock(ctx, q, int64(number))
}

func (s *session) QueryBlockByHash(ctx context.Context, hash string) (database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks WHERE hash = ?`

	return s.queryBlock(ctx, q, hash)
}

func (s *session) QueryBlocks(ctx context.Context, offset int, limit int) ([]database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks ORDER BY number DESC LIMIT ? OFFSET ?`

	return s.queryBlocks(ctx, q, limit, offset)
}

func (s *session) QueryAllBlocks(ctx context.Context) ([]database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks ORDER BY number ASC`

	return s.queryBlocks(ctx, q)
}

func (s *session) QueryBlocksAfter(ctx context.Context, number uint64) ([]database.Block, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks WHERE number > ? ORDER BY number ASC`

	return s.queryBlocks(ctx, q, int64(number))
}

func (s *session) CountBlocks(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM blocks`)
}

func (s *session) queryBlock(ctx context.Context, query string, args ...any) (database.Block, error) {
	var row blockRow
	if err := s.queryRow(ctx, query, args...).Scan(row.dest()...); err != nil {
		return database.Block{}, notFound(err)
	}

	return row.toBlock()
}

func (s *session) queryBlocks(ctx context.Context, query string, args ...any) ([]database.Block, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []database.Block
	for rows.Next() {
		var row blockRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}

		block, err := row.toBlock()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}

// =============================================================================
// Confirmed transactions.

const confirmedColumns = poolColumns + `, block_hash, block_number, tx_index, confirmed_at`

func (s *session) InsertConfirmed(ctx context.Context, tx database.ConfirmedTx) error {
	const q = `
	INSERT INTO transactions
		(hash, type, sender, recipient, amount, gas_fee, payload, priority_score, timestamp_ms,
		 block_hash, block_number, tx_index, confirmed_at)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	row, err := toTxRow(tx.BlockTx)
	if err != nil {
		return err
	}

	args := append(row.args(), tx.BlockHash, int64(tx.BlockNumber), tx.Position, tx.ConfirmedAt)

	if _, err := s.exec(ctx, q, args...); err != nil {
		return fmt.Errorf("inserting confirmed tx[%s]: %w", tx.Hash, err)
	}

	return nil
}

func (s *session) QueryConfirmed(ctx context.Context, hash string) (database.ConfirmedTx, error) {
	const q = `SELECT ` + confirmedColumns + ` FROM transactions WHERE hash = ?`

	var row confirmedRow
	if err := s.queryRow(ctx, q, hash).Scan(row.dest()...); err != nil {
		return database.ConfirmedTx{}, notFound(err)
	}

	return row.toConfirmedTx()
}

func (s *session) QueryConfirmedByBlock(ctx context.Context, blockHash string) ([]database.ConfirmedTx, error) {
	const q = `SELECT ` + confirmedColumns + ` FROM transactions WHERE block_hash = ? ORDER BY tx_index ASC`

	return s.queryConfirmed(ctx, q, blockHash)
}

func (s *session) QueryAllConfirmed(ctx context.Context) ([]database.ConfirmedTx, error) {
	const q = `SELECT ` + confirmedColumns + ` FROM transactions ORDER BY block_number ASC, tx_index ASC`

	return s.queryConfirmed(ctx, q)
}

func (s *session) CountConfirmed(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM transactions`)
}

func (s *session) queryConfirmed(ctx context.Context, query string, args ...any) ([]database.ConfirmedTx, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trans []database.ConfirmedTx
	for rows.Next() {
		var row confirmedRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}

		tx, err := row.toConfirmedTx()
		if err != nil {
			return nil, err
		}
		trans = append(trans, tx)
	}

	return trans, rows.Err()
}

// =============================================================================

// notFound converts the no rows error into the storage error.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	return err
}
