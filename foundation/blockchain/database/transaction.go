package database

import (
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
	"github.com/shopspring/decimal"
)

// TxType identifies the semantics of a transaction.
type TxType string

// The set of transaction types the ledger understands.
const (
	TxDonation        TxType = "donation"
	TxProjectCreation TxType = "project_creation"
	TxTransfer        TxType = "transfer"
)

// =============================================================================

// Payload carries the type specific fields of a transaction.
type Payload map[string]any

// String returns the value stored for the key as a string. Numbers are
// formatted without an exponent so ids stored as numbers still match.
func (p Payload) String(key string) string {
	v, exists := p[key]
	if !exists || v == nil {
		return ""
	}

	switch v := v.(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return fmt.Sprint(v)
	}
}

// =============================================================================

// Tx is the content that identifies a transaction. The hash of a transaction
// is calculated over this value with the fields in this order.
type Tx struct {
	Type      TxType          `json:"type"`
	From      string          `json:"sender"`
	To        string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Payload   Payload         `json:"payload"`
	TimeStamp int64           `json:"timestamp"` // Milliseconds since the unix epoch.
}

// Digest returns the content address of the transaction.
func (tx Tx) Digest() (string, error) {
	if tx.Payload == nil {
		tx.Payload = Payload{}
	}

	return digest.Hash(tx)
}

// =============================================================================

// BlockTx represents a transaction waiting in the pool or packaged into
// a block.
type BlockTx struct {
	Tx
	Hash     string          `json:"hash"`
	GasFee   decimal.Decimal `json:"gas_fee"`
	Priority float64         `json:"priority_score"`
}

// NewBlockTx constructs a transaction for the pool, calculating its hash.
func NewBlockTx(tx Tx, gasFee decimal.Decimal, priority float64) (BlockTx, error) {
	if tx.Payload == nil {
		tx.Payload = Payload{}
	}

	hash, err := tx.Digest()
	if err != nil {
		return BlockTx{}, fmt.Errorf("hashing tx: %w", err)
	}

	btx := BlockTx{
		Tx:       tx,
		Hash:     hash,
		GasFee:   gasFee,
		Priority: priority,
	}

	return btx, nil
}

// String implements the Stringer interface for logging.
func (tx BlockTx) String() string {
	return fmt.Sprintf("%s:%s:%s->%s:%s", tx.Hash, tx.Type, tx.From, tx.To, tx.Amount)
}

// Hashes returns the hashes of the transactions in order.
func Hashes(trans []BlockTx) []string {
	hashes := make([]string, len(trans))
	for i, tx := range trans {
		hashes[i] = tx.Hash
	}

	return hashes
}

// =============================================================================

// ConfirmedTx is the immutable record of a transaction packaged into a block.
type ConfirmedTx struct {
	BlockTx
	BlockHash   string `json:"block_hash"`
	BlockNumber uint64 `json:"block_number"`
	Position    int    `json:"position"`
	ConfirmedAt int64  `json:"confirmed_at"`
}

// NewConfirmedTx constructs the record of the transaction at the specified
// position inside the block.
func NewConfirmedTx(tx BlockTx, block Block, position int) ConfirmedTx {
	return ConfirmedTx{
		BlockTx:     tx,
		BlockHash:   block.Hash,
		BlockNumber: block.Header.Number,
		Position:    position,
		ConfirmedAt: block.Header.TimeStamp,
	}
}
