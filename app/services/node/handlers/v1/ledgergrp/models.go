package ledgergrp

import (
	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/shopspring/decimal"
)

type newTx struct {
	Type         string              `json:"type" validate:"required"`
	From         string              `json:"sender" validate:"required"`
	To           string              `json:"recipient" validate:"required"`
	Amount       decimal.Decimal     `json:"amount"`
	GasFee       decimal.NullDecimal `json:"gas_fee"`
	Payload      map[string]any      `json:"payload"`
	PriorityHint float64             `json:"priority"`
	TimeStamp    int64               `json:"timestamp"`
}

func toMempoolNewTx(ntx newTx) mempool.NewTx {
	return mempool.NewTx{
		Type:         database.TxType(ntx.Type),
		From:         ntx.From,
		To:           ntx.To,
		Amount:       ntx.Amount,
		GasFee:       ntx.GasFee,
		Payload:      database.Payload(ntx.Payload),
		PriorityHint: ntx.PriorityHint,
		TimeStamp:    ntx.TimeStamp,
	}
}

type submitted struct {
	Status      string          `json:"status"`
	Hash        string          `json:"transaction_hash"`
	GasFee      decimal.Decimal `json:"gas_fee"`
	Priority    float64         `json:"priority_score"`
	Transaction database.BlockTx `json:"transaction"`
}

type mineRequest struct {
	MinerAddress string `json:"miner_address"`
	MaxTrans     int    `json:"max_transactions" validate:"gte=0"`
}

type addrBalance struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

type balances struct {
	LatestBlock string        `json:"latest_block"`
	Uncommitted int           `json:"uncommitted"`
	Balances    []addrBalance `json:"balances"`
}
