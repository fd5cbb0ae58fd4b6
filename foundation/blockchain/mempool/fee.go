package mempool

import (
	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// Set of constants that drive the fee estimation.
const (
	congestionStep = 100  // Pool size that doubles the estimated fee.
	maxPriority    = 1000 // Upper bound of a priority score.
	feePrecision   = 8    // Decimal places kept on an estimated fee.
)

var (
	perByteFee = decimal.RequireFromString("0.0001")

	baseFees = map[database.TxType]decimal.Decimal{
		database.TxDonation:        decimal.RequireFromString("0.01"),
		database.TxProjectCreation: decimal.RequireFromString("0.05"),
		database.TxTransfer:        decimal.RequireFromString("0.02"),
	}

	defaultBaseFee = decimal.RequireFromString("0.02")
)

// EstimateFee calculates the gas fee of a transaction that didn't declare
// one. The fee grows with the size of the payload and with the number of
// transactions already waiting in the pool.
func EstimateFee(txType database.TxType, payloadSize int, poolSize int) decimal.Decimal {
	base, exists := baseFees[txType]
	if !exists {
		base = defaultBaseFee
	}

	if payloadSize < 0 {
		payloadSize = 0
	}
	if poolSize < 0 {
		poolSize = 0
	}

	fee := base.Add(perByteFee.Mul(decimal.NewFromInt(int64(payloadSize))))

	congestion := decimal.NewFromInt(int64(poolSize)).
		Div(decimal.NewFromInt(congestionStep)).
		Add(decimal.NewFromInt(1))

	return fee.Mul(congestion).Round(feePrecision)
}

// Priority calculates the priority score of a transaction from its fee and
// the hint provided by the producer. The score is bounded to [0, 1000].
func Priority(fee decimal.Decimal, hint float64) float64 {
	score, _ := fee.Mul(decimal.NewFromInt(100)).Float64()
	score += hint

	switch {
	case score < 0:
		return 0
	case score > maxPriority:
		return maxPriority
	}

	return score
}
