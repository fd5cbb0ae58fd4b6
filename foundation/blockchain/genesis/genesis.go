// Package genesis maintains access to the genesis file that carries the
// parameters of the chain.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Default values applied to any parameter not set in the genesis file.
const (
	DefaultStartNumber   = 1
	DefaultTransPerBlock = 10
	DefaultDifficulty    = 4
	DefaultMaxAttempts   = 1_000_000
)

// DefaultMiningReward is the reward credited for mining a block.
var DefaultMiningReward = decimal.NewFromInt(10)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time       `json:"date"`
	ChainID       uint16          `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	StartNumber   uint64          `json:"start_number"`    // The number given to the genesis block.
	TransPerBlock uint16          `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16          `json:"difficulty"`      // How many leading hex zeros a block hash needs.
	MaxAttempts   uint64          `json:"max_attempts"`    // Upper bound of nonces tried for a single block.
	MiningReward  decimal.Decimal `json:"mining_reward"`   // Reward for mining a block.
}

// =============================================================================

// Default returns the genesis values used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		StartNumber:   DefaultStartNumber,
		TransPerBlock: DefaultTransPerBlock,
		Difficulty:    DefaultDifficulty,
		MaxAttempts:   DefaultMaxAttempts,
		MiningReward:  DefaultMiningReward,
	}
}

// Load opens and consumes the genesis file. An empty path returns the
// default genesis values. Fields missing from the file keep their defaults.
func Load(path string) (Genesis, error) {
	genesis := Default()
	if path == "" {
		return genesis, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("reading genesis file: %w", err)
	}

	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis file: %w", err)
	}

	switch {
	case genesis.Difficulty > 64:
		return Genesis{}, fmt.Errorf("difficulty %d is larger than a hash", genesis.Difficulty)
	case genesis.TransPerBlock == 0:
		return Genesis{}, errors.New("trans_per_block must be greater than zero")
	case genesis.MiningReward.IsNegative():
		return Genesis{}, errors.New("mining_reward must not be negative")
	}

	return genesis, nil
}
