package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
	"github.com/chaos0211/block-dt/foundation/blockchain/merkle"
	"github.com/shopspring/decimal"
)

// Set of error variables for the ledger data.
var (
	// ErrPOWExhausted is returned by POW when the nonce search reached the
	// maximum number of attempts without a solution.
	ErrPOWExhausted = errors.New("proof of work attempts exhausted")

	// ErrNotFound is returned by stores when the requested record does
	// not exist.
	ErrNotFound = errors.New("not found")
)

// GenesisMiner is the miner address recorded on the genesis block.
const GenesisMiner = "system_genesis"

// =============================================================================

// BlockHeader represents the information hashed to identify a block. The
// field order is part of the hash input.
type BlockHeader struct {
	Number        uint64 `json:"number"`        // Block number in the chain.
	PrevBlockHash string `json:"previous_hash"` // Hash of the previous block in the chain.
	MerkleRoot    string `json:"merkle_root"`   // Merkle root of the transactions in this block.
	TimeStamp     int64  `json:"timestamp"`     // Milliseconds since the unix epoch the block was assembled.
	MinerAddress  string `json:"miner_address"` // Address credited with the block reward.
	Nonce         uint64 `json:"nonce"`         // Value identified to solve the hash solution.
}

// Hash returns the unique hash for the header.
func (bh BlockHeader) Hash() (string, error) {
	return digest.Hash(bh)
}

// Block represents a group of transactions batched together.
type Block struct {
	Header     BlockHeader     `json:"header"`
	Hash       string          `json:"hash"`
	Difficulty uint            `json:"difficulty"`
	Reward     decimal.Decimal `json:"reward"`
	TransCount int             `json:"transaction_count"`
}

// NewGenesisBlock constructs the first block of the chain. It has no
// transactions, the zero hash as its parent, and no difficulty.
func NewGenesisBlock(number uint64, timeStamp int64) (Block, error) {
	header := BlockHeader{
		Number:        number,
		PrevBlockHash: digest.ZeroHash,
		MerkleRoot:    merkle.EmptyRoot,
		TimeStamp:     timeStamp,
		MinerAddress:  GenesisMiner,
		Nonce:         0,
	}

	hash, err := header.Hash()
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Header:     header,
		Hash:       hash,
		Difficulty: 0,
		Reward:     decimal.Zero,
		TransCount: 0,
	}

	return b, nil
}

// BlockData represents a block with its confirmed transactions in the
// order they were packaged.
type BlockData struct {
	Block
	Trans []ConfirmedTx `json:"transactions"`
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	MinerAddress string
	Difficulty   uint
	MaxAttempts  uint64
	MerkleRoot   string // Calculated from Trans when empty.
	Reward       decimal.Decimal
	PrevBlock    Block
	Trans        []BlockTx
	EvHandler    func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	// The merkle root of the transactions for this block is part of the
	// header to be mined, so the order of the transactions matters.
	root := args.MerkleRoot
	if root == "" {
		var err error
		if root, err = merkle.Root(Hashes(args.Trans)); err != nil {
			return Block{}, err
		}
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: args.PrevBlock.Hash,
			MerkleRoot:    root,
			TimeStamp:     time.Now().UTC().UnixMilli(),
			MinerAddress:  args.MinerAddress,
			Nonce:         0, // Will be identified by the POW algorithm.
		},
		Difficulty: args.Difficulty,
		Reward:     args.Reward,
		TransCount: len(args.Trans),
	}

	// Peform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.MaxAttempts, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
// The search starts at zero and stops after maxAttempts hashes.
func (b *Block) performPOW(ctx context.Context, maxAttempts uint64, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started: blk[%d]: difficulty[%d]", b.Header.Number, b.Difficulty)
	defer ev("database: PerformPOW: MINING: completed")

	var attempts uint64
	for b.Header.Nonce = 0; ; b.Header.Nonce++ {
		if maxAttempts > 0 && attempts >= maxAttempts {
			ev("database: PerformPOW: MINING: EXHAUSTED: attempts[%d]", attempts)
			return fmt.Errorf("%w: after %d attempts", ErrPOWExhausted, attempts)
		}

		attempts++
		if attempts%100_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)

			// Did we get cancelled trying to solve the problem.
			if ctx.Err() != nil {
				ev("database: PerformPOW: MINING: CANCELLED")
				return ctx.Err()
			}
		}

		// Hash the block and check if we have solved the puzzle.
		hash, err := b.Header.Hash()
		if err != nil {
			return err
		}

		if !isHashSolved(b.Difficulty, hash) {
			continue
		}

		b.Hash = hash

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// =============================================================================

// ValidateGenesis checks the block is a well formed genesis block.
func (b Block) ValidateGenesis() error {
	if b.Header.PrevBlockHash != digest.ZeroHash {
		return fmt.Errorf("genesis block must link to the zero hash, got %s", b.Header.PrevBlockHash)
	}

	if b.TransCount != 0 || b.Header.MerkleRoot != merkle.EmptyRoot {
		return errors.New("genesis block must not carry transactions")
	}

	hash, err := b.Header.Hash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("genesis block hash doesn't match header, got %s, exp %s", b.Hash, hash)
	}

	return nil
}

// ValidateBlock takes a block with its ordered transactions and validates it
// against its parent block.
func (b Block) ValidateBlock(previousBlock Block, trans []BlockTx, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches the header", b.Header.Number)

	hash, err := b.Header.Hash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("block hash doesn't match header, got %s, exp %s", b.Hash, hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	if !isHashSolved(b.Difficulty, hash) {
		return fmt.Errorf("%s invalid block hash", hash)
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Header.Number)

		if b.Header.TimeStamp < previousBlock.Header.TimeStamp {
			return fmt.Errorf("block timestamp is before parent block, parent %d, block %d", previousBlock.Header.TimeStamp, b.Header.TimeStamp)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions match their hashes", b.Header.Number)

	if len(trans) != b.TransCount {
		return fmt.Errorf("transaction count doesn't match, got %d, exp %d", len(trans), b.TransCount)
	}

	for _, tx := range trans {
		h, err := tx.Digest()
		if err != nil {
			return err
		}
		if h != tx.Hash {
			return fmt.Errorf("transaction content doesn't match its hash %s", tx.Hash)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	root, err := merkle.Root(Hashes(trans))
	if err != nil {
		return err
	}

	if b.Header.MerkleRoot != root {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", root, b.Header.MerkleRoot)
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if len(hash) != 64 || difficulty > 64 {
		return false
	}

	return strings.HasPrefix(hash, strings.Repeat("0", int(difficulty)))
}
