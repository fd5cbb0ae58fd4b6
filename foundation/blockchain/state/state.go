// Package state is the core API for the ledger and implements the rules for
// packaging pool transactions into blocks and confirming them.
package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
)

// Set of error variables for mining.
var (
	ErrMiningInProgress      = errors.New("mining already in progress")
	ErrNoPendingTransactions = errors.New("no pending transactions")
	ErrMiningTimeout         = errors.New("mining attempts exhausted")
	ErrMiningCommitFailed    = errors.New("mining commit failed")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package that triggers mining in the background.
type Worker interface {
	Shutdown()
}

// Rewarder credits the reward of a mined block. It runs inside the unit of
// work that persists the block, so a failure rolls the block back.
type Rewarder interface {
	Credit(ctx context.Context, s storage.Session, block database.Block) error
}

// Notifier is told about every block after it has been committed. Errors are
// logged and never undo the block.
type Notifier interface {
	BlockCommitted(ctx context.Context, bd database.BlockData) error
}

// BlockCache holds blocks with their transactions for the read paths. Blocks
// never change once committed so entries don't need invalidation.
type BlockCache interface {
	BlockByNumber(ctx context.Context, number uint64) (database.BlockData, bool)
	BlockByHash(ctx context.Context, hash string) (database.BlockData, bool)
	StoreBlock(ctx context.Context, bd database.BlockData)
}

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	MinerAddress string
	Genesis      genesis.Genesis
	Storer       storage.Storer
	Pool         *mempool.Mempool
	Reward       Rewarder
	Cache        BlockCache
	Notifiers    []Notifier
	EvHandler    EventHandler
}

// State manages the ledger.
type State struct {
	minerAddress string
	genesis      genesis.Genesis
	storer       storage.Storer
	pool         *mempool.Mempool
	reward       Rewarder
	cache        BlockCache
	notifiers    []Notifier
	evHandler    EventHandler
	now          func() time.Time

	mining     atomic.Bool
	mu         sync.RWMutex
	phase      Phase
	lastResult *MiningResult
	lastError  string

	// Last block ChainInfo found valid. Blocks up to it aren't rechecked.
	checkMu   sync.Mutex
	checkedAt *database.Block

	Worker Worker
}

// New constructs a new ledger for data management.
func New(cfg Config) (*State, error) {
	if cfg.Storer == nil {
		return nil, errors.New("storer is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	pool := cfg.Pool
	if pool == nil {
		pool = mempool.New(cfg.Storer)
	}

	minerAddress := cfg.MinerAddress
	if minerAddress == "" {
		minerAddress = DefaultMinerAddress
	}

	state := State{
		minerAddress: minerAddress,
		genesis:      cfg.Genesis,
		storer:       cfg.Storer,
		pool:         pool,
		reward:       cfg.Reward,
		cache:        cfg.Cache,
		notifiers:    cfg.Notifiers,
		evHandler:    ev,
		now:          time.Now,
		phase:        PhaseIdle,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// when automatic mining is turned on.

	return &state, nil
}

// Shutdown cleanly brings the ledger down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all background mining activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.storer.Close()
}

// Genesis returns a copy of the chain parameters.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Pool returns the transaction pool the ledger packages blocks from.
func (s *State) Pool() *mempool.Mempool {
	return s.pool
}

// Storer returns the storage the ledger is persisted to.
func (s *State) Storer() storage.Storer {
	return s.storer
}

// StatusCheck reports if the storage can be reached.
func (s *State) StatusCheck(ctx context.Context) error {
	return s.storer.StatusCheck(ctx)
}
