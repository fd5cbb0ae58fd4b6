// Package events fans out node events to the registered receivers, usually
// websocket clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
)

// messageBuffer is the number of messages a slow receiver can fall behind
// before messages to it are dropped.
const messageBuffer = 100

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	evt.m[id] = make(chan string, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Count returns the number of registered receivers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}

// =============================================================================

// blockEvent is the message sent to receivers for a committed block.
type blockEvent struct {
	Kind        string   `json:"kind"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHashes    []string `json:"tx_hashes"`
}

// BlockCommitted implements the state.Notifier interface and sends a JSON
// summary of the block to every receiver.
func (evt *Events) BlockCommitted(ctx context.Context, bd database.BlockData) error {
	hashes := make([]string, len(bd.Trans))
	for i, tx := range bd.Trans {
		hashes[i] = tx.Hash
	}

	data, err := json.Marshal(blockEvent{
		Kind:        "block_committed",
		BlockNumber: bd.Header.Number,
		BlockHash:   bd.Hash,
		TxHashes:    hashes,
	})
	if err != nil {
		return fmt.Errorf("encoding block event: %w", err)
	}

	evt.Send(string(data))

	return nil
}
