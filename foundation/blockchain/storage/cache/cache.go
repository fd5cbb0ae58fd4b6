// Package cache keeps recently read blocks in redis so block lookups don't
// need to reach the ledger storage.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/redis/go-redis/v9"
)

const (
	blockNumberKeyPrefix = "ledger:block:number:"
	blockHashKeyPrefix   = "ledger:block:hash:"
	defaultCacheTTL      = time.Hour
)

// Config represents the settings of the cache.
type Config struct {
	Addr string
	TTL  time.Duration
}

// Cache stores committed blocks with their transactions. Blocks never
// change once committed so entries are only removed by the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    func(v string, args ...any)
}

// New connects to redis. A nil cache is returned when no address is
// configured.
func New(cfg Config, ev func(v string, args ...any)) (*Cache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newCache(client, cfg.TTL, ev), nil
}

func newCache(client *redis.Client, ttl time.Duration, ev func(v string, args ...any)) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Cache{client: client, ttl: ttl, log: ev}
}

// Close closes the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// BlockByNumber implements the state.BlockCache interface.
func (c *Cache) BlockByNumber(ctx context.Context, number uint64) (database.BlockData, bool) {
	return c.get(ctx, numberKey(number))
}

// BlockByHash implements the state.BlockCache interface.
func (c *Cache) BlockByHash(ctx context.Context, hash string) (database.BlockData, bool) {
	return c.get(ctx, hashKey(hash))
}

// StoreBlock implements the state.BlockCache interface. The block is
// stored under both its number and its hash.
func (c *Cache) StoreBlock(ctx context.Context, bd database.BlockData) {
	payload, err := json.Marshal(bd)
	if err != nil {
		c.log("cache: StoreBlock: ERROR: blk[%d]: %s", bd.Header.Number, err)
		return
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, numberKey(bd.Header.Number), payload, c.ttl)
	pipe.Set(ctx, hashKey(bd.Hash), payload, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		c.log("cache: StoreBlock: ERROR: blk[%d]: %s", bd.Header.Number, err)
	}
}

// =============================================================================

func (c *Cache) get(ctx context.Context, key string) (database.BlockData, bool) {
	cached, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log("cache: get: ERROR: key[%s]: %s", key, err)
		}
		return database.BlockData{}, false
	}

	var bd database.BlockData
	if err := json.Unmarshal(cached, &bd); err != nil {
		c.log("cache: get: ERROR: key[%s]: %s", key, err)
		return database.BlockData{}, false
	}

	return bd, true
}

func numberKey(number uint64) string {
	return blockNumberKeyPrefix + strconv.FormatUint(number, 10)
}

func hashKey(hash string) string {
	return blockHashKeyPrefix + strings.ToLower(hash)
}
