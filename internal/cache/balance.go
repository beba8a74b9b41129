// Package cache keeps display copies of wallet balances in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/models"
)

const keyPrefix = "gamevault:wallet:"

// BalanceCache is a read-through cache for wallet display reads. It never
// feeds a balance check; a miss or a Redis error just falls back to the store.
type BalanceCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
	log *zap.Logger
}

func NewBalanceCache(rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *BalanceCache {
	return &BalanceCache{rdb: rdb, ttl: ttl, log: log.Named("cache")}
}

func redisKey(k models.WalletKey) string {
	return keyPrefix + k.UserID + ":" + k.Currency
}

// setIfNewer writes the wallet only when the cached copy is older, so a slow
// display read can never overwrite a balance written after a commit.
var setIfNewer = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v'))
local version = tonumber(ARGV[1])
if cur and cur >= version then
  return 0
end
redis.call('HSET', KEYS[1], 'v', version, 'w', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

func (c *BalanceCache) Get(ctx context.Context, key models.WalletKey) (*models.Wallet, bool) {
	raw, err := c.rdb.HGet(ctx, redisKey(key), "w").Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", zap.String("wallet", key.String()), zap.Error(err))
		}
		return nil, false
	}
	var w models.Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("wallet", key.String()), zap.Error(err))
		return nil, false
	}
	return &w, true
}

// Set stores w unless the cache already holds the same or a later version.
func (c *BalanceCache) Set(ctx context.Context, w models.Wallet) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	err = setIfNewer.Run(ctx, c.rdb, []string{redisKey(w.Key())}, w.Version, raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.log.Warn("cache set failed", zap.String("wallet", w.Key().String()), zap.Error(err))
	}
}
