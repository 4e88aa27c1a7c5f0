// Package rediscache keeps the leaderboard listing in Redis between writes.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
)

const (
	keyGeneration = "leaderboard:gen"
	keySnapshot   = "leaderboard:accounts:" // + generation
)

// LeaderboardCache stores the account listing under a key derived from a generation counter.
// Invalidate bumps the counter, so a snapshot loaded before an invalidation is never read after it,
// even if it is written late.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ account.LeaderboardCache = (*LeaderboardCache)(nil) // interface compliance check

func NewClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration, logger core.Logger) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl, logger: logger}
}

func (c *LeaderboardCache) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, keyGeneration).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

// GetOrLoad serves the cached listing or loads (and caches) a fresh one.
// Redis failures are logged and fall back to load.
func (c *LeaderboardCache) GetOrLoad(
	ctx context.Context,
	load func(context.Context) ([]account.Account, error),
) ([]account.Account, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("leaderboard cache: reading generation", err)
		return load(ctx)
	}
	key := keySnapshot + gen

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var accounts []account.Account
		if err = json.Unmarshal(data, &accounts); err == nil {
			return accounts, nil
		}
		c.logger.Warn("leaderboard cache: decoding snapshot", errors.Wrap(err, key))
	case err != redis.Nil:
		c.logger.Warn("leaderboard cache: reading snapshot", errors.Wrap(err, key))
	}

	accounts, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if data, err = json.Marshal(accounts); err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("leaderboard cache: writing snapshot", errors.Wrap(err, key))
	}
	return accounts, nil
}

func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.client.Incr(ctx, keyGeneration).Err(), "bumping leaderboard generation")
}
