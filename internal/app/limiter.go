// Package app holds shared wiring helpers used by the command entrypoints.
package app

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewAPILimiter builds a Redis-backed request limiter allowing rps requests
// per client per second.
func NewAPILimiter(rdb *redis.Client, rps int) (*limiter.Limiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "sokoni:limiter",
	})
	if err != nil {
		return nil, err
	}
	if rps <= 0 {
		rps = 20
	}
	rate := limiter.Rate{Period: time.Second, Limit: int64(rps)}
	return limiter.New(store, rate), nil
}
