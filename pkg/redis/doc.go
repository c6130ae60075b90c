// Package redis opens the optional go-redis client used for job counters
// and cached payment-token verdicts.
//
//	REDIS_URL            - redis:// or rediss:// URL; empty disables Redis
//	REDIS_POOL_SIZE      - maximum connections (default: 5)
//	REDIS_RETRY_ATTEMPTS - connection attempts at startup (default: 3)
//	REDIS_RETRY_INTERVAL - base retry interval (default: 2s)
//
// Usage:
//
//	if cfg.Redis.Enabled() {
//		rdb, err := redis.Open(ctx, cfg.Redis, log)
//		if err != nil {
//			return err
//		}
//		defer rdb.Close()
//	}
package redis
