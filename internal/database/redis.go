package database

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
	"github.com/sing3demons/weather/kp/pkg/mlog"
	"github.com/sing3demons/weather/kp/pkg/query"
)

// maxLoggedValue caps how much of a cached payload lands in detail logs.
const maxLoggedValue = 512

// IRedisClient is the cache surface the report pipeline uses. A Get miss
// returns ErrNotFound rather than a driver sentinel.
type IRedisClient interface {
	Close() error
	Ping() error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type redisCache struct {
	rdb *redis.Client
}

func NewRedisConfig(cfg *config.RedisConfig) (IRedisClient, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis address is not configured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Printf("redis connected on %s", cfg.Addr)

	return &redisCache{rdb: rdb}, nil
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}

func (c *redisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	lg := mlog.L(ctx)
	lg.SetDependencyMetadata(logger.DependencyMetadata{Dependency: "redis"}).
		Debug(logAction.DB_REQUEST(logAction.DB_READ, "redis GET"), map[string]any{"key": key})

	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()

	flag := "SUCCESS"
	result := map[string]any{"data": query.TruncateQuery(val, maxLoggedValue)}
	switch {
	case err == redis.Nil:
		flag, result, err = "MISS", map[string]any{"data": nil}, ErrNotFound
	case err != nil:
		flag, result = "ERROR", map[string]any{"error": err.Error()}
	}
	c.logOutcome(lg, logAction.DB_READ, "redis GET", start, flag, result)

	return val, err
}

func (c *redisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	lg := mlog.L(ctx)
	logged := value
	if s, ok := value.(string); ok {
		logged = query.TruncateQuery(s, maxLoggedValue)
	}
	lg.SetDependencyMetadata(logger.DependencyMetadata{Dependency: "redis"}).
		Debug(logAction.DB_REQUEST(logAction.DB_CREATE, "redis SET"), map[string]any{
			"key":        key,
			"value":      logged,
			"expiration": expiration.String(),
		})

	start := time.Now()
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	c.logOutcome(lg, logAction.DB_CREATE, "redis SET", start, okFlag(err), okResult(err))

	return err
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	lg := mlog.L(ctx)
	lg.SetDependencyMetadata(logger.DependencyMetadata{Dependency: "redis"}).
		Debug(logAction.DB_REQUEST(logAction.DB_DELETE, "redis DEL"), map[string]any{"keys": keys})

	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.logOutcome(lg, logAction.DB_DELETE, "redis DEL", start, okFlag(err), okResult(err))

	return err
}

func (c *redisCache) logOutcome(lg logger.ILogger, sub, op string, start time.Time, flag string, result map[string]any) {
	lg.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "redis",
		ResponseTime: time.Since(start).Milliseconds(),
		ResultFlag:   flag,
	}).Debug(logAction.DB_RESPONSE(sub, op), result)
}

func okFlag(err error) string {
	if err != nil {
		return "ERROR"
	}
	return "SUCCESS"
}

func okResult(err error) map[string]any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"data": "OK"}
}
