package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// RedisRateWindow keeps one sorted set of error timestamps per endpoint so every
// instance behind a load balancer sees the same window.
type RedisRateWindow struct {
	client *redis.Client
	prefix string
}

func NewRedisRateWindow(client *redis.Client, prefix string) *RedisRateWindow {
	if prefix == "" {
		prefix = "ledgerlog:errwin"
	}
	return &RedisRateWindow{client: client, prefix: prefix}
}

func (w *RedisRateWindow) key(endpoint string) string {
	return fmt.Sprintf("%s:%s", w.prefix, endpoint)
}

// Record adds one error at now, drops entries older than window and returns what is left.
func (w *RedisRateWindow) Record(ctx context.Context, endpoint string, now time.Time, window time.Duration) (int, error) {
	key := w.key(endpoint)
	score := float64(now.UnixMilli())
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := w.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}
