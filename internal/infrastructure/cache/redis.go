package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wealthledger/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// BalanceCache 用户现金余额的读缓存
//
// 余额以账本为准。写路径在用户锁内提交后用 Set 覆盖；
// 读路径回源后只能用 SetIfAbsent 回填，不会覆盖写路径已经写入的新值。
type BalanceCache interface {
	Set(ctx context.Context, userID int64, balance decimal.Decimal) error
	SetIfAbsent(ctx context.Context, userID int64, balance decimal.Decimal) error
	Get(ctx context.Context, userID int64) (decimal.Decimal, bool, error)
}

type RedisBalanceCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisBalanceCache(client redis.Cmdable, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

func BalanceKey(userID int64) string {
	return fmt.Sprintf("ledger:balance:%d", userID)
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID int64, balance decimal.Decimal) error {
	return c.client.Set(ctx, BalanceKey(userID), balance.StringFixed(2), c.ttl).Err()
}

func (c *RedisBalanceCache) SetIfAbsent(ctx context.Context, userID int64, balance decimal.Decimal) error {
	return c.client.SetNX(ctx, BalanceKey(userID), balance.StringFixed(2), c.ttl).Err()
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID int64) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, BalanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("缓存余额格式错误 %q: %w", val, err)
	}
	return balance, true, nil
}

// NopBalanceCache 不启用缓存时使用
type NopBalanceCache struct{}

func (NopBalanceCache) Set(context.Context, int64, decimal.Decimal) error { return nil }

func (NopBalanceCache) SetIfAbsent(context.Context, int64, decimal.Decimal) error { return nil }

func (NopBalanceCache) Get(context.Context, int64) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
