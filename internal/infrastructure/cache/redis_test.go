package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBalanceCacheSetGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisBalanceCache(client, time.Minute)
	ctx := context.Background()

	mock.ExpectSet("ledger:balance:9", "12.50", time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, 9, decimal.RequireFromString("12.5")))

	mock.ExpectGet("ledger:balance:9").SetVal("12.50")
	balance, ok, err := c.Get(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("12.5").Equal(balance))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBalanceCacheSetIfAbsent(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisBalanceCache(client, time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("ledger:balance:3", "0.00", time.Minute).SetVal(true)
	require.NoError(t, c.SetIfAbsent(ctx, 3, decimal.Zero))

	// 已有值时不覆盖，也不算错误
	mock.ExpectSetNX("ledger:balance:3", "5.00", time.Minute).SetVal(false)
	require.NoError(t, c.SetIfAbsent(ctx, 3, decimal.NewFromInt(5)))

	mock.ExpectSetNX("ledger:balance:4", "1.00", time.Minute).SetErr(errors.New("timeout"))
	assert.Error(t, c.SetIfAbsent(ctx, 4, decimal.NewFromInt(1)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBalanceCacheMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisBalanceCache(client, time.Minute)

	mock.ExpectGet("ledger:balance:1").RedisNil()
	_, ok, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBalanceCacheErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisBalanceCache(client, time.Minute)
	ctx := context.Background()

	mock.ExpectGet("ledger:balance:1").SetErr(errors.New("timeout"))
	_, ok, err := c.Get(ctx, 1)
	assert.Error(t, err)
	assert.False(t, ok)

	mock.ExpectGet("ledger:balance:2").SetVal("not-a-number")
	_, ok, err = c.Get(ctx, 2)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNopBalanceCache(t *testing.T) {
	var c BalanceCache = NopBalanceCache{}
	require.NoError(t, c.Set(context.Background(), 1, decimal.NewFromInt(1)))
	require.NoError(t, c.SetIfAbsent(context.Background(), 1, decimal.NewFromInt(1)))
	_, ok, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
