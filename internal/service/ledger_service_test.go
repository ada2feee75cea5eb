package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wealthledger/internal/infrastructure/lock"
	"wealthledger/internal/model"
	"wealthledger/internal/repository/memory"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordFlowCreditThenOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entry, err := env.ledger.RecordFlow(ctx, FlowRequest{
		UserID:   1,
		Amount:   dec("100"),
		FundType: model.FundTypeIncome,
	})
	require.NoError(t, err)
	assert.Equal(t, model.EffectiveActive, entry.Effective)
	assert.Equal(t, model.FlowStatusSuccess, entry.Status)
	require.NotNil(t, entry.Seq)
	assert.Equal(t, int64(1), *entry.Seq)
	assertDecimal(t, "100", env.balance(t, 1))

	_, err = env.ledger.RecordFlow(ctx, FlowRequest{
		UserID:   1,
		Amount:   dec("-150"),
		FundType: model.FundTypeExpense,
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assertDecimal(t, "100", env.balance(t, 1))

	_, total, err := env.ledger.ListFlows(ctx, 1, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "余额不足时不应写入流水")
	assertLedgerConsistent(t, env.store, 1)
}

func TestRecordFlowValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  FlowRequest
	}{
		{"invalid user", FlowRequest{UserID: 0, Amount: dec("1"), FundType: model.FundTypeIncome}},
		{"three decimals", FlowRequest{UserID: 1, Amount: dec("1.001"), FundType: model.FundTypeIncome}},
		{"negative income", FlowRequest{UserID: 1, Amount: dec("-1"), FundType: model.FundTypeIncome}},
		{"positive expense", FlowRequest{UserID: 1, Amount: dec("1"), FundType: model.FundTypeExpense}},
		{"zero adjust", FlowRequest{UserID: 1, Amount: decimal.Zero, FundType: model.FundTypeManualAdjust}},
		{"unknown type", FlowRequest{UserID: 1, Amount: dec("1"), FundType: "BONUS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.RecordFlow(ctx, tt.req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestRecordFlowRecharge(t *testing.T) {
	env := newTestEnv(t)

	entry, err := env.ledger.RecordFlow(context.Background(), FlowRequest{
		UserID:   1,
		Amount:   dec("50"),
		FundType: model.FundTypeRecharge,
	})
	require.NoError(t, err)
	assert.Equal(t, model.EffectivePending, entry.Effective)
	assert.Nil(t, entry.Seq)
	assert.False(t, entry.BalanceAfter.Valid)
	assertDecimal(t, "0", env.balance(t, 1))
}

func TestRecordFlowConcurrentDebits(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 1, "100")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.RecordFlow(context.Background(), FlowRequest{
				UserID:   1,
				Amount:   dec("-10"),
				FundType: model.FundTypeExpense,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assertDecimal(t, "0", env.balance(t, 1))
	assertLedgerConsistent(t, env.store, 1)
}

func TestRecordFlowUsersAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for userID := int64(1); userID <= 5; userID++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				_, err := env.ledger.RecordFlow(context.Background(), FlowRequest{
					UserID:   userID,
					Amount:   dec("1.50"),
					FundType: model.FundTypeIncome,
				})
				assert.NoError(t, err)
			}(userID)
		}
	}
	wg.Wait()

	for userID := int64(1); userID <= 5; userID++ {
		assertDecimal(t, "15", env.balance(t, userID))
		assertLedgerConsistent(t, env.store, userID)
	}
}

func TestRecordFlowStorageFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 1, "100")

	env.store.SetFault("ledger.Create", errors.New("disk full"))
	_, err := env.ledger.RecordFlow(context.Background(), FlowRequest{
		UserID:   1,
		Amount:   dec("-30"),
		FundType: model.FundTypeExpense,
	})
	env.store.ClearFault("ledger.Create")

	assert.ErrorIs(t, err, apperr.ErrSystem)
	assertDecimal(t, "100", env.balance(t, 1))
}

func TestAdjustBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.AdjustBalance(ctx, 1, dec("10"), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	env.deposit(t, 1, "10")
	entry, err := env.ledger.AdjustBalance(ctx, 1, dec("-4.5"), "冲正")
	require.NoError(t, err)
	assert.Equal(t, model.FundTypeManualAdjust, entry.FundType)
	assertDecimal(t, "5.5", env.balance(t, 1))

	_, err = env.ledger.AdjustBalance(ctx, 1, dec("-6"), "冲正")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
}

func TestListFlowsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.deposit(t, 1, "1")
	}

	flows, total, err := env.ledger.ListFlows(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, flows, 2)
	assert.Greater(t, flows[0].ID, flows[1].ID)
	assertDecimal(t, "5", flows[0].Balance())
}

type recordingCache struct {
	mu   sync.Mutex
	vals map[int64]decimal.Decimal
}

func (c *recordingCache) Set(_ context.Context, userID int64, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[userID] = balance
	return nil
}

func (c *recordingCache) SetIfAbsent(_ context.Context, userID int64, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.vals[userID]; !ok {
		c.vals[userID] = balance
	}
	return nil
}

func (c *recordingCache) Get(_ context.Context, userID int64) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[userID]
	return v, ok, nil
}

func TestBalanceCacheRefreshedAfterCommit(t *testing.T) {
	store := memory.New()
	c := &recordingCache{vals: make(map[int64]decimal.Decimal)}
	ledger := NewLedgerService(store, lock.NewKeyedLocker(), c, zap.NewNop())
	ctx := context.Background()

	_, err := ledger.RecordFlow(ctx, FlowRequest{UserID: 7, Amount: dec("20"), FundType: model.FundTypeIncome})
	require.NoError(t, err)
	assertDecimal(t, "20", c.vals[7])

	// 失败的写入不刷新缓存
	_, err = ledger.RecordFlow(ctx, FlowRequest{UserID: 7, Amount: dec("-30"), FundType: model.FundTypeExpense})
	require.Error(t, err)
	assertDecimal(t, "20", c.vals[7])

	// 缓存命中时不回源
	c.vals[7] = dec("99")
	balance, err := ledger.GetBalance(ctx, 7)
	require.NoError(t, err)
	assertDecimal(t, "99", balance)
}

// stallingCache 在读路径回填时暂停，直到测试放行
type stallingCache struct {
	recordingCache
	filling chan struct{}
	release chan struct{}
}

func (c *stallingCache) SetIfAbsent(ctx context.Context, userID int64, balance decimal.Decimal) error {
	close(c.filling)
	<-c.release
	return c.recordingCache.SetIfAbsent(ctx, userID, balance)
}

func TestGetBalanceFillDoesNotOverwriteConcurrentWrite(t *testing.T) {
	store := memory.New()
	c := &stallingCache{
		recordingCache: recordingCache{vals: make(map[int64]decimal.Decimal)},
		filling:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	ledger := NewLedgerService(store, lock.NewKeyedLocker(), c, zap.NewNop())
	ctx := context.Background()

	type result struct {
		balance decimal.Decimal
		err     error
	}
	done := make(chan result, 1)
	go func() {
		b, err := ledger.GetBalance(ctx, 5)
		done <- result{b, err}
	}()

	// 读路径已经读到旧余额 0，正在回填
	<-c.filling
	_, err := ledger.RecordFlow(ctx, FlowRequest{UserID: 5, Amount: dec("100"), FundType: model.FundTypeIncome})
	require.NoError(t, err)
	close(c.release)

	r := <-done
	require.NoError(t, r.err)
	assertDecimal(t, "0", r.balance)

	balance, err := ledger.GetBalance(ctx, 5)
	require.NoError(t, err)
	assertDecimal(t, "100", balance)
}
