package service

import (
	"context"
	"sort"
	"testing"

	"wealthledger/internal/event"
	"wealthledger/internal/infrastructure/lock"
	"wealthledger/internal/infrastructure/worker"
	"wealthledger/internal/model"
	"wealthledger/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTopics = event.Topics{Fund: "fund_test", Product: "product_test"}

type testEnv struct {
	store      *memory.Store
	ledger     *LedgerService
	recharge   *RechargeService
	withdrawal *WithdrawalService
	financial  *FinancialService
	product    *ProductService
	settlement *SettlementService
	user       *UserService
	pool       *worker.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	ledger := NewLedgerService(store, lock.NewKeyedLocker(), nil, log)
	pool := worker.NewPool(2, 64, log)
	t.Cleanup(pool.Stop)

	return &testEnv{
		store:      store,
		ledger:     ledger,
		recharge:   NewRechargeService(store, ledger, testTopics, log),
		withdrawal: NewWithdrawalService(store, ledger, testTopics, log),
		financial:  NewFinancialService(store, ledger, log),
		product:    NewProductService(store, ledger, nil, log),
		settlement: NewSettlementService(store, ledger, pool, testTopics, 3, log),
		user:       NewUserService(store, log),
		pool:       pool,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// deposit 通过人工调账给用户入金
func (e *testEnv) deposit(t *testing.T, userID int64, amount string) {
	t.Helper()
	_, err := e.ledger.AdjustBalance(context.Background(), userID, dec(amount), "测试入金")
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s", want, got)
}

// assertLedgerConsistent 生效流水按序号连续，balance_after 等于前缀和且不为负
func assertLedgerConsistent(t *testing.T, store *memory.Store, userID int64) {
	t.Helper()
	entries, err := store.Ledger().Find(context.Background(), model.LedgerFilter{
		UserID:    userID,
		Effective: model.EffectiveActive,
	})
	require.NoError(t, err)

	sort.Slice(entries, func(i, j int) bool { return *entries[i].Seq < *entries[j].Seq })
	sum := decimal.Zero
	for i, e := range entries {
		require.NotNil(t, e.Seq)
		assert.Equal(t, int64(i+1), *e.Seq, "流水 %d 序号不连续", e.ID)
		sum = sum.Add(e.Amount)
		require.True(t, e.BalanceAfter.Valid)
		assert.True(t, sum.Equal(e.BalanceAfter.Decimal), "seq %d: 前缀和 %s, balance_after %s", *e.Seq, sum, e.BalanceAfter.Decimal)
		assert.False(t, e.BalanceAfter.Decimal.IsNegative())
	}
}
