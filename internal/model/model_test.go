package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIncomeStatusFinalAmount(t *testing.T) {
	tests := []struct {
		name      string
		status    IncomeStatus
		principal string
		rate      string
		want      string
	}{
		{"profit", IncomeStatusProfit, "1000", "0.10", "1100"},
		{"loss", IncomeStatusLoss, "1000", "0.10", "900"},
		{"zero rate", IncomeStatusProfit, "500.55", "0", "500.55"},
		{"rounded to cents", IncomeStatusProfit, "100", "0.0333", "103.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.status.FinalAmount(d(tt.principal), d(tt.rate))
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestIncomeStatusFinalAmountRejectsBadInput(t *testing.T) {
	_, err := IncomeStatus("BREAK_EVEN").FinalAmount(d("1"), d("0.1"))
	assert.Error(t, err)

	_, err = IncomeStatusProfit.FinalAmount(d("-1"), d("0.1"))
	assert.Error(t, err)

	_, err = IncomeStatusLoss.FinalAmount(d("1"), d("-0.1"))
	assert.Error(t, err)
}

func TestDailyRateAndEarnings(t *testing.T) {
	daily := DailyRate(d("36.5"))
	assert.True(t, d("0.10").Equal(daily), "got %s", daily)

	earnings := DailyEarnings(d("1000"), daily)
	assert.True(t, d("1.00").Equal(earnings), "got %s", earnings)

	// 2% 年化折算到日收益率四舍五入后为 0.01
	assert.True(t, d("0.01").Equal(DailyRate(d("2"))))
	// 1% 年化折算后为 0，任务应终止
	assert.True(t, DailyRate(d("1")).IsZero())
	// 本金过小时收益为 0
	assert.True(t, DailyEarnings(d("10"), d("0.01")).IsZero())
}

func TestFundTypeInitialState(t *testing.T) {
	status, eff, err := FundTypeRecharge.InitialState()
	require.NoError(t, err)
	assert.Equal(t, FlowStatusProcessing, status)
	assert.Equal(t, EffectivePending, eff)

	status, eff, err = FundTypeWithdraw.InitialState()
	require.NoError(t, err)
	assert.Equal(t, FlowStatusProcessing, status)
	assert.Equal(t, EffectiveActive, eff)

	for _, ft := range []FundType{FundTypeWithdrawRefund, FundTypeIncome, FundTypeExpense, FundTypeManualAdjust} {
		status, eff, err = ft.InitialState()
		require.NoError(t, err)
		assert.Equal(t, FlowStatusSuccess, status, ft)
		assert.Equal(t, EffectiveActive, eff, ft)
	}

	_, _, err = FundType("BONUS").InitialState()
	assert.Error(t, err)
}

func TestFundTypeCheckSign(t *testing.T) {
	assert.NoError(t, FundTypeIncome.CheckSign(d("1")))
	assert.Error(t, FundTypeIncome.CheckSign(d("-1")))
	assert.NoError(t, FundTypeExpense.CheckSign(d("-1")))
	assert.Error(t, FundTypeWithdraw.CheckSign(d("1")))
	assert.NoError(t, FundTypeManualAdjust.CheckSign(d("-5")))
	assert.Error(t, FundTypeManualAdjust.CheckSign(decimal.Zero))
	assert.Error(t, FundType("X").CheckSign(d("1")))
}

func TestLedgerEntryBalanceAndSeq(t *testing.T) {
	var nilEntry *LedgerEntry
	assert.True(t, nilEntry.Balance().IsZero())
	assert.Equal(t, int64(1), nilEntry.NextSeq())

	seq := int64(4)
	e := &LedgerEntry{Seq: &seq, BalanceAfter: decimal.NewNullDecimal(d("12.50"))}
	assert.True(t, d("12.5").Equal(e.Balance()))
	assert.Equal(t, int64(5), e.NextSeq())

	pending := &LedgerEntry{}
	assert.True(t, pending.Balance().IsZero())
}
