package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 资金类型
// ============================================================================

type FundType string

const (
	FundTypeRecharge       FundType = "RECHARGE"        // 充值（需审核）
	FundTypeWithdraw       FundType = "WITHDRAW"        // 提现（申请即扣款）
	FundTypeWithdrawRefund FundType = "WITHDRAW_REFUND" // 提现拒绝返还
	FundTypeIncome         FundType = "INCOME"          // 收入（结算回款、理财转出）
	FundTypeExpense        FundType = "EXPENSE"         // 支出（购买产品、转入理财）
	FundTypeManualAdjust   FundType = "MANUAL_ADJUST"   // 人工调账
)

// ============================================================================
// 流水状态
// ============================================================================

type FlowStatus string

const (
	FlowStatusSuccess    FlowStatus = "SUCCESS"
	FlowStatusProcessing FlowStatus = "PROCESSING"
	FlowStatusFailed     FlowStatus = "FAILED"
)

// Effective 标记流水是否计入余额，只有 ACTIVE 的流水参与余额推导
type Effective string

const (
	EffectivePending Effective = "PENDING" // 待审核，不影响余额
	EffectiveActive  Effective = "ACTIVE"  // 已生效
	EffectiveRefused Effective = "REFUSED" // 审核拒绝
)

// InitialState 返回该类型流水写入时的状态和生效标记
func (t FundType) InitialState() (FlowStatus, Effective, error) {
	switch t {
	case FundTypeRecharge:
		return FlowStatusProcessing, EffectivePending, nil
	case FundTypeWithdraw:
		return FlowStatusProcessing, EffectiveActive, nil
	case FundTypeWithdrawRefund, FundTypeIncome, FundTypeExpense, FundTypeManualAdjust:
		return FlowStatusSuccess, EffectiveActive, nil
	default:
		return "", "", fmt.Errorf("未知资金类型: %q", string(t))
	}
}

// CheckSign 校验金额方向与资金类型是否匹配
func (t FundType) CheckSign(amount decimal.Decimal) error {
	switch t {
	case FundTypeRecharge, FundTypeWithdrawRefund, FundTypeIncome:
		if !amount.IsPositive() {
			return fmt.Errorf("%s 金额必须为正数", t)
		}
	case FundTypeWithdraw, FundTypeExpense:
		if !amount.IsNegative() {
			return fmt.Errorf("%s 金额必须为负数", t)
		}
	case FundTypeManualAdjust:
		if amount.IsZero() {
			return fmt.Errorf("%s 金额不能为0", t)
		}
	default:
		return fmt.Errorf("未知资金类型: %q", string(t))
	}
	return nil
}

// ============================================================================
// 资金流水（账本）
// ============================================================================

// LedgerEntry 用户资金流水表
//
// 只追加不删除：金额写入后不再变化，只有 status / effective 会流转，
// 充值审核通过时补写 balance_after 和 seq。
//
// seq 是用户维度的生效序号，(user_id, seq) 唯一。余额等于 seq 最大的那条
// ACTIVE 流水的 balance_after；两个并发写入者算出同一个 seq 时数据库会拒绝后者。
type LedgerEntry struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	FlowNo       string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"flow_no"`
	UserID       int64               `gorm:"not null;index:idx_ledger_user_type,priority:1;uniqueIndex:uk_ledger_user_seq,priority:1" json:"user_id"`
	Seq          *int64              `gorm:"uniqueIndex:uk_ledger_user_seq,priority:2" json:"seq,omitempty"`
	Amount       decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceAfter decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"balance_after"`
	FundType     FundType            `gorm:"type:varchar(32);not null;index:idx_ledger_user_type,priority:2" json:"fund_type"`
	Status       FlowStatus          `gorm:"type:varchar(20);not null" json:"status"`
	Effective    Effective           `gorm:"type:varchar(20);not null;index" json:"effective"`
	Description  string              `gorm:"type:varchar(256)" json:"description"`
	BusinessID   string              `gorm:"type:varchar(64);index" json:"business_id,omitempty"`
	CreatedAt    time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// Balance 返回该流水生效后的余额，未生效的流水返回 0
func (e *LedgerEntry) Balance() decimal.Decimal {
	if e == nil || !e.BalanceAfter.Valid {
		return decimal.Zero
	}
	return e.BalanceAfter.Decimal
}

// NextSeq 返回下一条生效流水的序号
func (e *LedgerEntry) NextSeq() int64 {
	if e == nil || e.Seq == nil {
		return 1
	}
	return *e.Seq + 1
}

// LedgerFilter 流水查询条件，零值字段不参与过滤
type LedgerFilter struct {
	UserID    int64
	FundType  FundType
	Status    FlowStatus
	Effective Effective
	Limit     int
}
