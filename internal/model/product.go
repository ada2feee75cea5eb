package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive    ProductStatus = "ACTIVE"    // 持有中
	ProductStatusCompleted ProductStatus = "COMPLETED" // 已结算
)

// IncomeStatus 产品到期的收益方向
type IncomeStatus string

const (
	IncomeStatusProfit IncomeStatus = "PROFIT"
	IncomeStatusLoss   IncomeStatus = "LOSS"
)

// FinalAmount 计算到期结算金额
//
//	PROFIT: 本金 + 本金 * 利率
//	LOSS:   本金 - 本金 * 利率
func (s IncomeStatus) FinalAmount(principal, rate decimal.Decimal) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, fmt.Errorf("本金不能为负数: %s", principal)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("利率不能为负数: %s", rate)
	}

	delta := principal.Mul(rate)
	switch s {
	case IncomeStatusProfit:
		return principal.Add(delta).Round(2), nil
	case IncomeStatusLoss:
		return principal.Sub(delta).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("未知收益状态: %q", string(s))
	}
}

// ProductHolding 用户持有产品表
// maturity_time 即持久化的结算触发时间，进程重启后据此重新调度
type ProductHolding struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductNo    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"product_no"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	ProductName  string          `gorm:"type:varchar(128);not null" json:"product_name"`
	Principal    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"principal"`
	Rate         decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"rate"`
	MaturityTime time.Time       `gorm:"not null;index" json:"maturity_time"`
	Status       ProductStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	IncomeStatus IncomeStatus    `gorm:"type:varchar(20);not null" json:"income_status"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProductHolding) TableName() string {
	return "product_holding"
}

// ============================================================================
// 结算回款
// ============================================================================

type CreditStatus string

const (
	CreditStatusPending CreditStatus = "PENDING"
	CreditStatusDone    CreditStatus = "DONE"
	CreditStatusFailed  CreditStatus = "FAILED"
)

// SettlementCredit 产品结算后待入账的回款
//
// 产品状态翻转和这条记录在同一个事务里写入，之后由异步队列入账。
// 入账失败时记录保持 PENDING，由重试任务继续处理，保证每个产品恰好回款一次。
type SettlementCredit struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  int64           `gorm:"uniqueIndex;not null" json:"product_id"`
	UserID     int64           `gorm:"index;not null" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status     CreditStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	RetryCount int             `gorm:"not null;default:0" json:"retry_count"`
	LastError  string          `gorm:"type:varchar(512)" json:"last_error,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SettlementCredit) TableName() string {
	return "settlement_credit"
}

// SettlementBusinessID 结算回款流水的业务ID，用于入账幂等
func SettlementBusinessID(productID int64) string {
	return fmt.Sprintf("settle:%d", productID)
}
