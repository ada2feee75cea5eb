package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type HoldingStatus string

const (
	HoldingStatusHolding  HoldingStatus = "HOLDING"
	HoldingStatusRedeemed HoldingStatus = "REDEEMED"
)

// FinancialHolding 用户理财持仓，与现金余额分开记账
// 同一用户允许存在多条历史记录，以 id 最大的一条为准
type FinancialHolding struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Principal decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"principal"`
	Status    HoldingStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FinancialHolding) TableName() string {
	return "financial_holding"
}

type StatementType string

const (
	StatementTypeTransferIn  StatementType = "TRANSFER_IN"
	StatementTypeTransferOut StatementType = "TRANSFER_OUT"
	StatementTypeIncome      StatementType = "INCOME"
)

// FinancialStatement 理财流水，记录转入、转出和每日收益
type FinancialStatement struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	HoldingID int64           `gorm:"not null;index:idx_statement_holding,priority:1" json:"holding_id"`
	Type      StatementType   `gorm:"type:varchar(20);not null;index:idx_statement_holding,priority:2" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BizDate   string          `gorm:"type:varchar(10);not null;index:idx_statement_holding,priority:3" json:"biz_date"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (FinancialStatement) TableName() string {
	return "financial_statement"
}

const BizDateLayout = "2006-01-02"

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// DailyRate 年化收益率（百分数）折算为日收益率（百分数），四舍五入保留两位
// 例如 36.5 -> 0.10
func DailyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.DivRound(daysPerYear, 10).Round(2)
}

// DailyEarnings 按日收益率（百分数）计算当日收益，四舍五入保留两位
// 例如 本金 1000、日收益率 0.10 -> 1.00
func DailyEarnings(principal, dailyRatePercent decimal.Decimal) decimal.Decimal {
	return principal.Mul(dailyRatePercent).Div(hundred).Round(2)
}
