package event

import (
	"encoding/json"
	"fmt"
	"time"

	"wealthledger/internal/model"
	"wealthledger/pkg/idgen"

	"github.com/shopspring/decimal"
)

// 事件类型，和业务数据在同一个事务里写入 outbox_message
const (
	TypeRechargeApproved   = "recharge_approved"
	TypeRechargeRefused    = "recharge_refused"
	TypeWithdrawalApproved = "withdrawal_approved"
	TypeWithdrawalRejected = "withdrawal_rejected"
	TypeProductSettled     = "product_settled"
)

// Topics 事件投递的主题，由配置注入
type Topics struct {
	Fund    string
	Product string
}

// FundEvent 充值、提现审核结果
type FundEvent struct {
	EntryID    int64            `json:"entry_id"`
	FlowNo     string           `json:"flow_no"`
	UserID     int64            `json:"user_id"`
	Amount     decimal.Decimal  `json:"amount"`
	FundType   model.FundType   `json:"fund_type"`
	Status     model.FlowStatus `json:"status"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ProductSettledEvent 产品到期结算
type ProductSettledEvent struct {
	ProductID    int64              `json:"product_id"`
	ProductNo    string             `json:"product_no"`
	UserID       int64              `json:"user_id"`
	Principal    decimal.Decimal    `json:"principal"`
	FinalAmount  decimal.Decimal    `json:"final_amount"`
	IncomeStatus model.IncomeStatus `json:"income_status"`
	SettledAt    time.Time          `json:"settled_at"`
}

// NewOutboxMessage 把事件序列化成一条待发送的本地消息
func NewOutboxMessage(topic, eventType string, payload interface{}) (*model.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件 %s 失败: %w", eventType, err)
	}
	return &model.OutboxMessage{
		MessageKey: idgen.GenerateMessageKey(),
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}, nil
}

// NewFundEvent 从流水构造审核结果事件
func NewFundEvent(entry *model.LedgerEntry, now time.Time) FundEvent {
	return FundEvent{
		EntryID:    entry.ID,
		FlowNo:     entry.FlowNo,
		UserID:     entry.UserID,
		Amount:     entry.Amount,
		FundType:   entry.FundType,
		Status:     entry.Status,
		OccurredAt: now,
	}
}
