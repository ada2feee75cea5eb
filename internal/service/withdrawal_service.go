package service

import (
	"context"
	"fmt"
	"time"

	"wealthledger/internal/event"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawalService 提现审核流程
//
// 申请时立即扣款（ACTIVE / PROCESSING），审核通过只改状态；
// 审核拒绝时状态改为 FAILED，并写一条 WITHDRAW_REFUND 把钱退回。
type WithdrawalService struct {
	store  repository.Store
	ledger *LedgerService
	topics event.Topics
	log    *zap.Logger
	now    func() time.Time
}

func NewWithdrawalService(store repository.Store, ledger *LedgerService, topics event.Topics, log *zap.Logger) *WithdrawalService {
	return &WithdrawalService{
		store:  store,
		ledger: ledger,
		topics: topics,
		log:    log.Named("WithdrawalService"),
		now:    time.Now,
	}
}

type WithdrawalRequest struct {
	UserID      int64           `json:"-"`
	Amount      decimal.Decimal `json:"amount"` // 提现金额，正数
	Description string          `json:"description"`
}

// RefundBusinessID 提现退回流水的业务ID
func RefundBusinessID(entryID int64) string {
	return fmt.Sprintf("withdraw:%d", entryID)
}

// Request 提交提现申请，余额不足时不写任何记录
func (s *WithdrawalService) Request(ctx context.Context, req *WithdrawalRequest) (*model.LedgerEntry, error) {
	if err := checkPositive(req.Amount); err != nil {
		return nil, err
	}
	desc := req.Description
	if desc == "" {
		desc = "提现"
	}

	var entry *model.LedgerEntry
	err := s.ledger.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		if _, err := ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		var err error
		entry, err = recordFlow(ctx, tx, FlowRequest{
			UserID:      req.UserID,
			Amount:      req.Amount.Neg(),
			FundType:    model.FundTypeWithdraw,
			Description: desc,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("提现申请已提交",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("user_id", entry.UserID),
		zap.String("amount", req.Amount.String()))
	return entry, nil
}

// Approve 审核通过，PROCESSING -> SUCCESS，余额不变
func (s *WithdrawalService) Approve(ctx context.Context, entryID int64) (*model.LedgerEntry, error) {
	entry, err := s.loadWithdrawal(ctx, s.store, entryID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithUserTx(ctx, entry.UserID, func(tx repository.Store) error {
		if err := tx.Ledger().UpdateStatus(ctx, entryID, model.FlowStatusProcessing, model.FlowStatusSuccess); err != nil {
			return err
		}
		var err error
		if entry, err = tx.Ledger().GetByID(ctx, entryID); err != nil {
			return err
		}
		return s.publish(ctx, tx, event.TypeWithdrawalApproved, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("提现审核通过", zap.Int64("entry_id", entryID), zap.Int64("user_id", entry.UserID))
	return entry, nil
}

// Reject 审核拒绝，状态改为 FAILED 并退回扣款，两步在同一个事务里
func (s *WithdrawalService) Reject(ctx context.Context, entryID int64) (*model.LedgerEntry, error) {
	entry, err := s.loadWithdrawal(ctx, s.store, entryID)
	if err != nil {
		return nil, err
	}

	var refund *model.LedgerEntry
	err = s.ledger.WithUserTx(ctx, entry.UserID, func(tx repository.Store) error {
		if err := tx.Ledger().UpdateStatus(ctx, entryID, model.FlowStatusProcessing, model.FlowStatusFailed); err != nil {
			return err
		}

		var err error
		refund, err = recordFlow(ctx, tx, FlowRequest{
			UserID:      entry.UserID,
			Amount:      entry.Amount.Abs(),
			FundType:    model.FundTypeWithdrawRefund,
			Description: fmt.Sprintf("提现拒绝退回，原流水 %s", entry.FlowNo),
			BusinessID:  RefundBusinessID(entryID),
		})
		if err != nil {
			return err
		}

		if entry, err = tx.Ledger().GetByID(ctx, entryID); err != nil {
			return err
		}
		return s.publish(ctx, tx, event.TypeWithdrawalRejected, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("提现审核拒绝，已退回",
		zap.Int64("entry_id", entryID),
		zap.Int64("refund_id", refund.ID),
		zap.Int64("user_id", entry.UserID),
		zap.String("balance_after", refund.Balance().String()))
	return entry, nil
}

// List 查询提现记录，status 为空时不过滤
func (s *WithdrawalService) List(ctx context.Context, userID int64, status model.FlowStatus, limit int) ([]*model.LedgerEntry, error) {
	return s.store.Ledger().Find(ctx, model.LedgerFilter{
		UserID:   userID,
		FundType: model.FundTypeWithdraw,
		Status:   status,
		Limit:    limit,
	})
}

func (s *WithdrawalService) loadWithdrawal(ctx context.Context, store repository.Store, entryID int64) (*model.LedgerEntry, error) {
	entry, err := store.Ledger().GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.FundType != model.FundTypeWithdraw {
		return nil, apperr.InvalidState("流水 %d 不是提现流水", entryID)
	}
	return entry, nil
}

func (s *WithdrawalService) publish(ctx context.Context, tx repository.Store, eventType string, entry *model.LedgerEntry) error {
	msg, err := event.NewOutboxMessage(s.topics.Fund, eventType, event.NewFundEvent(entry, s.now()))
	if err != nil {
		return apperr.System(err, "构造提现事件失败")
	}
	return tx.Outbox().Create(ctx, msg)
}
