package service

import (
	"context"
	"time"

	"wealthledger/internal/event"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RechargeService 充值审核流程
//
//	申请:  PENDING / PROCESSING，不影响余额
//	通过:  ACTIVE  / SUCCESS，按审核时的账本尾部补写余额
//	拒绝:  REFUSED / FAILED
type RechargeService struct {
	store  repository.Store
	ledger *LedgerService
	topics event.Topics
	log    *zap.Logger
	now    func() time.Time
}

func NewRechargeService(store repository.Store, ledger *LedgerService, topics event.Topics, log *zap.Logger) *RechargeService {
	return &RechargeService{
		store:  store,
		ledger: ledger,
		topics: topics,
		log:    log.Named("RechargeService"),
		now:    time.Now,
	}
}

type RechargeRequest struct {
	UserID      int64           `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Request 提交充值申请
func (s *RechargeService) Request(ctx context.Context, req *RechargeRequest) (*model.LedgerEntry, error) {
	if err := checkPositive(req.Amount); err != nil {
		return nil, err
	}
	desc := req.Description
	if desc == "" {
		desc = "充值"
	}

	var entry *model.LedgerEntry
	err := s.ledger.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		if _, err := ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		var err error
		entry, err = recordFlow(ctx, tx, FlowRequest{
			UserID:      req.UserID,
			Amount:      req.Amount,
			FundType:    model.FundTypeRecharge,
			Description: desc,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("充值申请已提交",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("user_id", entry.UserID),
		zap.String("amount", entry.Amount.String()))
	return entry, nil
}

// Approve 审核通过，余额按当前账本尾部重新计算
func (s *RechargeService) Approve(ctx context.Context, entryID int64) (*model.LedgerEntry, error) {
	entry, err := s.loadRecharge(ctx, s.store, entryID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithUserTx(ctx, entry.UserID, func(tx repository.Store) error {
		current, err := s.loadRecharge(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if current.Effective != model.EffectivePending {
			return apperr.InvalidState("充值 %d 已审核，当前状态 %s", entryID, current.Effective)
		}

		tail, err := tx.Ledger().LatestActive(ctx, current.UserID)
		if err != nil {
			return err
		}
		newBalance := tail.Balance().Add(current.Amount)
		if err := tx.Ledger().Activate(ctx, current.ID, tail.NextSeq(), newBalance); err != nil {
			return err
		}

		if entry, err = tx.Ledger().GetByID(ctx, entryID); err != nil {
			return err
		}
		return s.publish(ctx, tx, event.TypeRechargeApproved, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("充值审核通过",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("user_id", entry.UserID),
		zap.String("balance_after", entry.Balance().String()))
	return entry, nil
}

// Refuse 审核拒绝
func (s *RechargeService) Refuse(ctx context.Context, entryID int64) (*model.LedgerEntry, error) {
	entry, err := s.loadRecharge(ctx, s.store, entryID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithUserTx(ctx, entry.UserID, func(tx repository.Store) error {
		current, err := s.loadRecharge(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if current.Effective != model.EffectivePending {
			return apperr.InvalidState("充值 %d 已审核，当前状态 %s", entryID, current.Effective)
		}
		if err := tx.Ledger().Refuse(ctx, entryID); err != nil {
			return err
		}
		if entry, err = tx.Ledger().GetByID(ctx, entryID); err != nil {
			return err
		}
		return s.publish(ctx, tx, event.TypeRechargeRefused, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("充值审核拒绝", zap.Int64("entry_id", entry.ID), zap.Int64("user_id", entry.UserID))
	return entry, nil
}

// ListPending 待审核的充值申请
func (s *RechargeService) ListPending(ctx context.Context, limit int) ([]*model.LedgerEntry, error) {
	return s.store.Ledger().Find(ctx, model.LedgerFilter{
		FundType:  model.FundTypeRecharge,
		Effective: model.EffectivePending,
		Limit:     limit,
	})
}

func (s *RechargeService) loadRecharge(ctx context.Context, store repository.Store, entryID int64) (*model.LedgerEntry, error) {
	entry, err := store.Ledger().GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.FundType != model.FundTypeRecharge {
		return nil, apperr.InvalidState("流水 %d 不是充值流水", entryID)
	}
	return entry, nil
}

func (s *RechargeService) publish(ctx context.Context, tx repository.Store, eventType string, entry *model.LedgerEntry) error {
	msg, err := event.NewOutboxMessage(s.topics.Fund, eventType, event.NewFundEvent(entry, s.now()))
	if err != nil {
		return apperr.System(err, "构造充值事件失败")
	}
	return tx.Outbox().Create(ctx, msg)
}
