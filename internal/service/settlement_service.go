package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wealthledger/internal/event"
	"wealthledger/internal/infrastructure/metrics"
	"wealthledger/internal/infrastructure/worker"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"go.uber.org/zap"
)

// Submitter 异步任务队列
type Submitter interface {
	Submit(task worker.Task) error
}

// SettlementService 产品到期结算
//
// 结算分两步：
//  1. Settle：一个事务里把产品 ACTIVE -> COMPLETED，写一条 PENDING 回款和结算事件
//  2. ApplyCredit：异步把回款记成 INCOME 流水并把回款标记为 DONE
//
// 第 2 步失败时回款保持 PENDING，由 CreditRetryJob 继续重试，
// 流水的业务ID settle:<productID> 保证每个产品只回款一次。
type SettlementService struct {
	store         repository.Store
	ledger        *LedgerService
	pool          Submitter
	topics        event.Topics
	maxRetryCount int
	log           *zap.Logger
	now           func() time.Time
}

func NewSettlementService(store repository.Store, ledger *LedgerService, pool Submitter, topics event.Topics, maxRetryCount int, log *zap.Logger) *SettlementService {
	return &SettlementService{
		store:         store,
		ledger:        ledger,
		pool:          pool,
		topics:        topics,
		maxRetryCount: maxRetryCount,
		log:           log.Named("SettlementService"),
		now:           time.Now,
	}
}

// Settle 结算一个到期产品，产品不是持有中状态时什么都不做
func (s *SettlementService) Settle(ctx context.Context, productID int64) error {
	product, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.Status != model.ProductStatusActive {
		s.log.Debug("产品已结算，跳过", zap.Int64("product_id", productID), zap.String("status", string(product.Status)))
		return nil
	}

	finalAmount, err := product.IncomeStatus.FinalAmount(product.Principal, product.Rate)
	if err != nil {
		metrics.RecordSettlement(err)
		return apperr.Validation("产品 %d 结算金额计算失败: %v", productID, err)
	}

	settledAt := s.now()
	credit := &model.SettlementCredit{
		ProductID: product.ID,
		UserID:    product.UserID,
		Amount:    finalAmount,
		Status:    model.CreditStatusPending,
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Products().MarkCompleted(ctx, product.ID, settledAt); err != nil {
			return err
		}
		if err := tx.Credits().Create(ctx, credit); err != nil {
			return err
		}
		msg, err := event.NewOutboxMessage(s.topics.Product, event.TypeProductSettled, event.ProductSettledEvent{
			ProductID:    product.ID,
			ProductNo:    product.ProductNo,
			UserID:       product.UserID,
			Principal:    product.Principal,
			FinalAmount:  finalAmount,
			IncomeStatus: product.IncomeStatus,
			SettledAt:    settledAt,
		})
		if err != nil {
			return apperr.System(err, "构造结算事件失败")
		}
		return tx.Outbox().Create(ctx, msg)
	})
	if errors.Is(err, apperr.ErrInvalidStateTransition) {
		// 并发结算时只有一个能翻转状态
		s.log.Debug("产品已被其他任务结算", zap.Int64("product_id", productID))
		return nil
	}
	metrics.RecordSettlement(err)
	if err != nil {
		return err
	}

	s.log.Info("产品结算完成",
		zap.Int64("product_id", product.ID),
		zap.Int64("user_id", product.UserID),
		zap.String("income_status", string(product.IncomeStatus)),
		zap.String("final_amount", finalAmount.String()))

	s.enqueueCredit(credit.ID)
	return nil
}

func (s *SettlementService) enqueueCredit(creditID int64) {
	err := s.pool.Submit(func(ctx context.Context) {
		_ = s.ApplyCredit(ctx, creditID)
	})
	if err != nil {
		s.log.Warn("回款入队失败，等待重试任务处理", zap.Int64("credit_id", creditID), zap.Error(err))
	}
}

// ApplyCredit 回款入账，重复调用是安全的
func (s *SettlementService) ApplyCredit(ctx context.Context, creditID int64) error {
	credit, err := s.store.Credits().GetByID(ctx, creditID)
	if err != nil {
		return err
	}
	if credit.Status != model.CreditStatusPending {
		return nil
	}

	err = s.ledger.WithUserTx(ctx, credit.UserID, func(tx repository.Store) error {
		current, err := tx.Credits().GetByID(ctx, creditID)
		if err != nil {
			return err
		}
		if current.Status != model.CreditStatusPending {
			return nil
		}

		bizID := model.SettlementBusinessID(current.ProductID)
		existing, err := tx.Ledger().FindByBusinessID(ctx, current.UserID, model.FundTypeIncome, bizID)
		if err != nil {
			return err
		}
		// 全部亏损时结算金额为 0，不记流水
		if existing == nil && current.Amount.IsPositive() {
			if _, err := recordFlow(ctx, tx, FlowRequest{
				UserID:      current.UserID,
				Amount:      current.Amount,
				FundType:    model.FundTypeIncome,
				Description: fmt.Sprintf("产品 %d 到期结算回款", current.ProductID),
				BusinessID:  bizID,
			}); err != nil {
				return err
			}
		}
		return tx.Credits().MarkDone(ctx, creditID)
	})
	if err == nil {
		metrics.RecordCredit("done")
		s.log.Info("结算回款入账成功",
			zap.Int64("credit_id", creditID),
			zap.Int64("product_id", credit.ProductID),
			zap.String("amount", credit.Amount.String()))
		return nil
	}

	giveUp := credit.RetryCount+1 >= s.maxRetryCount
	if recErr := s.store.Credits().RecordFailure(ctx, creditID, err.Error(), giveUp); recErr != nil {
		s.log.Error("记录回款失败信息失败", zap.Int64("credit_id", creditID), zap.Error(recErr))
	}
	if giveUp {
		metrics.RecordCredit("failed")
		s.log.Error("结算回款超过最大重试次数，需要人工处理",
			zap.Int64("credit_id", creditID),
			zap.Int64("product_id", credit.ProductID),
			zap.Int64("user_id", credit.UserID),
			zap.Error(err))
	} else {
		metrics.RecordCredit("error")
		s.log.Warn("结算回款入账失败，稍后重试",
			zap.Int64("credit_id", creditID),
			zap.Int("retry_count", credit.RetryCount+1),
			zap.Error(err))
	}
	return err
}

// RetryPendingCredits 重新入账所有 PENDING 回款，返回本次成功的数量
func (s *SettlementService) RetryPendingCredits(ctx context.Context, limit int) (int, error) {
	credits, err := s.store.Credits().ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, c := range credits {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if s.ApplyCredit(ctx, c.ID) == nil {
			done++
		}
	}
	return done, nil
}
