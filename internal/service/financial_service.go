package service

import (
	"context"
	"time"

	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FinancialService 理财账户转入转出
//
// 理财本金和现金余额分开记账，转入转出在一个事务里同时改两边。
type FinancialService struct {
	store  repository.Store
	ledger *LedgerService
	log    *zap.Logger
	now    func() time.Time
}

func NewFinancialService(store repository.Store, ledger *LedgerService, log *zap.Logger) *FinancialService {
	return &FinancialService{
		store:  store,
		ledger: ledger,
		log:    log.Named("FinancialService"),
		now:    time.Now,
	}
}

type TransferRequest struct {
	UserID int64           `json:"-"`
	Amount decimal.Decimal `json:"amount"`
}

// TransferIn 现金转入理财：先扣现金，再加本金
func (s *FinancialService) TransferIn(ctx context.Context, req *TransferRequest) (*model.FinancialHolding, error) {
	if err := checkPositive(req.Amount); err != nil {
		return nil, err
	}

	var holding *model.FinancialHolding
	err := s.ledger.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		if _, err := ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if _, err := recordFlow(ctx, tx, FlowRequest{
			UserID:      req.UserID,
			Amount:      req.Amount.Neg(),
			FundType:    model.FundTypeExpense,
			Description: "转入理财",
		}); err != nil {
			return err
		}

		latest, err := tx.Holdings().LatestByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if latest == nil {
			latest = &model.FinancialHolding{
				UserID:    req.UserID,
				Principal: req.Amount,
				Status:    model.HoldingStatusHolding,
			}
			if err := tx.Holdings().Create(ctx, latest); err != nil {
				return err
			}
		} else if err := tx.Holdings().AddPrincipal(ctx, latest.ID, req.Amount); err != nil {
			return err
		}

		if err := s.writeStatement(ctx, tx, latest, model.StatementTypeTransferIn, req.Amount); err != nil {
			return err
		}
		holding, err = tx.Holdings().GetByID(ctx, latest.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("转入理财成功",
		zap.Int64("user_id", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("principal", holding.Principal.String()))
	return holding, nil
}

// TransferOut 理财转出到现金：先扣本金（本金不足直接失败），再记现金收入
func (s *FinancialService) TransferOut(ctx context.Context, req *TransferRequest) (*model.FinancialHolding, error) {
	if err := checkPositive(req.Amount); err != nil {
		return nil, err
	}

	var holding *model.FinancialHolding
	err := s.ledger.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		user, err := ensureActiveUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !user.TransferOutEnabled {
			return apperr.Validation("用户 %d 未开通理财转出", req.UserID)
		}

		latest, err := tx.Holdings().LatestByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if latest == nil {
			return apperr.InsufficientFunds("理财账户余额不足，转出失败")
		}
		if err := tx.Holdings().DeductPrincipal(ctx, latest.ID, req.Amount); err != nil {
			return err
		}
		if _, err := recordFlow(ctx, tx, FlowRequest{
			UserID:      req.UserID,
			Amount:      req.Amount,
			FundType:    model.FundTypeIncome,
			Description: "理财转出",
		}); err != nil {
			return err
		}

		if err := s.writeStatement(ctx, tx, latest, model.StatementTypeTransferOut, req.Amount); err != nil {
			return err
		}
		holding, err = tx.Holdings().GetByID(ctx, latest.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("理财转出成功",
		zap.Int64("user_id", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("principal", holding.Principal.String()))
	return holding, nil
}

// GetHolding 查询用户当前理财持仓
func (s *FinancialService) GetHolding(ctx context.Context, userID int64) (*model.FinancialHolding, error) {
	holding, err := s.store.Holdings().LatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		return nil, apperr.NotFound("用户 %d 没有理财持仓", userID)
	}
	return holding, nil
}

// ListStatements 理财流水，最新的在前
func (s *FinancialService) ListStatements(ctx context.Context, userID int64, limit int) ([]*model.FinancialStatement, error) {
	return s.store.Statements().ListByUserID(ctx, userID, limit)
}

func (s *FinancialService) writeStatement(ctx context.Context, tx repository.Store, holding *model.FinancialHolding, typ model.StatementType, amount decimal.Decimal) error {
	return tx.Statements().Create(ctx, &model.FinancialStatement{
		UserID:    holding.UserID,
		HoldingID: holding.ID,
		Type:      typ,
		Amount:    amount,
		BizDate:   s.now().Format(model.BizDateLayout),
	})
}
