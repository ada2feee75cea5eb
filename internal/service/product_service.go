package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"
	"wealthledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Scheduler 产品购买成功后交给结算调度器挂定时器
type Scheduler interface {
	Schedule(product *model.ProductHolding)
}

// ProductService 购买理财产品
type ProductService struct {
	store     repository.Store
	ledger    *LedgerService
	scheduler Scheduler
	log       *zap.Logger
	now       func() time.Time
}

func NewProductService(store repository.Store, ledger *LedgerService, scheduler Scheduler, log *zap.Logger) *ProductService {
	return &ProductService{
		store:     store,
		ledger:    ledger,
		scheduler: scheduler,
		log:       log.Named("ProductService"),
		now:       time.Now,
	}
}

type PurchaseRequest struct {
	UserID       int64              `json:"-"`
	ProductName  string             `json:"product_name" binding:"required"`
	Principal    decimal.Decimal    `json:"principal"`
	Rate         decimal.Decimal    `json:"rate"` // 小数形式，0.05 表示 5%
	IncomeStatus model.IncomeStatus `json:"income_status" binding:"required"`
	MaturityTime time.Time          `json:"maturity_time"`
}

func (r *PurchaseRequest) validate() error {
	if strings.TrimSpace(r.ProductName) == "" {
		return apperr.Validation("产品名称不能为空")
	}
	if err := checkPositive(r.Principal); err != nil {
		return err
	}
	if r.Rate.IsNegative() {
		return apperr.Validation("利率不能为负数: %s", r.Rate)
	}
	switch r.IncomeStatus {
	case model.IncomeStatusProfit:
	case model.IncomeStatusLoss:
		if r.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return apperr.Validation("亏损产品利率不能大于1: %s", r.Rate)
		}
	default:
		return apperr.Validation("未知收益状态: %q", string(r.IncomeStatus))
	}
	if r.MaturityTime.IsZero() {
		return apperr.Validation("到期时间不能为空")
	}
	return nil
}

// Purchase 扣款并创建持有产品，成功后立即挂结算定时器
func (s *ProductService) Purchase(ctx context.Context, req *PurchaseRequest) (*model.ProductHolding, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &model.ProductHolding{
		ProductNo:    idgen.GenerateProductNo(),
		UserID:       req.UserID,
		ProductName:  req.ProductName,
		Principal:    req.Principal,
		Rate:         req.Rate,
		MaturityTime: req.MaturityTime,
		Status:       model.ProductStatusActive,
		IncomeStatus: req.IncomeStatus,
	}

	err := s.ledger.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		if _, err := ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if _, err := recordFlow(ctx, tx, FlowRequest{
			UserID:      req.UserID,
			Amount:      req.Principal.Neg(),
			FundType:    model.FundTypeExpense,
			Description: fmt.Sprintf("购买产品[%s]", req.ProductName),
			BusinessID:  "purchase:" + product.ProductNo,
		}); err != nil {
			return err
		}
		return tx.Products().Create(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("产品购买成功",
		zap.Int64("product_id", product.ID),
		zap.String("product_no", product.ProductNo),
		zap.Int64("user_id", product.UserID),
		zap.Time("maturity_time", product.MaturityTime))

	if s.scheduler != nil {
		s.scheduler.Schedule(product)
	}
	return product, nil
}

func (s *ProductService) Get(ctx context.Context, productID int64) (*model.ProductHolding, error) {
	return s.store.Products().GetByID(ctx, productID)
}

func (s *ProductService) ListByUser(ctx context.Context, userID int64) ([]*model.ProductHolding, error) {
	return s.store.Products().ListByUserID(ctx, userID)
}
