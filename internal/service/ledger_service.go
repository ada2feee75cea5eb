package service

import (
	"context"
	"errors"

	"wealthledger/internal/infrastructure/cache"
	"wealthledger/internal/infrastructure/lock"
	"wealthledger/internal/infrastructure/metrics"
	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"
	"wealthledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService 资金流水服务，现金余额唯一的写入口
//
// 所有改动余额的流程都经过 WithUserTx：先拿用户锁，再开事务，
// 提交后刷新余额缓存，最后释放锁。
type LedgerService struct {
	store  repository.Store
	locker lock.Locker
	cache  cache.BalanceCache
	log    *zap.Logger
}

func NewLedgerService(store repository.Store, locker lock.Locker, balanceCache cache.BalanceCache, log *zap.Logger) *LedgerService {
	if balanceCache == nil {
		balanceCache = cache.NopBalanceCache{}
	}
	return &LedgerService{
		store:  store,
		locker: locker,
		cache:  balanceCache,
		log:    log.Named("LedgerService"),
	}
}

// FlowRequest 记一笔资金流水
type FlowRequest struct {
	UserID      int64
	Amount      decimal.Decimal // 带符号，入账为正、出账为负
	FundType    model.FundType
	Description string
	BusinessID  string // 可选，用于幂等
}

// RecordFlow 记一笔资金流水
func (s *LedgerService) RecordFlow(ctx context.Context, req FlowRequest) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.WithUserTx(ctx, req.UserID, func(tx repository.Store) error {
		var err error
		entry, err = recordFlow(ctx, tx, req)
		return err
	})
	metrics.RecordFlow(string(req.FundType), err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// WithUserLock 持有用户锁执行 fn
func (s *LedgerService) WithUserLock(ctx context.Context, userID int64, fn func() error) error {
	if userID <= 0 {
		return apperr.Validation("用户ID不合法: %d", userID)
	}
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return apperr.System(err, "系统繁忙，请稍后重试")
	}
	defer unlock()
	return fn()
}

// WithUserTx 持有用户锁，在一个事务里执行 fn，成功后刷新余额缓存
func (s *LedgerService) WithUserTx(ctx context.Context, userID int64, fn func(tx repository.Store) error) error {
	return s.WithUserLock(ctx, userID, func() error {
		if err := s.store.Transaction(ctx, fn); err != nil {
			return err
		}
		s.refreshCache(ctx, userID)
		return nil
	})
}

func (s *LedgerService) refreshCache(ctx context.Context, userID int64) {
	tail, err := s.store.Ledger().LatestActive(ctx, userID)
	if err != nil {
		s.log.Warn("读取余额失败，跳过缓存刷新", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, userID, tail.Balance()); err != nil {
		s.log.Warn("刷新余额缓存失败", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// GetBalance 查询现金余额，缓存未命中时从账本尾部推导
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if userID <= 0 {
		return decimal.Zero, apperr.Validation("用户ID不合法: %d", userID)
	}
	if balance, ok, err := s.cache.Get(ctx, userID); err == nil && ok {
		return balance, nil
	} else if err != nil {
		s.log.Warn("读取余额缓存失败", zap.Int64("user_id", userID), zap.Error(err))
	}

	tail, err := s.store.Ledger().LatestActive(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	// 不持有用户锁，回填不能覆盖并发写入刷新的余额
	balance := tail.Balance()
	if err := s.cache.SetIfAbsent(ctx, userID, balance); err != nil {
		s.log.Warn("回填余额缓存失败", zap.Int64("user_id", userID), zap.Error(err))
	}
	return balance, nil
}

// ListFlows 分页查询用户流水，最新的在前
func (s *LedgerService) ListFlows(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if userID <= 0 {
		return nil, 0, apperr.Validation("用户ID不合法: %d", userID)
	}
	return s.store.Ledger().ListByUserID(ctx, userID, page, pageSize)
}

// AdjustBalance 运营人工调账，调减后余额不能为负
func (s *LedgerService) AdjustBalance(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*model.LedgerEntry, error) {
	if reason == "" {
		return nil, apperr.Validation("调账原因不能为空")
	}
	entry, err := s.RecordFlow(ctx, FlowRequest{
		UserID:      userID,
		Amount:      amount,
		FundType:    model.FundTypeManualAdjust,
		Description: reason,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("人工调账",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("flow_no", entry.FlowNo))
	return entry, nil
}

// recordFlow 在调用方的事务里写一条流水，调用方必须持有该用户的锁
func recordFlow(ctx context.Context, tx repository.Store, req FlowRequest) (*model.LedgerEntry, error) {
	if req.UserID <= 0 {
		return nil, apperr.Validation("用户ID不合法: %d", req.UserID)
	}
	if err := checkScale(req.Amount); err != nil {
		return nil, err
	}
	if err := req.FundType.CheckSign(req.Amount); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	status, effective, err := req.FundType.InitialState()
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	entry := &model.LedgerEntry{
		FlowNo:      idgen.GenerateFlowNo(),
		UserID:      req.UserID,
		Amount:      req.Amount,
		FundType:    req.FundType,
		Status:      status,
		Effective:   effective,
		Description: req.Description,
		BusinessID:  req.BusinessID,
	}

	if effective == model.EffectiveActive {
		tail, err := tx.Ledger().LatestActive(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		newBalance := tail.Balance().Add(req.Amount)
		if req.Amount.IsNegative() && newBalance.IsNegative() {
			return nil, apperr.InsufficientFunds("账户余额不足: 当前 %s，需要 %s",
				tail.Balance().StringFixed(2), req.Amount.Neg().StringFixed(2))
		}
		seq := tail.NextSeq()
		entry.Seq = &seq
		entry.BalanceAfter = decimal.NewNullDecimal(newBalance)
	}

	if err := tx.Ledger().Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func checkScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("金额最多保留两位小数: %s", amount)
	}
	return nil
}

// checkPositive 校验请求金额为正数且最多两位小数
func checkPositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("金额必须大于0: %s", amount)
	}
	return checkScale(amount)
}

// ensureActiveUser 冻结用户不能发起资金操作；用户表没有记录视为正常用户
func ensureActiveUser(ctx context.Context, tx repository.Store, userID int64) (*model.User, error) {
	user, err := tx.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &model.User{ID: userID}, nil
		}
		return nil, err
	}
	if user.Frozen {
		return nil, apperr.Validation("用户 %d 已冻结", userID)
	}
	return user, nil
}
