package service

import (
	"context"
	"errors"

	"wealthledger/internal/model"
	"wealthledger/internal/repository"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserService 运营侧的用户开关和系统配置
type UserService struct {
	store repository.Store
	log   *zap.Logger
}

func NewUserService(store repository.Store, log *zap.Logger) *UserService {
	return &UserService{store: store, log: log.Named("UserService")}
}

type UserSettings struct {
	UserID             int64 `json:"user_id" binding:"required"`
	TransferOutEnabled *bool `json:"transfer_out_enabled"`
	Frozen             *bool `json:"frozen"`
}

// UpdateSettings 修改理财转出开关和冻结状态，未传的字段保持不变
func (s *UserService) UpdateSettings(ctx context.Context, req *UserSettings) (*model.User, error) {
	if req.UserID <= 0 {
		return nil, apperr.Validation("用户ID不合法: %d", req.UserID)
	}

	var user *model.User
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().GetByID(ctx, req.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			user, err = &model.User{ID: req.UserID}, nil
		}
		if err != nil {
			return err
		}
		if req.TransferOutEnabled != nil {
			user.TransferOutEnabled = *req.TransferOutEnabled
		}
		if req.Frozen != nil {
			user.Frozen = *req.Frozen
		}
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("用户设置已更新",
		zap.Int64("user_id", user.ID),
		zap.Bool("transfer_out_enabled", user.TransferOutEnabled),
		zap.Bool("frozen", user.Frozen))
	return user, nil
}

// SetAnnualRate 设置理财年化收益率（百分数），下一次计提生效
func (s *UserService) SetAnnualRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return apperr.Validation("年化收益率不能为负数: %s", rate)
	}
	if err := s.store.Configs().SetValue(ctx, model.ConfigNameSys, model.ConfigKeyFinancialRate, rate.String()); err != nil {
		return err
	}
	s.log.Info("年化收益率已更新", zap.String("rate", rate.String()))
	return nil
}
