package repository

import (
	"context"
	"errors"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type holdingRepository struct {
	db *gorm.DB
}

func NewHoldingRepository(db *gorm.DB) HoldingRepository {
	return &holdingRepository{db: db}
}

func (r *holdingRepository) Create(ctx context.Context, holding *model.FinancialHolding) error {
	if err := r.db.WithContext(ctx).Create(holding).Error; err != nil {
		return apperr.System(err, "创建理财持仓失败")
	}
	return nil
}

func (r *holdingRepository) GetByID(ctx context.Context, id int64) (*model.FinancialHolding, error) {
	var holding model.FinancialHolding
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&holding).Error
	if err != nil {
		return nil, translate(err, "理财持仓 %d 不存在", id)
	}
	return &holding, nil
}

func (r *holdingRepository) LatestByUserID(ctx context.Context, userID int64) (*model.FinancialHolding, error) {
	var holding model.FinancialHolding
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.System(err, "查询用户 %d 理财持仓失败", userID)
	}
	return &holding, nil
}

func (r *holdingRepository) AddPrincipal(ctx context.Context, id int64, delta decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.FinancialHolding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"principal": gorm.Expr("principal + ?", delta),
			"status":    model.HoldingStatusHolding,
		})
	if result.Error != nil {
		return apperr.System(result.Error, "增加理财本金失败")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("理财持仓 %d 不存在", id)
	}
	return nil
}

// DeductPrincipal 扣减本金，本金扣到 0 时持仓变为已赎回
func (r *holdingRepository) DeductPrincipal(ctx context.Context, id int64, amount decimal.Decimal) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&model.FinancialHolding{}).
		Where("id = ? AND principal >= ?", id, amount).
		Update("principal", gorm.Expr("principal - ?", amount))
	if result.Error != nil {
		return apperr.System(result.Error, "扣减理财本金失败")
	}
	if result.RowsAffected == 0 {
		return apperr.InsufficientFunds("理财账户余额不足，转出失败")
	}

	err := db.Model(&model.FinancialHolding{}).
		Where("id = ? AND principal = ?", id, 0).
		Update("status", model.HoldingStatusRedeemed).Error
	if err != nil {
		return apperr.System(err, "更新理财持仓状态失败")
	}
	return nil
}

// ListAccruable 每个用户只取最新一条持仓，历史记录不参与计息
func (r *holdingRepository) ListAccruable(ctx context.Context) ([]*model.FinancialHolding, error) {
	var holdings []*model.FinancialHolding
	db := r.db.WithContext(ctx)
	latest := db.Model(&model.FinancialHolding{}).Select("MAX(id)").Group("user_id")
	err := db.
		Where("id IN (?)", latest).
		Where("status = ? AND principal > ?", model.HoldingStatusHolding, 0).
		Order("id ASC").
		Find(&holdings).Error
	if err != nil {
		return nil, apperr.System(err, "查询理财持仓失败")
	}
	return holdings, nil
}

type statementRepository struct {
	db *gorm.DB
}

func NewStatementRepository(db *gorm.DB) StatementRepository {
	return &statementRepository{db: db}
}

func (r *statementRepository) Create(ctx context.Context, stmt *model.FinancialStatement) error {
	if err := r.db.WithContext(ctx).Create(stmt).Error; err != nil {
		return apperr.System(err, "写入理财流水失败")
	}
	return nil
}

func (r *statementRepository) Exists(ctx context.Context, holdingID int64, typ model.StatementType, bizDate string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.FinancialStatement{}).
		Where("holding_id = ? AND type = ? AND biz_date = ?", holdingID, typ, bizDate).
		Count(&count).Error
	if err != nil {
		return false, apperr.System(err, "查询理财流水失败")
	}
	return count > 0, nil
}

func (r *statementRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.FinancialStatement, error) {
	var stmts []*model.FinancialStatement
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&stmts).Error; err != nil {
		return nil, apperr.System(err, "查询理财流水失败")
	}
	return stmts, nil
}
