package repository

import (
	"context"
	"time"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"gorm.io/gorm"
)

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.ProductHolding) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return apperr.System(err, "创建持有产品失败")
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.ProductHolding, error) {
	var product model.ProductHolding
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, translate(err, "产品 %d 不存在", id)
	}
	return &product, nil
}

func (r *productRepository) ListByStatus(ctx context.Context, status model.ProductStatus) ([]*model.ProductHolding, error) {
	var products []*model.ProductHolding
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("maturity_time ASC").
		Find(&products).Error
	if err != nil {
		return nil, apperr.System(err, "查询产品列表失败")
	}
	return products, nil
}

func (r *productRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*model.ProductHolding, error) {
	var products []*model.ProductHolding
	err := r.db.WithContext(ctx).
		Where("status = ? AND maturity_time <= ?", model.ProductStatusActive, before).
		Order("maturity_time ASC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, apperr.System(err, "查询到期产品失败")
	}
	return products, nil
}

func (r *productRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.ProductHolding, error) {
	var products []*model.ProductHolding
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&products).Error
	if err != nil {
		return nil, apperr.System(err, "查询用户产品失败")
	}
	return products, nil
}

func (r *productRepository) MarkCompleted(ctx context.Context, id int64, settledAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.ProductHolding{}).
		Where("id = ? AND status = ?", id, model.ProductStatusActive).
		Updates(map[string]interface{}{
			"status":     model.ProductStatusCompleted,
			"settled_at": settledAt,
		})
	return conditional(result, "产品 %d 不是持有中状态", id)
}

type creditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &creditRepository{db: db}
}

func (r *creditRepository) Create(ctx context.Context, credit *model.SettlementCredit) error {
	if err := r.db.WithContext(ctx).Create(credit).Error; err != nil {
		return apperr.System(err, "写入结算回款失败")
	}
	return nil
}

func (r *creditRepository) GetByID(ctx context.Context, id int64) (*model.SettlementCredit, error) {
	var credit model.SettlementCredit
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&credit).Error; err != nil {
		return nil, translate(err, "结算回款 %d 不存在", id)
	}
	return &credit, nil
}

func (r *creditRepository) ListPending(ctx context.Context, limit int) ([]*model.SettlementCredit, error) {
	var credits []*model.SettlementCredit
	err := r.db.WithContext(ctx).
		Where("status = ?", model.CreditStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&credits).Error
	if err != nil {
		return nil, apperr.System(err, "查询待入账回款失败")
	}
	return credits, nil
}

func (r *creditRepository) MarkDone(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.SettlementCredit{}).
		Where("id = ? AND status = ?", id, model.CreditStatusPending).
		Update("status", model.CreditStatusDone)
	return conditional(result, "结算回款 %d 不是待入账状态", id)
}

func (r *creditRepository) RecordFailure(ctx context.Context, id int64, reason string, giveUp bool) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  reason,
	}
	if giveUp {
		updates["status"] = model.CreditStatusFailed
	}
	err := r.db.WithContext(ctx).
		Model(&model.SettlementCredit{}).
		Where("id = ? AND status = ?", id, model.CreditStatusPending).
		Updates(updates).Error
	return apperr.System(err, "记录回款失败信息失败")
}
