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

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperr.System(err, "写入资金流水失败")
	}
	return nil
}

func (r *ledgerRepository) GetByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, translate(err, "资金流水 %d 不存在", id)
	}
	return &entry, nil
}

// LatestActive 读取账本尾部
//
// SELECT ... FOR UPDATE 锁住尾部记录，同一用户的并发写入在这里排队；
// 用户还没有任何生效流水时锁不到行，由 (user_id, seq) 唯一索引兜底。
func (r *ledgerRepository) LatestActive(ctx context.Context, userID int64) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND effective = ?", userID, model.EffectiveActive).
		Order("seq DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, apperr.System(err, "查询用户 %d 账本尾部失败", userID)
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *ledgerRepository) FindByBusinessID(ctx context.Context, userID int64, fundType model.FundType, businessID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND fund_type = ? AND business_id = ?", userID, fundType, businessID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.System(err, "查询业务流水失败")
	}
	return &entry, nil
}

func (r *ledgerRepository) Activate(ctx context.Context, id int64, seq int64, balanceAfter decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND effective = ?", id, model.EffectivePending).
		Updates(map[string]interface{}{
			"effective":     model.EffectiveActive,
			"status":        model.FlowStatusSuccess,
			"seq":           seq,
			"balance_after": balanceAfter,
		})
	return conditional(result, "流水 %d 不是待审核状态", id)
}

func (r *ledgerRepository) Refuse(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND effective = ?", id, model.EffectivePending).
		Updates(map[string]interface{}{
			"effective": model.EffectiveRefused,
			"status":    model.FlowStatusFailed,
		})
	return conditional(result, "流水 %d 不是待审核状态", id)
}

func (r *ledgerRepository) UpdateStatus(ctx context.Context, id int64, from, to model.FlowStatus) error {
	result := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return conditional(result, "流水 %d 不是 %s 状态", id, from)
}

func (r *ledgerRepository) Find(ctx context.Context, filter model.LedgerFilter) ([]*model.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{})
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.FundType != "" {
		query = query.Where("fund_type = ?", filter.FundType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Effective != "" {
		query = query.Where("effective = ?", filter.Effective)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []*model.LedgerEntry
	if err := query.Order("id DESC").Find(&entries).Error; err != nil {
		return nil, apperr.System(err, "查询资金流水失败")
	}
	return entries, nil
}

func (r *ledgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.System(err, "统计资金流水失败")
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, apperr.System(err, "查询资金流水失败")
	}

	return entries, total, nil
}
