package repository

import (
	"context"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return apperr.System(r.db.WithContext(ctx).Create(msg).Error, "写入消息失败")
}

func (r *outboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, apperr.System(err, "查询待发送消息失败")
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
	return apperr.System(err, "更新消息状态失败")
}

func (r *outboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
	return apperr.System(err, "增加重试次数失败")
}

func (r *outboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusFailed).Error
	return apperr.System(err, "标记消息失败状态失败")
}
