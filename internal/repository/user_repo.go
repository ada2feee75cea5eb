package repository

import (
	"context"

	"wealthledger/internal/model"
	"wealthledger/pkg/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err, "用户 %d 不存在", id)
	}
	return &user, nil
}

func (r *userRepository) Save(ctx context.Context, user *model.User) error {
	return apperr.System(r.db.WithContext(ctx).Save(user).Error, "保存用户失败")
}

type configRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) ConfigRepository {
	return &configRepository{db: db}
}

func (r *configRepository) GetValue(ctx context.Context, name, key string) (string, error) {
	var cfg model.SysConfig
	err := r.db.WithContext(ctx).
		Where("name = ? AND config_key = ?", name, key).
		First(&cfg).Error
	if err != nil {
		return "", translate(err, "配置项 %s.%s 不存在", name, key)
	}
	return cfg.Value, nil
}

func (r *configRepository) SetValue(ctx context.Context, name, key, value string) error {
	cfg := &model.SysConfig{Name: name, ConfigKey: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "config_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(cfg).Error
	return apperr.System(err, "保存配置项失败")
}
