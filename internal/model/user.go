package model

import (
	"time"
)

// User 账本关心的用户属性，身份认证由外部系统负责
type User struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	TransferOutEnabled bool      `gorm:"not null;default:false" json:"transfer_out_enabled"` // 是否允许理财转出
	Frozen             bool      `gorm:"not null;default:false" json:"frozen"`               // 冻结用户不能发起资金操作
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user_account"
}

// SysConfig 系统配置表
type SysConfig struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_config_name_key,priority:1" json:"name"`
	ConfigKey string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_config_name_key,priority:2" json:"config_key"`
	Value     string    `gorm:"type:varchar(256);not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SysConfig) TableName() string {
	return "sys_config"
}

const (
	ConfigNameSys          = "sys_config"
	ConfigKeyFinancialRate = "financial_management" // 理财年化收益率（百分数）
)
