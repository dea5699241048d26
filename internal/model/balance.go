package model

import (
	"time"
)

// Balance 用户返现余额表
// 记录每个用户可用的返现余额，是整个返现系统的核心数据
//
// 不变式：balance >= 0，total_earned / total_spent 只增不减，
// balance 不超过生效的余额上限（入账前由调用方预裁剪）
type Balance struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`                        // 用户ID，宿主商城传入
	Balance     float64   `gorm:"type:decimal(10,2);not null;default:0" json:"balance"`       // 当前可用余额
	TotalEarned float64   `gorm:"type:decimal(10,2);not null;default:0" json:"total_earned"`  // 累计获得
	TotalSpent  float64   `gorm:"type:decimal(10,2);not null;default:0" json:"total_spent"`   // 累计使用
	MaxLimit    *float64  `gorm:"type:decimal(10,2)" json:"max_limit"`                        // 用户级余额上限，NULL 表示用全局上限
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "cashback_balance"
}

// EffectiveMaxLimit 返回生效的余额上限：用户级优先，否则取全局配置
// 返回 0 表示不限制
func (b *Balance) EffectiveMaxLimit(globalLimit float64) float64 {
	if b.MaxLimit != nil && *b.MaxLimit > 0 {
		return *b.MaxLimit
	}
	return globalLimit
}
