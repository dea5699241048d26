package model

import (
	"time"
)

// ============================================================================
// 返现流水类型常量
// ============================================================================

const (
	TransactionTypeEarned     = "earned"     // 获得返现
	TransactionTypeSpent      = "spent"      // 使用返现（抵扣订单）
	TransactionTypeAdjustment = "adjustment" // 管理员调整（清零等）
)

// ============================================================================
// 返现流水实体
// ============================================================================

// CashbackTransaction 返现流水表
// 记录余额的每一次变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录变动前后余额 —— 同一用户的流水按时间构成严格链条：
//    第 N 条的 balance_after 等于第 N+1 条的 balance_before
// 3. amount 恒为非负数，方向由 type 隐含
type CashbackTransaction struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID             int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	OrderID            int64     `gorm:"index;not null;default:0" json:"order_id"`                    // 关联订单，0 表示非订单调整
	Type               string    `gorm:"type:varchar(20);index;not null" json:"type"`                 // 流水类型
	Amount             float64   `gorm:"type:decimal(10,2);not null" json:"amount"`                   // 变动金额（非负）
	BalanceBefore      float64   `gorm:"type:decimal(10,2);not null" json:"balance_before"`           // 变动前余额
	BalanceAfter       float64   `gorm:"type:decimal(10,2);not null" json:"balance_after"`            // 变动后余额
	OrderTotal         float64   `gorm:"type:decimal(10,2);not null;default:0" json:"order_total"`    // 订单总额
	CashbackPercentage float64   `gorm:"type:decimal(5,2);not null;default:0" json:"cashback_percentage"` // 实际返现比例
	Description        string    `gorm:"type:varchar(256)" json:"description"`                        // 备注
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CashbackTransaction) TableName() string {
	return "cashback_transaction"
}
