package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务发件箱
// 返现入账事件和余额变动落在同一个数据库事务里，后台任务再异步
// 投递到 Kafka，保证"入账成功但通知丢失"不会发生
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// EarnedEvent 返现入账事件，发往 kafka 的 cashback_earned 主题
// 下游据此发送邮件/短信通知，邮件内容不在本服务范围内
type EarnedEvent struct {
	UserID       int64     `json:"user_id"`
	OrderID      int64     `json:"order_id"`
	OrderNo      string    `json:"order_no"`
	Amount       float64   `json:"amount"`
	Percentage   float64   `json:"percentage"`
	BalanceAfter float64   `json:"balance_after"`
	EarnedAt     time.Time `json:"earned_at"`
}
