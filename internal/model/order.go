package model

import (
	"strconv"
	"strings"
	"time"
)

// 宿主商城的订单状态。本服务不管理订单生命周期，只在状态进入
// "已支付"集合（配置 paid_statuses）时触发结算。
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusOnHold     = "on-hold"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// IsPaidStatus 判断状态是否属于配置的已支付集合
func IsPaidStatus(status string, paidStatuses []string) bool {
	for _, s := range paidStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Order 订单返现快照表
// 下单时落库一次，之后只有结算会改 cashback_earned / processed 两个字段
//
// processed 标志是幂等结算的关键：false → true 只翻转一次，
// 翻转必须带 WHERE processed = false 条件（CAS），防止重复入账
type Order struct {
	ID       int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo  string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 宿主商城订单号
	UserID   int64   `gorm:"index;not null" json:"user_id"`                         // 用户ID，0 表示匿名下单
	Subtotal float64 `gorm:"type:decimal(10,2);not null" json:"subtotal"`           // 商品小计
	Total    float64 `gorm:"type:decimal(10,2);not null" json:"total"`              // 实付总额
	Status   string  `gorm:"type:varchar(20);index;not null" json:"status"`

	CashbackUsed   float64 `gorm:"type:decimal(10,2);not null;default:0" json:"cashback_used"`   // 本单抵扣的返现
	SkipEarning    bool    `gorm:"not null;default:false" json:"skip_earning"`                   // 使用了返现则为 true
	CashbackEarned float64 `gorm:"type:decimal(10,2);not null;default:0" json:"cashback_earned"` // 结算后回填
	Processed      bool    `gorm:"not null;default:false;index" json:"processed"`                // 结算完成标志

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID" json:"items"`
	Fees  []OrderFee  `gorm:"foreignKey:OrderID;references:ID" json:"fees"`

	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "cashback_order"
}

// OrderItem 订单行项目快照，品牌逻辑按行解析返现比例时使用
type OrderItem struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64   `gorm:"index;not null" json:"order_id"`
	ProductID int64   `gorm:"not null" json:"product_id"`
	BrandIDs  string  `gorm:"type:varchar(256)" json:"brand_ids"` // 品牌/类目ID，逗号分隔
	Quantity  int     `gorm:"not null;default:1" json:"quantity"`
	LineTotal float64 `gorm:"type:decimal(10,2);not null" json:"line_total"`
}

func (OrderItem) TableName() string {
	return "cashback_order_item"
}

// BrandIDList 解析逗号分隔的品牌ID
func (i *OrderItem) BrandIDList() []int64 {
	if i.BrandIDs == "" {
		return nil
	}
	parts := strings.Split(i.BrandIDs, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// OrderFee 订单费用/折扣快照，金额带符号（折扣为负数）
// 老订单缺少返现快照时，从这里按名称兜底识别返现折扣行
type OrderFee struct {
	ID      int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID int64   `gorm:"index;not null" json:"order_id"`
	Name    string  `gorm:"type:varchar(128);not null" json:"name"`
	Amount  float64 `gorm:"type:decimal(10,2);not null" json:"amount"`
}

func (OrderFee) TableName() string {
	return "cashback_order_fee"
}
