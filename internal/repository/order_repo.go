package repository

import (
	"context"
	"errors"
	"time"

	"cashback/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound    = errors.New("订单不存在")
	ErrAlreadyProcessed = errors.New("订单已结算")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 落库订单快照，行项目和费用明细随订单一并写入
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Fees").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 记录宿主商城推送的状态，已支付状态首次出现时顺带记 paid_at
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderNo, status string, paid bool) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if paid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkProcessed 结算完成标记，CAS 语义
//
// WHERE 带 processed = false：并发结算时只有一个事务能翻转成功，
// RowsAffected == 0 说明别人已经结算过，调用方据此回滚整个事务。
// cashback_used 一并回填是为了覆盖"快照缺失、从费用明细兜底识别"的场景。
func (r *OrderRepository) MarkProcessed(ctx context.Context, tx *gorm.DB, orderNo string, used, earned float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND processed = ?", orderNo, false).
		Updates(map[string]interface{}{
			"processed":       true,
			"cashback_used":   used,
			"cashback_earned": earned,
			"skip_earning":    used > 0,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// ListUnprocessedPaid 补偿任务用：已进入已支付状态、超过宽限期仍未结算的订单
func (r *OrderRepository) ListUnprocessedPaid(ctx context.Context, paidStatuses []string, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("processed = ? AND status IN ? AND updated_at < ?", false, paidStatuses, before).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
