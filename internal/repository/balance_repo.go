package repository

import (
	"context"
	"errors"

	"cashback/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound = errors.New("余额账户不存在")
)

// 管理页列表允许的排序字段白名单
var allowedOrderBy = map[string]bool{
	"balance":      true,
	"total_earned": true,
	"total_spent":  true,
	"created_at":   true,
	"updated_at":   true,
}

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreate 首次访问时懒创建零余额账户
func (r *BalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Balance, error) {
	balance, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.Balance{
		UserID:  userID,
		Balance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// GetForUpdate 带行锁读取余额，结算事务内计算变动前后余额时使用
// sqlite 不支持 FOR UPDATE（整库锁本身就串行化了写入），跳过行锁
func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Balance, error) {
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var balance model.Balance
	err := query.
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// Credit 入账：balance += amount, total_earned += amount
//
// 余额上限不在这一层校验，调用方必须先按生效上限裁剪金额。
// 原子 UPDATE，同一用户不同订单并发结算不会丢更新。
func (r *BalanceRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// Debit 扣减：balance = max(0, balance - amount), total_spent += amount
//
// 余额不足时不报错，直接清零（兼容老系统行为）。total_spent 仍然
// 累加请求的全额，配合流水里的前后余额可以看出是否发生过裁剪。
func (r *BalanceRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":     gorm.Expr("CASE WHEN balance > ? THEN balance - ? ELSE 0 END", amount, amount),
			"total_spent": gorm.Expr("total_spent + ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// SetBalance 管理员调整：直接设置余额，不动累计值
func (r *BalanceRepository) SetBalance(ctx context.Context, tx *gorm.DB, userID int64, amount float64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ?", userID).
		Update("balance", amount)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// SetMaxLimit 设置用户级余额上限，limit <= 0 表示恢复使用全局上限
func (r *BalanceRepository) SetMaxLimit(ctx context.Context, userID int64, limit float64) error {
	var value interface{}
	if limit > 0 {
		value = limit
	} else {
		value = nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Balance{}).
		Where("user_id = ?", userID).
		Update("max_limit", value)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// List 管理页余额列表，orderBy 必须在白名单内，否则按 balance 排
func (r *BalanceRepository) List(ctx context.Context, orderBy, order string, limit, offset int) ([]*model.Balance, int64, error) {
	if !allowedOrderBy[orderBy] {
		orderBy = "balance"
	}
	if order != "asc" {
		order = "desc"
	}

	var balances []*model.Balance
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Balance{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order(orderBy + " " + order).
		Limit(limit).
		Offset(offset).
		Find(&balances).Error

	return balances, total, err
}

// Statistics 余额总览
type Statistics struct {
	TotalBalance float64 `json:"total_balance"`
	TotalEarned  float64 `json:"total_earned"`
	TotalSpent   float64 `json:"total_spent"`
	TotalUsers   int64   `json:"total_users"`
}

func (r *BalanceRepository) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := r.db.WithContext(ctx).
		Model(&model.Balance{}).
		Select("COALESCE(SUM(balance), 0) AS total_balance, " +
			"COALESCE(SUM(total_earned), 0) AS total_earned, " +
			"COALESCE(SUM(total_spent), 0) AS total_spent, " +
			"COUNT(*) AS total_users").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
