package repository

import (
	"context"

	"cashback/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 返现流水，只有插入和查询，没有更新和删除
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.CashbackTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// ListByUserID 按创建时间倒序分页，同一时刻的流水按ID倒序保证链条稳定
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*model.CashbackTransaction, int64, error) {
	var transactions []*model.CashbackTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CashbackTransaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&transactions).Error

	return transactions, total, err
}

// GetByOrderID 查订单的最近一条指定类型流水
func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID int64, transactionType string) (*model.CashbackTransaction, error) {
	var trans model.CashbackTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, transactionType).
		Order("created_at DESC, id DESC").
		First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.CashbackTransaction, error) {
	var trans model.CashbackTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}
