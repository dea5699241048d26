package service

import (
	"context"
	"fmt"

	"cashback/internal/calc"
	"cashback/internal/config"
	"cashback/internal/model"
	"cashback/internal/repository"
	"cashback/pkg/idgen"
	"cashback/pkg/money"

	"gorm.io/gorm"
)

// BalanceService 余额查询和管理操作
type BalanceService struct {
	balanceRepo     *repository.BalanceRepository
	transactionRepo *repository.TransactionRepository
	tiers           *calc.TierCalculator
	db              *gorm.DB
	cfg             *config.Config
}

func NewBalanceService(db *gorm.DB, cfg *config.Config) *BalanceService {
	return &BalanceService{
		balanceRepo:     repository.NewBalanceRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		tiers:           calc.NewTierCalculator(&cfg.Cashback),
		db:              db,
		cfg:             cfg,
	}
}

// GetBalance 查询余额，账户不存在时懒创建
func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	return s.balanceRepo.GetOrCreate(ctx, userID)
}

// History 用户流水，按时间倒序分页
func (s *BalanceService) History(ctx context.Context, userID int64, limit, offset int) ([]*model.CashbackTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, limit, offset)
}

// PreviewResult 购物车/结算页的返现展示数据
type PreviewResult struct {
	UserID        int64   `json:"user_id"`
	Balance       float64 `json:"balance"`
	Applied       float64 `json:"applied"`
	MaxRedeemable float64 `json:"max_redeemable"`
	// Potential 本单潜在返现；使用了抵扣时为 0（抵扣单不在购物车提示返现）
	Potential  float64 `json:"potential"`
	Percentage float64 `json:"percentage"`
	// NextTier 差多少能到下一档，没有更高档位时为空
	NextTier *NextTierHint `json:"next_tier,omitempty"`
}

type NextTierHint struct {
	Threshold  float64 `json:"threshold"`
	Percentage float64 `json:"percentage"`
	Remaining  float64 `json:"remaining"`
}

// Preview 返回购物车展示所需的全部返现数据
func (s *BalanceService) Preview(ctx context.Context, userID int64, cartSubtotal, applied float64) (*PreviewResult, error) {
	result := &PreviewResult{UserID: userID, Applied: applied}

	if userID > 0 {
		balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		result.Balance = balance.Balance
		result.MaxRedeemable = calc.MaxRedeemable(balance.Balance, cartSubtotal, s.cfg.Cashback.UsageLimitPercentage)
	}

	if applied <= 0 {
		result.Potential = s.tiers.Amount(cartSubtotal)
		if cartSubtotal > 0 && result.Potential > 0 {
			result.Percentage = money.Round1(result.Potential / cartSubtotal * 100)
		}
	}

	if result.Potential <= 0 {
		if next := s.tiers.NextTier(cartSubtotal); next != nil {
			result.NextTier = &NextTierHint{
				Threshold:  next.Threshold,
				Percentage: next.Percentage,
				Remaining:  money.Round2(next.Threshold - cartSubtotal),
			}
		}
	}

	return result, nil
}

// ResetBalance 管理员清零
//
// 直接把余额设为 0，不动累计值，并记一条 adjustment 流水，
// 金额为清零前的余额。返回清零前的余额。
func (s *BalanceService) ResetBalance(ctx context.Context, userID int64) (float64, error) {
	var before float64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.balanceRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		before = balance.Balance

		if err := s.balanceRepo.SetBalance(ctx, tx, userID, 0); err != nil {
			return fmt.Errorf("清零失败: %w", err)
		}

		return s.transactionRepo.Create(ctx, tx, &model.CashbackTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			OrderID:       0,
			Type:          model.TransactionTypeAdjustment,
			Amount:        before,
			BalanceBefore: before,
			BalanceAfter:  0,
			Description:   "管理员清零余额",
		})
	})
	if err != nil {
		return 0, err
	}
	return before, nil
}

// SetMaxLimit 设置用户级余额上限
func (s *BalanceService) SetMaxLimit(ctx context.Context, userID int64, limit float64) error {
	if _, err := s.balanceRepo.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.balanceRepo.SetMaxLimit(ctx, userID, limit)
}

// ListBalances 管理页余额列表
func (s *BalanceService) ListBalances(ctx context.Context, orderBy, order string, limit, offset int) ([]*model.Balance, int64, error) {
	return s.balanceRepo.List(ctx, orderBy, order, limit, offset)
}

// Statistics 余额总览
func (s *BalanceService) Statistics(ctx context.Context) (*repository.Statistics, error) {
	return s.balanceRepo.Statistics(ctx)
}
