package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback/internal/calc"
	"cashback/internal/config"
	"cashback/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrAnonymousUser = errors.New("匿名用户不能使用返现")
)

// RedemptionService 管理"本单抵扣多少返现"的选择
//
// 金额在三个时点校验：用户选择时、购物车重算时（余额可能已变）、
// 下单落快照时（由订单服务再裁剪一次）。超限一律静默裁剪到最大
// 可用值，不报错。
type RedemptionService struct {
	balanceRepo *repository.BalanceRepository
	pending     PendingStore
	cfg         *config.Config
}

func NewRedemptionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RedemptionService {
	ttl := time.Duration(cfg.Cashback.PendingTTLMinutes) * time.Minute
	return &RedemptionService{
		balanceRepo: repository.NewBalanceRepository(db),
		pending:     NewRedisPendingStore(redisClient, ttl),
		cfg:         cfg,
	}
}

// Apply 用户选择抵扣金额，返回裁剪后实际生效的金额
// 非正数请求视为取消抵扣
func (s *RedemptionService) Apply(ctx context.Context, userID int64, amount, cartSubtotal float64) (float64, error) {
	if userID <= 0 {
		return 0, ErrAnonymousUser
	}

	if amount <= 0 {
		if err := s.pending.Set(ctx, userID, 0); err != nil {
			return 0, fmt.Errorf("重置待使用返现失败: %w", err)
		}
		return 0, nil
	}

	balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("获取余额失败: %w", err)
	}

	clamped := calc.ClampRedemption(amount, balance.Balance, cartSubtotal, s.cfg.Cashback.UsageLimitPercentage)
	if err := s.pending.Set(ctx, userID, clamped); err != nil {
		return 0, fmt.Errorf("保存待使用返现失败: %w", err)
	}
	return clamped, nil
}

// Applied 当前会话已选择的抵扣金额
func (s *RedemptionService) Applied(ctx context.Context, userID int64) (float64, error) {
	if userID <= 0 {
		return 0, nil
	}
	return s.pending.Get(ctx, userID)
}

// Remove 取消抵扣
func (s *RedemptionService) Remove(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	return s.pending.Clear(ctx, userID)
}

// ValidateForCart 购物车重算时复核抵扣金额
//
// 从选择到重算之间余额可能被其他订单的结算扣减，这里重新对
// 当前余额裁剪；裁剪后的值回写会话，返回实际可抵扣的金额。
func (s *RedemptionService) ValidateForCart(ctx context.Context, userID int64, cartSubtotal float64) (float64, error) {
	if userID <= 0 {
		return 0, nil
	}

	applied, err := s.pending.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if applied <= 0 {
		return 0, nil
	}

	balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}

	clamped := calc.ClampRedemption(applied, balance.Balance, cartSubtotal, s.cfg.Cashback.UsageLimitPercentage)
	if clamped != applied {
		if err := s.pending.Set(ctx, userID, clamped); err != nil {
			return 0, err
		}
	}
	return clamped, nil
}

// ClearOnLogin 登录时清除残留的抵扣选择
func (s *RedemptionService) ClearOnLogin(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	return s.pending.Clear(ctx, userID)
}

// ClearOnLogout 登出时清除抵扣选择
func (s *RedemptionService) ClearOnLogout(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	return s.pending.Clear(ctx, userID)
}
