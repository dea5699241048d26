package service

import (
	"context"
	"testing"

	"cashback/internal/model"
	"cashback/internal/repository"
)

func TestResetBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())
	ctx := context.Background()

	if _, err := svc.balanceRepo.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("GetOrCreate 失败: %v", err)
	}
	if err := svc.balanceRepo.Credit(ctx, nil, 1, 120); err != nil {
		t.Fatalf("Credit 失败: %v", err)
	}

	previous, err := svc.ResetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("ResetBalance 失败: %v", err)
	}
	if !almostEqual(previous, 120) {
		t.Errorf("previous = %.2f, want 120", previous)
	}

	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 0) {
		t.Errorf("balance = %.2f, want 0", balance.Balance)
	}
	// 清零不回滚累计值
	if !almostEqual(balance.TotalEarned, 120) {
		t.Errorf("total_earned = %.2f, want 120", balance.TotalEarned)
	}

	// 留下一条 adjustment 流水：金额 = 清零前余额，前后余额 120→0
	list, total, err := svc.transactionRepo.ListByUserID(ctx, 1, 10, 0)
	if err != nil {
		t.Fatalf("ListByUserID 失败: %v", err)
	}
	if total != 1 {
		t.Fatalf("流水 %d 条, want 1", total)
	}
	adj := list[0]
	if adj.Type != model.TransactionTypeAdjustment {
		t.Errorf("流水类型 = %s, want adjustment", adj.Type)
	}
	if !almostEqual(adj.Amount, 120) || !almostEqual(adj.BalanceBefore, 120) || !almostEqual(adj.BalanceAfter, 0) {
		t.Errorf("adjustment 流水 = amount %.2f %.2f→%.2f, want 120 120→0",
			adj.Amount, adj.BalanceBefore, adj.BalanceAfter)
	}
}

func TestResetBalanceMissingAccount(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())

	if _, err := svc.ResetBalance(context.Background(), 42); err != repository.ErrBalanceNotFound {
		t.Errorf("ResetBalance 不存在的账户 = %v, want ErrBalanceNotFound", err)
	}
}

func TestPreviewPotentialAndNextTier(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())
	ctx := context.Background()

	if _, err := svc.balanceRepo.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("GetOrCreate 失败: %v", err)
	}
	if err := svc.balanceRepo.Credit(ctx, nil, 1, 30); err != nil {
		t.Fatalf("Credit 失败: %v", err)
	}

	// 小计 600：3% 档，潜在返现 18，最多可抵扣 min(30, 300) = 30
	result, err := svc.Preview(ctx, 1, 600, 0)
	if err != nil {
		t.Fatalf("Preview 失败: %v", err)
	}
	if !almostEqual(result.Potential, 18) || !almostEqual(result.Percentage, 3) {
		t.Errorf("potential = %.2f/%.2f%%, want 18/3%%", result.Potential, result.Percentage)
	}
	if !almostEqual(result.MaxRedeemable, 30) {
		t.Errorf("max_redeemable = %.2f, want 30", result.MaxRedeemable)
	}
	if result.NextTier != nil {
		t.Errorf("已有潜在返现时 next_tier = %+v, want nil", result.NextTier)
	}

	// 小计 100：未达任何档位 → 提示差 400 到第1档
	result, err = svc.Preview(ctx, 1, 100, 0)
	if err != nil {
		t.Fatalf("Preview 失败: %v", err)
	}
	if !almostEqual(result.Potential, 0) {
		t.Errorf("potential = %.2f, want 0", result.Potential)
	}
	if result.NextTier == nil || !almostEqual(result.NextTier.Threshold, 500) || !almostEqual(result.NextTier.Remaining, 400) {
		t.Errorf("next_tier = %+v, want 阈值 500 差 400", result.NextTier)
	}

	// 使用了抵扣的购物车不展示潜在返现
	result, err = svc.Preview(ctx, 1, 600, 20)
	if err != nil {
		t.Fatalf("Preview 失败: %v", err)
	}
	if !almostEqual(result.Potential, 0) {
		t.Errorf("applied > 0 时 potential = %.2f, want 0", result.Potential)
	}
}

func TestPreviewAnonymousUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())

	// 匿名用户：不建账户，但仍展示潜在返现吸引注册
	result, err := svc.Preview(context.Background(), 0, 1000, 0)
	if err != nil {
		t.Fatalf("Preview 失败: %v", err)
	}
	if !almostEqual(result.Balance, 0) || !almostEqual(result.MaxRedeemable, 0) {
		t.Errorf("匿名用户 balance/max = %.2f/%.2f, want 0/0", result.Balance, result.MaxRedeemable)
	}
	if !almostEqual(result.Potential, 50) {
		t.Errorf("potential = %.2f, want 50", result.Potential)
	}
}

func TestSetMaxLimitCreatesAccount(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())
	ctx := context.Background()

	// 对还没有账户的用户设置上限时先懒创建
	if err := svc.SetMaxLimit(ctx, 9, 300); err != nil {
		t.Fatalf("SetMaxLimit 失败: %v", err)
	}

	balance, err := svc.balanceRepo.GetByUserID(ctx, 9)
	if err != nil {
		t.Fatalf("GetByUserID 失败: %v", err)
	}
	if balance.MaxLimit == nil || *balance.MaxLimit != 300 {
		t.Errorf("max_limit = %v, want 300", balance.MaxLimit)
	}
}

func TestStatistics(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, testConfig())
	ctx := context.Background()

	for userID, amount := range map[int64]float64{1: 25, 2: 75} {
		if _, err := svc.balanceRepo.GetOrCreate(ctx, userID); err != nil {
			t.Fatalf("GetOrCreate 失败: %v", err)
		}
		if err := svc.balanceRepo.Credit(ctx, nil, userID, amount); err != nil {
			t.Fatalf("Credit 失败: %v", err)
		}
	}

	stats, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics 失败: %v", err)
	}
	if !almostEqual(stats.TotalBalance, 100) || stats.TotalUsers != 2 {
		t.Errorf("Statistics = %+v, want 余额 100 / 2 个用户", stats)
	}
}
