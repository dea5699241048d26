package service

import (
	"context"
	"testing"

	"cashback/internal/config"
	"cashback/internal/model"
	"cashback/internal/repository"
)

func seedOrder(t *testing.T, svc *SettlementService, order *model.Order) {
	t.Helper()
	if err := svc.orderRepo.Create(context.Background(), nil, order); err != nil {
		t.Fatalf("创建订单失败: %v", err)
	}
}

func seedBalance(t *testing.T, svc *SettlementService, userID int64, amount float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.balanceRepo.GetOrCreate(ctx, userID); err != nil {
		t.Fatalf("创建余额账户失败: %v", err)
	}
	if amount > 0 {
		if err := svc.balanceRepo.Credit(ctx, nil, userID, amount); err != nil {
			t.Fatalf("初始化余额失败: %v", err)
		}
	}
}

func TestSettleEarnsTierCashback(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3001", UserID: 1,
		Subtotal: 700, Total: 700,
		Status: model.OrderStatusCompleted,
	})

	result, err := svc.Settle(ctx, "WC-3001")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("首次结算不应该是 AlreadyProcessed")
	}
	// 700 落在 500 档 → 3% → 21
	if !almostEqual(result.Earned, 21) || !almostEqual(result.Percentage, 3) {
		t.Errorf("result = %+v, want earned 21 percentage 3", result)
	}

	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 21) || !almostEqual(balance.TotalEarned, 21) {
		t.Errorf("balance = %.2f/%.2f, want 21/21", balance.Balance, balance.TotalEarned)
	}

	// 流水与发件箱事件
	order, _ := svc.orderRepo.GetByOrderNo(ctx, "WC-3001")
	if !order.Processed || !almostEqual(order.CashbackEarned, 21) {
		t.Errorf("订单回填 = %+v, want processed + earned 21", order)
	}
	earned, err := svc.transactionRepo.GetByOrderID(ctx, order.ID, model.TransactionTypeEarned)
	if err != nil || earned == nil {
		t.Fatalf("找不到 earned 流水: %v", err)
	}
	if !almostEqual(earned.BalanceBefore, 0) || !almostEqual(earned.BalanceAfter, 21) {
		t.Errorf("earned 流水前后余额 = %.2f/%.2f, want 0/21", earned.BalanceBefore, earned.BalanceAfter)
	}
	outbox, err := svc.outboxRepo.ListPending(ctx, 10)
	if err != nil || len(outbox) != 1 {
		t.Fatalf("发件箱事件 = %d 条, want 1", len(outbox))
	}
	if outbox[0].Topic != "cashback_earned" || outbox[0].MessageKey != "WC-3001" {
		t.Errorf("发件箱事件 = %+v", outbox[0])
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3002", UserID: 1,
		Subtotal: 1000, Total: 1000,
		Status: model.OrderStatusCompleted,
	})

	first, err := svc.Settle(ctx, "WC-3002")
	if err != nil {
		t.Fatalf("首次 Settle 失败: %v", err)
	}
	if !almostEqual(first.Earned, 50) {
		t.Fatalf("首次 earned = %.2f, want 50", first.Earned)
	}

	// 重复信号：成功的空操作，余额不再变动
	for i := 0; i < 3; i++ {
		again, err := svc.Settle(ctx, "WC-3002")
		if err != nil {
			t.Fatalf("重复 Settle 失败: %v", err)
		}
		if !again.AlreadyProcessed {
			t.Fatal("重复结算必须返回 AlreadyProcessed")
		}
	}

	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 50) {
		t.Errorf("重复结算后 balance = %.2f, want 50 (只入账一次)", balance.Balance)
	}
}

func TestSettleWithRedemption(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedBalance(t, svc, 1, 100)
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3003", UserID: 1,
		Subtotal: 1000, Total: 900,
		Status:       model.OrderStatusCompleted,
		CashbackUsed: 100, SkipEarning: true,
	})

	result, err := svc.Settle(ctx, "WC-3003")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}

	// 先扣 100，再对实付部分 900 返现：900 落在 500 档 → 3% → 27
	if !almostEqual(result.Used, 100) || !almostEqual(result.Earned, 27) {
		t.Fatalf("result = %+v, want used 100 earned 27", result)
	}

	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 27) {
		t.Errorf("balance = %.2f, want 27", balance.Balance)
	}
	if !almostEqual(balance.TotalSpent, 100) || !almostEqual(balance.TotalEarned, 127) {
		t.Errorf("累计 = spent %.2f / earned %.2f, want 100 / 127", balance.TotalSpent, balance.TotalEarned)
	}

	// 流水链条：spent 100→0，earned 0→27
	order, _ := svc.orderRepo.GetByOrderNo(ctx, "WC-3003")
	spent, _ := svc.transactionRepo.GetByOrderID(ctx, order.ID, model.TransactionTypeSpent)
	earned, _ := svc.transactionRepo.GetByOrderID(ctx, order.ID, model.TransactionTypeEarned)
	if spent == nil || earned == nil {
		t.Fatal("缺少 spent/earned 流水")
	}
	if !almostEqual(spent.BalanceBefore, 100) || !almostEqual(spent.BalanceAfter, 0) {
		t.Errorf("spent 流水 = %.2f→%.2f, want 100→0", spent.BalanceBefore, spent.BalanceAfter)
	}
	if !almostEqual(spent.BalanceAfter, earned.BalanceBefore) {
		t.Errorf("流水链条断裂: spent after %.2f != earned before %.2f",
			spent.BalanceAfter, earned.BalanceBefore)
	}
	if !almostEqual(earned.BalanceAfter, 27) {
		t.Errorf("earned 流水 after = %.2f, want 27", earned.BalanceAfter)
	}
}

func TestSettleDebitClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	// 快照抵扣 100，但结算时余额只剩 60（被别的订单扣过）
	seedBalance(t, svc, 1, 60)
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3004", UserID: 1,
		Subtotal: 400, Total: 300,
		Status:       model.OrderStatusCompleted,
		CashbackUsed: 100, SkipEarning: true,
	})

	result, err := svc.Settle(ctx, "WC-3004")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}

	// 余额清零而不是报错；基数 300 未达档位，无返现
	if !almostEqual(result.Earned, 0) {
		t.Errorf("earned = %.2f, want 0", result.Earned)
	}
	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 0) {
		t.Errorf("balance = %.2f, want 0 (清零)", balance.Balance)
	}
	if !almostEqual(balance.TotalSpent, 100) {
		t.Errorf("total_spent = %.2f, want 100 (累加请求全额)", balance.TotalSpent)
	}
}

func TestSettleClampsToMaxLimit(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.Cashback.MaxCashbackLimit = 30
	svc := NewSettlementService(db, nil, cfg)
	ctx := context.Background()

	seedBalance(t, svc, 1, 20)
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3005", UserID: 1,
		Subtotal: 1000, Total: 1000,
		Status: model.OrderStatusCompleted,
	})

	result, err := svc.Settle(ctx, "WC-3005")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}

	// 本应返 50，但余额 20 + 50 超过全局上限 30，只入账到上限
	if !almostEqual(result.Earned, 10) {
		t.Errorf("earned = %.2f, want 10 (裁剪到上限)", result.Earned)
	}
	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 30) {
		t.Errorf("balance = %.2f, want 30", balance.Balance)
	}
}

func TestSettleUserMaxLimitOverridesGlobal(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedBalance(t, svc, 1, 0)
	if err := svc.balanceRepo.SetMaxLimit(ctx, 1, 15); err != nil {
		t.Fatalf("SetMaxLimit 失败: %v", err)
	}
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3006", UserID: 1,
		Subtotal: 1000, Total: 1000,
		Status: model.OrderStatusCompleted,
	})

	result, err := svc.Settle(ctx, "WC-3006")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}
	if !almostEqual(result.Earned, 15) {
		t.Errorf("earned = %.2f, want 15 (用户级上限优先于全局 10000)", result.Earned)
	}
}

func TestSettleFeeFallback(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	// 绕过正常下单路径的订单：没有抵扣快照，抵扣藏在费用明细里
	seedBalance(t, svc, 1, 80)
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3007", UserID: 1,
		Subtotal: 600, Total: 550,
		Status: model.OrderStatusCompleted,
		Fees: []model.OrderFee{
			{Name: "Доставка", Amount: 20},
			{Name: "Кешбек оплата", Amount: -50},
		},
	})

	result, err := svc.Settle(ctx, "WC-3007")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}

	// 识别出 50 抵扣；基数 550 → 3% → 16.5
	if !almostEqual(result.Used, 50) {
		t.Errorf("used = %.2f, want 50 (从费用明细识别)", result.Used)
	}
	if !almostEqual(result.Earned, 16.5) {
		t.Errorf("earned = %.2f, want 16.5", result.Earned)
	}
	balance, _ := svc.balanceRepo.GetByUserID(ctx, 1)
	if !almostEqual(balance.Balance, 46.5) {
		t.Errorf("balance = %.2f, want 46.5 (80 - 50 + 16.5)", balance.Balance)
	}
}

func TestSettleAnonymousOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3008", UserID: 0,
		Subtotal: 2000, Total: 2000,
		Status: model.OrderStatusCompleted,
	})

	result, err := svc.Settle(ctx, "WC-3008")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}
	if !almostEqual(result.Earned, 0) {
		t.Errorf("匿名订单 earned = %.2f, want 0", result.Earned)
	}

	order, _ := svc.orderRepo.GetByOrderNo(ctx, "WC-3008")
	if !order.Processed {
		t.Error("匿名订单也要标记结算完成，避免补偿任务反复捡起")
	}

	var count int64
	db.Model(&model.Balance{}).Count(&count)
	if count != 0 {
		t.Errorf("匿名订单不应该创建余额账户, 现有 %d 个", count)
	}
}

func TestSettlePerBrandLogic(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.Cashback.PerBrandLogic = true
	cfg.Cashback.BrandRules = []config.BrandRuleConfig{
		{Type: "product", IDs: []int64{101}, Percentage: 10},
		{Type: "brand", IDs: []int64{7}, Percentage: 8},
	}
	svc := NewSettlementService(db, nil, cfg)
	ctx := context.Background()

	seedBalance(t, svc, 1, 0)
	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3009", UserID: 1,
		Subtotal: 1000, Total: 1000,
		Status: model.OrderStatusCompleted,
		Items: []model.OrderItem{
			{ProductID: 101, Quantity: 1, LineTotal: 400},
			{ProductID: 200, BrandIDs: "7", Quantity: 2, LineTotal: 600},
		},
	})

	result, err := svc.Settle(ctx, "WC-3009")
	if err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}

	// 400×10%（商品规则）+ 600×8%（品牌规则）= 88
	if !almostEqual(result.Earned, 88) {
		t.Errorf("earned = %.2f, want 88", result.Earned)
	}
}

func TestHandleStatusChangeFiltersUnpaid(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())
	ctx := context.Background()

	seedOrder(t, svc, &model.Order{
		OrderNo: "WC-3010", UserID: 1,
		Subtotal: 1000, Total: 1000,
		Status: model.OrderStatusPending,
	})

	result, err := svc.HandleStatusChange(ctx, "WC-3010", model.OrderStatusPending)
	if err != nil || result != nil {
		t.Fatalf("未支付状态 = (%+v, %v), want (nil, nil)", result, err)
	}

	result, err = svc.HandleStatusChange(ctx, "WC-3010", model.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("已支付状态结算失败: %v", err)
	}
	if result == nil || !almostEqual(result.Earned, 50) {
		t.Errorf("result = %+v, want earned 50", result)
	}
}

func TestSettleMissingOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, testConfig())

	_, err := svc.Settle(context.Background(), "no-such-order")
	if err != repository.ErrOrderNotFound {
		t.Errorf("Settle 不存在的订单 = %v, want ErrOrderNotFound", err)
	}
}
