package calc

import (
	"testing"

	"cashback/internal/config"
)

func defaultTiers() *TierCalculator {
	return NewTierCalculator(&config.CashbackConfig{
		Tier1: config.TierConfig{Threshold: 500, Percentage: 3},
		Tier2: config.TierConfig{Threshold: 1000, Percentage: 5},
		Tier3: config.TierConfig{Threshold: 1500, Percentage: 7},
	})
}

func TestTierPercentage(t *testing.T) {
	tiers := defaultTiers()

	cases := []struct {
		subtotal float64
		want     float64
	}{
		{0, 0},
		{499.99, 0},
		{500, 3},
		{999.99, 3},
		{1000, 5},
		{1499.99, 5},
		{1500, 7},
		{99999, 7},
	}

	for _, tc := range cases {
		if got := tiers.Percentage(tc.subtotal); got != tc.want {
			t.Errorf("Percentage(%.2f) = %.2f, want %.2f", tc.subtotal, got, tc.want)
		}
	}
}

func TestTierAmount(t *testing.T) {
	tiers := defaultTiers()

	cases := []struct {
		subtotal float64
		want     float64
	}{
		{500, 15},
		{700, 21},
		{1000, 50},
		{1500, 105},
		{333.33, 0},   // 未达到任何档位
		{555.55, 16.67}, // 3% = 16.6665，四舍五入到两位
	}

	for _, tc := range cases {
		if got := tiers.Amount(tc.subtotal); got != tc.want {
			t.Errorf("Amount(%.2f) = %.2f, want %.2f", tc.subtotal, got, tc.want)
		}
	}
}

func TestTierDisabledSlot(t *testing.T) {
	// 第3档停用时，超过其阈值的订单落到第2档
	tiers := NewTierCalculator(&config.CashbackConfig{
		Tier1: config.TierConfig{Threshold: 500, Percentage: 3},
		Tier2: config.TierConfig{Threshold: 1000, Percentage: 5},
		Tier3: config.TierConfig{Threshold: 1500, Percentage: 0},
	})

	if got := tiers.Percentage(2000); got != 5 {
		t.Errorf("Percentage(2000) = %.2f, want 5 (第3档停用)", got)
	}

	// 全部停用时不返现
	none := NewTierCalculator(&config.CashbackConfig{})
	if got := none.Amount(5000); got != 0 {
		t.Errorf("全部档位停用时 Amount(5000) = %.2f, want 0", got)
	}
}

func TestTierFixedSlotOrder(t *testing.T) {
	// 阈值乱序配置：第2档阈值高于第3档。匹配仍按 3→2→1 固定顺序，
	// 小计 1800 先命中第3档（阈值 1500），不会因为排序取到第2档
	tiers := NewTierCalculator(&config.CashbackConfig{
		Tier1: config.TierConfig{Threshold: 500, Percentage: 3},
		Tier2: config.TierConfig{Threshold: 2000, Percentage: 5},
		Tier3: config.TierConfig{Threshold: 1500, Percentage: 7},
	})

	if got := tiers.Percentage(1800); got != 7 {
		t.Errorf("Percentage(1800) = %.2f, want 7 (固定槽位顺序)", got)
	}
	// 1200 不满足第3档也不满足第2档，落到第1档
	if got := tiers.Percentage(1200); got != 3 {
		t.Errorf("Percentage(1200) = %.2f, want 3", got)
	}
}

func TestNextTier(t *testing.T) {
	tiers := defaultTiers()

	next := tiers.NextTier(300)
	if next == nil || next.Threshold != 500 {
		t.Fatalf("NextTier(300) = %+v, want 阈值 500", next)
	}

	next = tiers.NextTier(1200)
	if next == nil || next.Threshold != 1500 || next.Percentage != 7 {
		t.Fatalf("NextTier(1200) = %+v, want 阈值 1500 比例 7", next)
	}

	if next = tiers.NextTier(1500); next != nil {
		t.Fatalf("NextTier(1500) = %+v, want nil (已在最高档)", next)
	}
}

func TestActiveTiers(t *testing.T) {
	tiers := NewTierCalculator(&config.CashbackConfig{
		Tier1: config.TierConfig{Threshold: 500, Percentage: 3},
		Tier3: config.TierConfig{Threshold: 1500, Percentage: 7},
	})

	active := tiers.ActiveTiers()
	if len(active) != 2 {
		t.Fatalf("ActiveTiers() 返回 %d 个档位, want 2", len(active))
	}
	if active[0].Threshold != 500 || active[1].Threshold != 1500 {
		t.Errorf("ActiveTiers() = %+v, 顺序不对", active)
	}
}
