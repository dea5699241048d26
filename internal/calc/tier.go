package calc

import (
	"sort"

	"cashback/internal/config"
	"cashback/pkg/money"
)

// Tier 返现档位
type Tier struct {
	Threshold  float64
	Percentage float64
}

// Enabled 比例为正才算启用
func (t Tier) Enabled() bool {
	return t.Percentage > 0
}

// TierCalculator 按订单小计匹配返现比例
//
// 三个档位是固定槽位：匹配时永远先查第3档、再第2档、再第1档，
// 不对阈值排序。正常配置下阈值升序，降序检查自然命中最高档；
// 配置乱序时行为与老系统一致（可能跳档），加载配置时已告警。
type TierCalculator struct {
	Tier1 Tier
	Tier2 Tier
	Tier3 Tier
}

// NewTierCalculator 从业务配置构建档位计算器
func NewTierCalculator(cfg *config.CashbackConfig) *TierCalculator {
	return &TierCalculator{
		Tier1: Tier{Threshold: cfg.Tier1.Threshold, Percentage: cfg.Tier1.Percentage},
		Tier2: Tier{Threshold: cfg.Tier2.Threshold, Percentage: cfg.Tier2.Percentage},
		Tier3: Tier{Threshold: cfg.Tier3.Threshold, Percentage: cfg.Tier3.Percentage},
	}
}

// Percentage 返回小计对应的返现比例，没有命中任何档位时返回 0
func (c *TierCalculator) Percentage(subtotal float64) float64 {
	if subtotal >= c.Tier3.Threshold && c.Tier3.Enabled() {
		return c.Tier3.Percentage
	}
	if subtotal >= c.Tier2.Threshold && c.Tier2.Enabled() {
		return c.Tier2.Percentage
	}
	if subtotal >= c.Tier1.Threshold && c.Tier1.Enabled() {
		return c.Tier1.Percentage
	}
	return 0
}

// Amount 计算小计对应的返现金额，保留两位小数
func (c *TierCalculator) Amount(subtotal float64) float64 {
	pct := c.Percentage(subtotal)
	if pct <= 0 {
		return 0
	}
	return money.Percent(subtotal, pct)
}

// ActiveTiers 返回启用的档位（按槽位顺序 1/2/3，供展示）
func (c *TierCalculator) ActiveTiers() []Tier {
	tiers := make([]Tier, 0, 3)
	for _, t := range []Tier{c.Tier1, c.Tier2, c.Tier3} {
		if t.Enabled() {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// NextTier 返回阈值高于当前小计的最低启用档位
// 用于购物车提示"再买 X 元可得 Y% 返现"，没有更高档位时返回 nil
func (c *TierCalculator) NextTier(subtotal float64) *Tier {
	tiers := c.ActiveTiers()
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold < tiers[j].Threshold
	})
	for _, t := range tiers {
		if subtotal < t.Threshold {
			tier := t
			return &tier
		}
	}
	return nil
}
