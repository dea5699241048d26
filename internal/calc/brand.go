package calc

import (
	"cashback/internal/config"
	"cashback/pkg/money"
)

const (
	BrandRuleTypeProduct = "product"
	BrandRuleTypeBrand   = "brand"
)

// BrandRule 品牌/商品级返现规则
type BrandRule struct {
	Type       string
	IDs        []int64
	Percentage float64
}

// LineItem 参与返现计算的订单行项目
type LineItem struct {
	ProductID int64
	BrandIDs  []int64
	LineTotal float64
}

// BrandOverrideCalculator 按行项目解析返现比例
//
// 每行的比例按优先级取第一条命中的规则：
//   商品规则（product_id 命中）> 品牌规则（brand_ids 有交集）> 整单档位兜底
//
// 使用了返现抵扣时，每行的计算基数先乘以 (小计-抵扣)/小计，
// 把"实付部分"按比例摊到各行，只对真正付钱的部分计算返现。
type BrandOverrideCalculator struct {
	Rules []BrandRule
	Tiers *TierCalculator
}

// NewBrandOverrideCalculator 从业务配置构建品牌规则计算器
func NewBrandOverrideCalculator(cfg *config.CashbackConfig, tiers *TierCalculator) *BrandOverrideCalculator {
	rules := make([]BrandRule, 0, len(cfg.BrandRules))
	for _, r := range cfg.BrandRules {
		rules = append(rules, BrandRule{
			Type:       r.Type,
			IDs:        r.IDs,
			Percentage: r.Percentage,
		})
	}
	return &BrandOverrideCalculator{Rules: rules, Tiers: tiers}
}

// Calculate 计算整单返现金额
//
// subtotal 为订单小计，used 为本单抵扣的返现。
// 没有行项目数据时退化为整单档位计算（基数 = 小计 - 抵扣）。
func (c *BrandOverrideCalculator) Calculate(items []LineItem, subtotal, used float64) float64 {
	base := subtotal - used
	if base < 0 {
		base = 0
	}
	if len(items) == 0 {
		return c.Tiers.Amount(base)
	}

	ratio := 1.0
	if subtotal > 0 && used > 0 {
		ratio = base / subtotal
	}

	// 兜底比例按整单小计算档位，与行项目无关
	fallback := c.Tiers.Percentage(subtotal)

	total := 0.0
	for _, item := range items {
		pct := c.linePercentage(item, fallback)
		if pct <= 0 {
			continue
		}
		total += money.Percent(item.LineTotal*ratio, pct)
	}
	return money.Round2(total)
}

// linePercentage 解析单行的返现比例，规则按配置顺序取第一条命中的
func (c *BrandOverrideCalculator) linePercentage(item LineItem, fallback float64) float64 {
	for _, r := range c.Rules {
		if r.Type != BrandRuleTypeProduct {
			continue
		}
		if containsID(r.IDs, item.ProductID) {
			return r.Percentage
		}
	}
	for _, r := range c.Rules {
		if r.Type != BrandRuleTypeBrand {
			continue
		}
		if intersects(r.IDs, item.BrandIDs) {
			return r.Percentage
		}
	}
	return fallback
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intersects(a, b []int64) bool {
	for _, v := range b {
		if containsID(a, v) {
			return true
		}
	}
	return false
}
