package calc

import (
	"cashback/pkg/money"
)

// MaxRedeemable 单笔订单最多可抵扣的返现
// 取余额和"小计 × 使用上限比例"的较小值
func MaxRedeemable(balance, cartSubtotal, usagePercent float64) float64 {
	cap := money.Percent(cartSubtotal, usagePercent)
	if balance < cap {
		cap = balance
	}
	if cap < 0 {
		return 0
	}
	return money.Round2(cap)
}

// ClampRedemption 把用户请求的抵扣金额裁剪到 [0, MaxRedeemable]
//
// 请求超限时不报错，静默裁到最大可用值（对外返回实际生效的金额）；
// 非正数请求视为"取消抵扣"，返回 0
func ClampRedemption(requested, balance, cartSubtotal, usagePercent float64) float64 {
	if requested <= 0 {
		return 0
	}
	max := MaxRedeemable(balance, cartSubtotal, usagePercent)
	if requested > max {
		return max
	}
	return money.Round2(requested)
}
