package money

import (
	"github.com/shopspring/decimal"
)

// Round2 金额保留两位小数（四舍五入）
//
// 返现金额统一以"分"为最小精度。直接用 float64 乘除会引入
// 0.1+0.2 != 0.3 这类二进制浮点误差，所以舍入统一走 decimal。
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Round1 百分比保留一位小数（用于展示实际返现比例）
func Round1(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return f
}

// Percent 计算 base * pct / 100 并保留两位小数
func Percent(base, pct float64) float64 {
	d := decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2)
	f, _ := d.Float64()
	return f
}
