package domain

import (
	"github.com/shopspring/decimal"
)

// 资金计算域服务。所有货币金额在落账前统一银行家舍入到 2 位小数，
// 中间量保持全精度。

// RoundMoney 银行家舍入到 2 位小数。
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(2)
}

// UnrealizedPnL 浮动盈亏。
// LONG:  (mark - entry) * size
// SHORT: (entry - mark) * size
func UnrealizedPnL(side Side, size, entryPrice, markPrice decimal.Decimal) decimal.Decimal {
	if side == SideShort {
		return entryPrice.Sub(markPrice).Mul(size)
	}
	return markPrice.Sub(entryPrice).Mul(size)
}

// RealizedPnL 平仓结算盈亏。费用顺序固定：原始盈亏、减佣金、减隔夜费、舍入。
func RealizedPnL(side Side, size, entryPrice, closePrice, commission, swap decimal.Decimal) decimal.Decimal {
	raw := UnrealizedPnL(side, size, entryPrice, closePrice)
	return RoundMoney(raw.Sub(commission).Sub(swap))
}

// MarginRequired 开仓占用保证金 = size * entry / leverage。
func MarginRequired(size, entryPrice, leverage decimal.Decimal) decimal.Decimal {
	if leverage.IsZero() {
		return decimal.Zero
	}
	return size.Mul(entryPrice).Div(leverage)
}

// CommissionFee 按名义价值计算佣金。
func CommissionFee(size, entryPrice, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(size.Mul(entryPrice).Mul(rate))
}

// SwapFee 按持仓天数计算隔夜费。
func SwapFee(size, entryPrice, dailyRate decimal.Decimal, days int64) decimal.Decimal {
	return RoundMoney(size.Mul(entryPrice).Mul(dailyRate).Mul(decimal.NewFromInt(days)))
}

// AccountEquity 净值 = 余额 + 赠金 + 浮动盈亏合计。
func AccountEquity(balance, bonus, totalUnrealized decimal.Decimal) decimal.Decimal {
	return balance.Add(bonus).Add(totalUnrealized)
}

// FreeMargin 可用保证金 = 净值 - 已用保证金。
func FreeMargin(equity, marginUsed decimal.Decimal) decimal.Decimal {
	return equity.Sub(marginUsed)
}

// MarginLevel 保证金水平百分比 = equity / marginUsed * 100。
// marginUsed 不为正数时未定义，返回 Valid=false，绝不除零。
func MarginLevel(equity, marginUsed decimal.Decimal) decimal.NullDecimal {
	if !marginUsed.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: equity.Div(marginUsed).Mul(decimal.NewFromInt(100)),
		Valid:   true,
	}
}
