package domain

import (
	"github.com/shopspring/decimal"
)

// 触发判定。边界价视为触发（包含式比较）。

// StopLossHit 止损触发判定。
// LONG 在价格 <= SL 时触发，SHORT 在价格 >= SL 时触发。
func StopLossHit(p PositionState, markPrice decimal.Decimal) bool {
	if p.Status != PositionStatusOpen || !p.StopLoss.Valid {
		return false
	}
	if p.Side == SideLong {
		return markPrice.LessThanOrEqual(p.StopLoss.Decimal)
	}
	return markPrice.GreaterThanOrEqual(p.StopLoss.Decimal)
}

// TakeProfitHit 止盈触发判定。
// LONG 在价格 >= TP 时触发，SHORT 在价格 <= TP 时触发。
func TakeProfitHit(p PositionState, markPrice decimal.Decimal) bool {
	if p.Status != PositionStatusOpen || !p.TakeProfit.Valid {
		return false
	}
	if p.Side == SideLong {
		return markPrice.GreaterThanOrEqual(p.TakeProfit.Decimal)
	}
	return markPrice.LessThanOrEqual(p.TakeProfit.Decimal)
}

// LimitFillable 限价单是否可成交。
// LONG 在标记价 <= 限价时成交，SHORT 在标记价 >= 限价时成交。
func LimitFillable(p PositionState, markPrice decimal.Decimal) bool {
	if p.Status != PositionStatusPending {
		return false
	}
	if p.Side == SideLong {
		return markPrice.LessThanOrEqual(p.EntryPrice)
	}
	return markPrice.GreaterThanOrEqual(p.EntryPrice)
}
