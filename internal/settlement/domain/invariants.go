package domain

import (
	"github.com/shopspring/decimal"
)

// 执行后不变量断言。任何一条失败都意味着引擎缺陷，
// 调用方必须丢弃新状态并保留旧状态。

var hundred = decimal.NewFromInt(100)

// CheckInvariants 对新状态做全量断言，返回第一个被破坏的不变量。
func CheckInvariants(s EngineState) *Violation {
	if v := checkFinancial(s); v != nil {
		return v
	}
	if v := checkPositions(s); v != nil {
		return v
	}
	return nil
}

func checkFinancial(s EngineState) *Violation {
	acc := s.Account
	if acc.Balance.IsNegative() {
		return violation("balance_non_negative", "account %s balance %s is negative", acc.AccountID, acc.Balance)
	}
	if acc.Bonus.IsNegative() {
		return violation("bonus_non_negative", "account %s bonus %s is negative", acc.AccountID, acc.Bonus)
	}
	if acc.MarginUsed.IsNegative() {
		return violation("margin_used_non_negative", "account %s margin used %s is negative", acc.AccountID, acc.MarginUsed)
	}
	if !preciseToCents(acc.Balance) {
		return violation("balance_currency_precision", "account %s balance %s exceeds cent precision", acc.AccountID, acc.Balance)
	}
	if !preciseToCents(acc.Bonus) {
		return violation("bonus_currency_precision", "account %s bonus %s exceeds cent precision", acc.AccountID, acc.Bonus)
	}

	totalUnrealized := decimal.Zero
	totalMargin := decimal.Zero
	for _, p := range s.Positions {
		if p.Status != PositionStatusOpen {
			continue
		}
		totalUnrealized = totalUnrealized.Add(p.UnrealizedPnL)
		totalMargin = totalMargin.Add(p.MarginUsed)
	}
	if !acc.MarginUsed.Equal(totalMargin) {
		return violation("margin_used_consistent", "account %s margin used %s != open position sum %s", acc.AccountID, acc.MarginUsed, totalMargin)
	}
	wantEquity := AccountEquity(acc.Balance, acc.Bonus, totalUnrealized)
	if !acc.Equity.Equal(wantEquity) {
		return violation("equity_consistent", "account %s equity %s != derived %s", acc.AccountID, acc.Equity, wantEquity)
	}
	if !acc.FreeMargin.Equal(acc.Equity.Sub(acc.MarginUsed)) {
		return violation("free_margin_consistent", "account %s free margin %s != equity - margin used", acc.AccountID, acc.FreeMargin)
	}
	wantLevel := MarginLevel(acc.Equity, acc.MarginUsed)
	if acc.MarginLevel.Valid != wantLevel.Valid {
		return violation("margin_level_defined", "account %s margin level validity mismatch", acc.AccountID)
	}
	if acc.MarginLevel.Valid && !acc.MarginLevel.Decimal.Equal(wantLevel.Decimal) {
		return violation("margin_level_consistent", "account %s margin level %s != derived %s", acc.AccountID, acc.MarginLevel.Decimal, wantLevel.Decimal)
	}
	return nil
}

func checkPositions(s EngineState) *Violation {
	for id, p := range s.Positions {
		if p.PositionID != id {
			return violation("position_key_matches_id", "position keyed %s carries id %s", id, p.PositionID)
		}
		if !p.Size.IsPositive() {
			return violation("position_size_positive", "position %s size %s not positive", id, p.Size)
		}
		if !p.EntryPrice.IsPositive() && p.Status != PositionStatusCancelled {
			return violation("position_entry_positive", "position %s entry price %s not positive", id, p.EntryPrice)
		}
		if v := checkStopOrders(p); v != nil {
			return v
		}
		if p.Status == PositionStatusClosed {
			if !p.RealizedPnL.Valid {
				return violation("closed_has_realized_pnl", "closed position %s missing realized pnl", id)
			}
			if !p.ClosedPrice.Valid {
				return violation("closed_has_close_price", "closed position %s missing close price", id)
			}
			if p.ClosedBy == "" {
				return violation("closed_has_reason", "closed position %s missing close reason", id)
			}
		}
		if p.Status != PositionStatusClosed && p.RealizedPnL.Valid {
			return violation("realized_pnl_only_when_closed", "position %s has realized pnl while %s", id, p.Status)
		}
	}
	return nil
}

// checkStopOrders 止损必须在亏损侧、止盈必须在盈利侧。
func checkStopOrders(p PositionState) *Violation {
	if p.Status != PositionStatusOpen && p.Status != PositionStatusPending {
		return nil
	}
	if p.StopLoss.Valid {
		sl := p.StopLoss.Decimal
		if p.Side == SideLong && sl.GreaterThanOrEqual(p.EntryPrice) {
			return violation("stop_loss_on_loss_side", "long position %s stop loss %s >= entry %s", p.PositionID, sl, p.EntryPrice)
		}
		if p.Side == SideShort && sl.LessThanOrEqual(p.EntryPrice) {
			return violation("stop_loss_on_loss_side", "short position %s stop loss %s <= entry %s", p.PositionID, sl, p.EntryPrice)
		}
	}
	if p.TakeProfit.Valid {
		tp := p.TakeProfit.Decimal
		if p.Side == SideLong && tp.LessThanOrEqual(p.EntryPrice) {
			return violation("take_profit_on_profit_side", "long position %s take profit %s <= entry %s", p.PositionID, tp, p.EntryPrice)
		}
		if p.Side == SideShort && tp.GreaterThanOrEqual(p.EntryPrice) {
			return violation("take_profit_on_profit_side", "short position %s take profit %s >= entry %s", p.PositionID, tp, p.EntryPrice)
		}
	}
	return nil
}

func preciseToCents(v decimal.Decimal) bool {
	return v.Mul(hundred).Equal(v.Mul(hundred).Round(0))
}

// positionStatusTransition 状态机：PENDING→{OPEN,CANCELLED}，OPEN→CLOSED。
func positionStatusTransition(from, to PositionStatus) bool {
	switch from {
	case PositionStatusPending:
		return to == PositionStatusOpen || to == PositionStatusCancelled
	case PositionStatusOpen:
		return to == PositionStatusClosed
	default:
		return false
	}
}

// accountStatusTransition ACTIVE↔LIQUIDATION_ONLY，任意状态可关闭。
func accountStatusTransition(from, to AccountStatus) bool {
	if to == AccountStatusClosed {
		return true
	}
	switch from {
	case AccountStatusActive:
		return to == AccountStatusLiquidationOnly
	case AccountStatusLiquidationOnly:
		return to == AccountStatusActive
	default:
		return false
	}
}
