package domain

import (
	"github.com/shopspring/decimal"
)

// executeOpen 市价单按调用方给定的成交价立即成为 OPEN，限价单以同一价格
// 作为限价挂为 PENDING。佣金在开仓时锁定，平仓结算时才从盈亏中扣除。
func executeOpen(s EngineState, ev OpenPositionEvent) (EngineState, []Effect) {
	market := s.Markets[ev.MarketID]

	entry := ev.ExecutionPrice
	status := PositionStatusOpen
	if ev.OrderType == OrderTypeLimit {
		status = PositionStatusPending
	}

	commission := CommissionFee(ev.Size, entry, s.Policy.DefaultCommissionRate)
	if ev.Commission.Valid {
		commission = RoundMoney(ev.Commission.Decimal)
	}

	p := PositionState{
		PositionID:    ev.PositionID,
		AccountID:     ev.AccountID,
		MarketID:      ev.MarketID,
		Side:          ev.Side,
		Size:          ev.Size,
		EntryPrice:    entry,
		Leverage:      ev.Leverage,
		StopLoss:      ev.StopLoss,
		TakeProfit:    ev.TakeProfit,
		MarginUsed:    MarginRequired(ev.Size, entry, ev.Leverage),
		CommissionFee: commission,
		SwapFee:       decimal.Zero,
		Status:        status,
		OpenedAt:      ev.OccurredAt,
	}
	if status == PositionStatusOpen {
		p.UnrealizedPnL = UnrealizedPnL(p.Side, p.Size, p.EntryPrice, market.MarkPrice)
	}
	s.Positions[p.PositionID] = p
	s.Account = recomputeAccount(s.Account, s.Positions)

	effType := EffectPositionOpened
	if status == PositionStatusPending {
		effType = EffectPositionPending
	}
	return s, []Effect{{
		Type:       effType,
		AccountID:  ev.AccountID,
		PositionID: ev.PositionID,
		MarketID:   ev.MarketID,
		Price:      validDec(entry),
		Amount:     validDec(p.MarginUsed),
	}}
}

// fillPending 限价单触发成交。挂单期间不占用保证金，成交时重新核查账户
// 资金，不足则改为撤单而非强行开仓。
func fillPending(s EngineState, p PositionState, filledAt string) (EngineState, []Effect) {
	if s.Account.FreeMargin.LessThan(p.MarginUsed) {
		return cancelPendingFill(s, p, filledAt)
	}
	projectedUsed := s.Account.MarginUsed.Add(p.MarginUsed)
	level := MarginLevel(s.Account.Equity, projectedUsed)
	if level.Valid && level.Decimal.LessThan(s.Policy.SafetyMarginLevel) {
		return cancelPendingFill(s, p, filledAt)
	}
	s, eff := promotePending(s, p, filledAt)
	return s, []Effect{eff}
}

func cancelPendingFill(s EngineState, p PositionState, cancelledAt string) (EngineState, []Effect) {
	p.Status = PositionStatusCancelled
	p.ClosedAt = cancelledAt
	s.Positions[p.PositionID] = p
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{{
		Type:       EffectPositionCancelled,
		AccountID:  p.AccountID,
		PositionID: p.PositionID,
		MarketID:   p.MarketID,
		Price:      validDec(p.EntryPrice),
		Reason:     "INSUFFICIENT_MARGIN",
	}, {
		Type:       EffectMarginReleased,
		AccountID:  p.AccountID,
		PositionID: p.PositionID,
		Amount:     validDec(p.MarginUsed),
	}}
}

// promotePending 限价单成交：PENDING 转 OPEN，入场价取限价。
func promotePending(s EngineState, p PositionState, filledAt string) (EngineState, Effect) {
	p.Status = PositionStatusOpen
	p.OpenedAt = filledAt
	p.UnrealizedPnL = UnrealizedPnL(p.Side, p.Size, p.EntryPrice, s.Markets[p.MarketID].MarkPrice)
	s.Positions[p.PositionID] = p
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, Effect{
		Type:       EffectPositionPromoted,
		AccountID:  p.AccountID,
		PositionID: p.PositionID,
		MarketID:   p.MarketID,
		Price:      validDec(p.EntryPrice),
		Amount:     validDec(p.MarginUsed),
	}
}
