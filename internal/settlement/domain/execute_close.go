package domain

import (
	"github.com/shopspring/decimal"
)

// settleClose 以给定成交价结算一笔 OPEN 持仓。手动与后台平仓用事件携带的
// 价格，触发类平仓用标记价。
// 结算顺序固定：原始盈亏、扣佣金、扣隔夜费、银行家舍入，再入账。
// 亏损先吃余额，余额不足部分由赠金吸收，穿仓时余额归零（负余额保护）。
func settleClose(s EngineState, p PositionState, closePrice decimal.Decimal, reason CloseReason, closedAt string) (EngineState, []Effect) {
	realized := RealizedPnL(p.Side, p.Size, p.EntryPrice, closePrice, p.CommissionFee, p.SwapFee)
	releasedMargin := p.MarginUsed

	balance := s.Account.Balance.Add(realized)
	bonus := s.Account.Bonus
	if balance.IsNegative() {
		shortfall := balance.Neg()
		absorbed := decimal.Min(shortfall, bonus)
		bonus = bonus.Sub(absorbed)
		balance = absorbed.Sub(shortfall)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
	}

	p.Status = PositionStatusClosed
	p.ClosedBy = reason
	p.ClosedAt = closedAt
	p.ClosedPrice = validDec(closePrice)
	p.RealizedPnL = validDec(realized)
	p.UnrealizedPnL = decimal.Zero
	s.Positions[p.PositionID] = p

	s.Account.Balance = balance
	s.Account.Bonus = bonus
	s.Account = recomputeAccount(s.Account, s.Positions)

	closedType := EffectPositionClosed
	if reason == ClosedByMarginCall {
		closedType = EffectPositionLiquidated
	}
	return s, []Effect{
		{
			Type:       closedType,
			AccountID:  p.AccountID,
			PositionID: p.PositionID,
			MarketID:   p.MarketID,
			Price:      validDec(closePrice),
			Amount:     validDec(realized),
			Reason:     string(reason),
		},
		{
			Type:      EffectBalanceUpdated,
			AccountID: p.AccountID,
			Balance:   validDec(s.Account.Balance),
			Amount:    validDec(realized),
		},
		{
			Type:       EffectMarginReleased,
			AccountID:  p.AccountID,
			PositionID: p.PositionID,
			Amount:     validDec(releasedMargin),
		},
	}
}

func executeClose(s EngineState, ev ClosePositionEvent) (EngineState, []Effect) {
	p := s.Positions[ev.PositionID]
	reason := ev.ClosedBy
	if reason == "" {
		reason = ClosedByUser
		if ev.AdminUserID != "" {
			reason = ClosedByAdmin
		}
	}
	if reason == ClosedByAdmin {
		p.AdminUserID = ev.AdminUserID
		p.AdminComment = ev.AdminComment
		s.Positions[p.PositionID] = p
	}
	return settleClose(s, s.Positions[ev.PositionID], ev.ClosePrice, reason, ev.OccurredAt)
}
