package domain

import (
	"sort"
)

// executePrices 价格更新主流程，顺序固定以保证重放一致：
// 1. 写入新标记价并重算浮动盈亏
// 2. 限价单成交
// 3. 止损/止盈触发（止损优先）
// 4. 追保预警
// 5. 强平级联
func executePrices(s EngineState, ev UpdatePricesEvent) (EngineState, []Effect) {
	effects := make([]Effect, 0, 4)

	updated := make(map[string]bool, len(ev.Updates))
	for _, u := range ev.Updates {
		m := s.Markets[u.MarketID]
		m.MarkPrice = u.Price
		s.Markets[u.MarketID] = m
		updated[u.MarketID] = true
	}
	for _, id := range sortedPositionIDs(s.Positions) {
		p := s.Positions[id]
		if p.Status == PositionStatusOpen && updated[p.MarketID] {
			p.UnrealizedPnL = UnrealizedPnL(p.Side, p.Size, p.EntryPrice, s.Markets[p.MarketID].MarkPrice)
			s.Positions[id] = p
		}
	}
	s.Account = recomputeAccount(s.Account, s.Positions)
	effects = append(effects, Effect{
		Type:      EffectPricesUpdated,
		AccountID: s.Account.AccountID,
		Updates:   ev.Updates,
	})

	for _, id := range sortedPositionIDs(s.Positions) {
		p := s.Positions[id]
		if p.Status == PositionStatusPending && updated[p.MarketID] && LimitFillable(p, s.Markets[p.MarketID].MarkPrice) {
			var fillEffects []Effect
			s, fillEffects = fillPending(s, p, ev.OccurredAt)
			effects = append(effects, fillEffects...)
		}
	}

	for _, id := range sortedPositionIDs(s.Positions) {
		p := s.Positions[id]
		if p.Status != PositionStatusOpen || !updated[p.MarketID] {
			continue
		}
		mark := s.Markets[p.MarketID].MarkPrice
		switch {
		case StopLossHit(p, mark):
			effects = append(effects, Effect{
				Type:       EffectStopLossTriggered,
				AccountID:  p.AccountID,
				PositionID: p.PositionID,
				MarketID:   p.MarketID,
				Price:      validDec(mark),
			})
			var closeEffects []Effect
			s, closeEffects = settleClose(s, p, mark, ClosedByStopLoss, ev.OccurredAt)
			effects = append(effects, closeEffects...)
		case TakeProfitHit(p, mark):
			effects = append(effects, Effect{
				Type:       EffectTakeProfitTriggered,
				AccountID:  p.AccountID,
				PositionID: p.PositionID,
				MarketID:   p.MarketID,
				Price:      validDec(mark),
			})
			var closeEffects []Effect
			s, closeEffects = settleClose(s, p, mark, ClosedByTakeProfit, ev.OccurredAt)
			effects = append(effects, closeEffects...)
		}
	}

	level := s.Account.MarginLevel
	if level.Valid && level.Decimal.LessThan(s.Policy.MarginCallLevel) && level.Decimal.GreaterThanOrEqual(s.Policy.StopOutLevel) {
		effects = append(effects, Effect{
			Type:      EffectMarginCallTriggered,
			AccountID: s.Account.AccountID,
			Amount:    level,
		})
	}

	return runStopOut(s, ev, effects)
}

// runStopOut 强平级联。保证金水平低于强平线时账户进入 LIQUIDATION_ONLY，
// 按强平优先级逐仓平掉，每平一仓重算，水平恢复即停。级联期间是管理性
// 状态切换，结束后若账户此前为 ACTIVE 且水平恢复则还原。
func runStopOut(s EngineState, ev UpdatePricesEvent, effects []Effect) (EngineState, []Effect) {
	level := s.Account.MarginLevel
	if !level.Valid || level.Decimal.GreaterThanOrEqual(s.Policy.StopOutLevel) {
		return s, effects
	}

	wasActive := s.Account.Status == AccountStatusActive
	if wasActive {
		s.Account.Status = AccountStatusLiquidationOnly
	}
	effects = append(effects, Effect{
		Type:      EffectLiquidationTriggered,
		AccountID: s.Account.AccountID,
		Amount:    level,
	})

	var closed []string
	for {
		level = s.Account.MarginLevel
		if !level.Valid || level.Decimal.GreaterThanOrEqual(s.Policy.StopOutLevel) {
			break
		}
		order := LiquidationOrder(s.Positions)
		if len(order) == 0 {
			break
		}
		victim := s.Positions[order[0]]
		var closeEffects []Effect
		s, closeEffects = settleClose(s, victim, s.Markets[victim.MarketID].MarkPrice, ClosedByMarginCall, ev.OccurredAt)
		effects = append(effects, closeEffects...)
		closed = append(closed, victim.PositionID)
	}

	recovered := !s.Account.MarginLevel.Valid || s.Account.MarginLevel.Decimal.GreaterThanOrEqual(s.Policy.StopOutLevel)
	if wasActive && recovered {
		s.Account.Status = AccountStatusActive
	}
	effects = append(effects, Effect{
		Type:            EffectStopOutCompleted,
		AccountID:       s.Account.AccountID,
		ClosedPositions: closed,
		Amount:          s.Account.MarginLevel,
	})
	return s, effects
}

func sortedPositionIDs(positions map[string]PositionState) []string {
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
