package domain

// 资金、赠金与管理类事件的执行。金额在校验阶段已确认为正。
// 后台操作人与调整原因随效果带出，供审计落账。

func executeDeposit(s EngineState, ev DepositFundsEvent) (EngineState, []Effect) {
	s.Account.Balance = RoundMoney(s.Account.Balance.Add(ev.Amount))
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{{
		Type:      EffectBalanceUpdated,
		AccountID: ev.AccountID,
		Amount:    validDec(ev.Amount),
		Balance:   validDec(s.Account.Balance),
		Reason:    "DEPOSIT",
		Detail:    fundDetail(ev.AdminUserID, ev.Reason),
	}}
}

func executeWithdraw(s EngineState, ev WithdrawFundsEvent) (EngineState, []Effect) {
	s.Account.Balance = RoundMoney(s.Account.Balance.Sub(ev.Amount))
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{{
		Type:      EffectBalanceUpdated,
		AccountID: ev.AccountID,
		Amount:    validDec(ev.Amount.Neg()),
		Balance:   validDec(s.Account.Balance),
		Reason:    "WITHDRAWAL",
		Detail:    fundDetail(ev.AdminUserID, ev.Reason),
	}}
}

func executeAddBonus(s EngineState, ev AddBonusEvent) (EngineState, []Effect) {
	s.Account.Bonus = RoundMoney(s.Account.Bonus.Add(ev.Amount))
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{{
		Type:      EffectBonusUpdated,
		AccountID: ev.AccountID,
		Amount:    validDec(ev.Amount),
		Balance:   validDec(s.Account.Bonus),
		Detail:    fundDetail(ev.AdminUserID, ev.Reason),
	}}
}

func executeRemoveBonus(s EngineState, ev RemoveBonusEvent) (EngineState, []Effect) {
	s.Account.Bonus = RoundMoney(s.Account.Bonus.Sub(ev.Amount))
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{{
		Type:      EffectBonusUpdated,
		AccountID: ev.AccountID,
		Amount:    validDec(ev.Amount.Neg()),
		Balance:   validDec(s.Account.Bonus),
		Detail:    fundDetail(ev.AdminUserID, ev.Reason),
	}}
}

func fundDetail(adminUserID, reason string) string {
	switch {
	case adminUserID == "":
		return reason
	case reason == "":
		return adminUserID
	default:
		return adminUserID + ": " + reason
	}
}

func executeUpdateStopLoss(s EngineState, ev UpdateStopLossEvent) (EngineState, []Effect) {
	p := s.Positions[ev.PositionID]
	p.StopLoss = ev.Value
	s.Positions[p.PositionID] = p
	return s, []Effect{{
		Type:       EffectStopLossUpdated,
		AccountID:  ev.AccountID,
		PositionID: ev.PositionID,
		Price:      ev.Value,
	}}
}

func executeUpdateTakeProfit(s EngineState, ev UpdateTakeProfitEvent) (EngineState, []Effect) {
	p := s.Positions[ev.PositionID]
	p.TakeProfit = ev.Value
	s.Positions[p.PositionID] = p
	return s, []Effect{{
		Type:       EffectTakeProfitUpdated,
		AccountID:  ev.AccountID,
		PositionID: ev.PositionID,
		Price:      ev.Value,
	}}
}

// executeCancelPending 撤单。挂单不占用账户保证金，
// MarginReleased 仅作为对账提示带出预占额度。
func executeCancelPending(s EngineState, ev CancelPendingEvent) (EngineState, []Effect) {
	p := s.Positions[ev.PositionID]
	reserved := p.MarginUsed
	p.Status = PositionStatusCancelled
	p.ClosedAt = ev.OccurredAt
	s.Positions[p.PositionID] = p
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s, []Effect{
		{
			Type:       EffectPositionCancelled,
			AccountID:  ev.AccountID,
			PositionID: ev.PositionID,
			MarketID:   p.MarketID,
		},
		{
			Type:       EffectMarginReleased,
			AccountID:  ev.AccountID,
			PositionID: ev.PositionID,
			Amount:     validDec(reserved),
		},
	}
}

func executeSetStatus(s EngineState, ev SetAccountStatusEvent) (EngineState, []Effect) {
	from := s.Account.Status
	s.Account.Status = ev.Status
	return s, []Effect{{
		Type:      EffectAccountStatusChanged,
		AccountID: ev.AccountID,
		Reason:    string(from),
		Detail:    string(ev.Status),
	}}
}

// executeUpdatePolicies 部分更新：Policy 为零值时阈值保持现值，
// MaxPositions 为 nil 时持仓上限保持现值。
func executeUpdatePolicies(s EngineState, ev UpdatePoliciesEvent) (EngineState, []Effect) {
	if !ev.Policy.isZero() {
		s.Policy = ev.Policy
	}
	if ev.MaxPositions != nil {
		s.Account.MaxPositions = *ev.MaxPositions
	}
	return s, []Effect{{
		Type:      EffectPoliciesUpdated,
		AccountID: ev.AccountID,
		Detail:    fundDetail(ev.AdminUserID, ev.Reason),
	}}
}
