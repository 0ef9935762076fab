package domain

// 执行阶段。入参已通过校验，在克隆后的状态上就地修改。
// 每次修改账本后都重建账户派生字段。

func execute(s EngineState, ev Event) (EngineState, []Effect) {
	switch ev := ev.(type) {
	case OpenPositionEvent:
		return executeOpen(s, ev)
	case ClosePositionEvent:
		return executeClose(s, ev)
	case UpdatePricesEvent:
		return executePrices(s, ev)
	case DepositFundsEvent:
		return executeDeposit(s, ev)
	case WithdrawFundsEvent:
		return executeWithdraw(s, ev)
	case AddBonusEvent:
		return executeAddBonus(s, ev)
	case RemoveBonusEvent:
		return executeRemoveBonus(s, ev)
	case UpdateStopLossEvent:
		return executeUpdateStopLoss(s, ev)
	case UpdateTakeProfitEvent:
		return executeUpdateTakeProfit(s, ev)
	case CancelPendingEvent:
		return executeCancelPending(s, ev)
	case SetAccountStatusEvent:
		return executeSetStatus(s, ev)
	case UpdatePoliciesEvent:
		return executeUpdatePolicies(s, ev)
	default:
		// validate 已拦截未知事件，此处不可达。
		return s, nil
	}
}
