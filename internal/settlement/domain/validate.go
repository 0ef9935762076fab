package domain

import (
	"github.com/shopspring/decimal"
)

// 校验阶段。纯函数，按固定顺序检查，遇到第一个失败立即返回，
// 绝不修改状态。校验通过才进入执行阶段。

func validate(s EngineState, ev Event) *Rejection {
	switch ev := ev.(type) {
	case OpenPositionEvent:
		return validateOpen(s, ev)
	case ClosePositionEvent:
		return validateClose(s, ev)
	case UpdatePricesEvent:
		return validatePrices(s, ev)
	case DepositFundsEvent:
		return validateDeposit(s, ev)
	case WithdrawFundsEvent:
		return validateWithdraw(s, ev)
	case AddBonusEvent:
		return validateAddBonus(s, ev)
	case RemoveBonusEvent:
		return validateRemoveBonus(s, ev)
	case UpdateStopLossEvent:
		return validateUpdateStopLoss(s, ev)
	case UpdateTakeProfitEvent:
		return validateUpdateTakeProfit(s, ev)
	case CancelPendingEvent:
		return validateCancelPending(s, ev)
	case SetAccountStatusEvent:
		return validateSetStatus(s, ev)
	case UpdatePoliciesEvent:
		return validateUpdatePolicies(s, ev)
	default:
		return reject(ErrUnknownEventType, "unsupported event type %T", ev)
	}
}

func requireAccount(s EngineState, accountID string) *Rejection {
	if s.Account.AccountID != accountID {
		return reject(ErrAccountNotFound, "account %s not found", accountID)
	}
	return nil
}

func requireActiveAccount(s EngineState, accountID string) *Rejection {
	if r := requireAccount(s, accountID); r != nil {
		return r
	}
	if s.Account.Status != AccountStatusActive {
		return reject(ErrInvalidAccountStatus, "account %s is %s", accountID, s.Account.Status)
	}
	return nil
}

func requireOwnedPosition(s EngineState, positionID, accountID string) (PositionState, *Rejection) {
	p, ok := s.Positions[positionID]
	if !ok {
		return PositionState{}, reject(ErrPositionNotFound, "position %s not found", positionID)
	}
	if p.AccountID != accountID {
		return PositionState{}, reject(ErrPositionNotOwned, "position %s not owned by account %s", positionID, accountID)
	}
	return p, nil
}

// validateOpen 检查顺序固定：实体存在、ID 唯一、载荷合法、止损止盈方位、
// 杠杆与规模上限、账户状态、持仓数上限、保证金、安全边际。顺序不可调换。
func validateOpen(s EngineState, ev OpenPositionEvent) *Rejection {
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	market, ok := s.Markets[ev.MarketID]
	if !ok {
		return reject(ErrMarketNotFound, "market %s not found", ev.MarketID)
	}
	if _, exists := s.Positions[ev.PositionID]; exists {
		return reject(ErrPositionIDDuplicate, "position %s already exists", ev.PositionID)
	}

	if !ev.Size.IsPositive() {
		return reject(ErrInvalidEventPayload, "size must be positive, got %s", ev.Size)
	}
	if !ev.ExecutionPrice.IsPositive() {
		return reject(ErrInvalidEventPayload, "execution price must be positive, got %s", ev.ExecutionPrice)
	}
	if !ev.Leverage.IsPositive() {
		return reject(ErrInvalidEventPayload, "leverage must be positive, got %s", ev.Leverage)
	}
	if ev.Side != SideLong && ev.Side != SideShort {
		return reject(ErrInvalidEventPayload, "invalid side %q", ev.Side)
	}
	if ev.OrderType != OrderTypeMarket && ev.OrderType != OrderTypeLimit {
		return reject(ErrInvalidEventPayload, "invalid order type %q", ev.OrderType)
	}
	if ev.Commission.Valid && ev.Commission.Decimal.IsNegative() {
		return reject(ErrInvalidEventPayload, "commission must not be negative")
	}

	entry := ev.ExecutionPrice
	if r := validateStopOrderPlacement(ev.Side, entry, ev.StopLoss, ev.TakeProfit); r != nil {
		return r
	}
	if ev.Leverage.GreaterThan(market.MaxLeverage) {
		return reject(ErrLeverageExceeded, "leverage %s exceeds market max %s", ev.Leverage, market.MaxLeverage)
	}
	if ev.Size.LessThan(market.MinSize) {
		return reject(ErrSizeBelowMinimum, "size %s below market minimum %s", ev.Size, market.MinSize)
	}
	if ev.Size.GreaterThan(market.MaxSize) {
		return reject(ErrSizeAboveMaximum, "size %s above market maximum %s", ev.Size, market.MaxSize)
	}
	if s.Account.Status != AccountStatusActive {
		return reject(ErrInvalidAccountStatus, "account %s is %s", ev.AccountID, s.Account.Status)
	}
	if s.Account.MaxPositions > 0 && s.OpenPositionCount() >= s.Account.MaxPositions {
		return reject(ErrPositionLimitExceeded, "account %s already holds %d positions", ev.AccountID, s.Account.MaxPositions)
	}

	required := MarginRequired(ev.Size, entry, ev.Leverage)
	if s.Account.FreeMargin.LessThan(required) {
		return reject(ErrInsufficientMargin, "free margin %s below required %s", s.Account.FreeMargin, required)
	}

	// 预演开仓后的保证金水平，低于安全边际则拒绝。限价单不占用账户保证金，跳过。
	if ev.OrderType == OrderTypeMarket {
		projectedUsed := s.Account.MarginUsed.Add(required)
		level := MarginLevel(s.Account.Equity, projectedUsed)
		if level.Valid && level.Decimal.LessThan(s.Policy.SafetyMarginLevel) {
			return reject(ErrMarginLevelInsufficient, "projected margin level %s below safety level %s", level.Decimal, s.Policy.SafetyMarginLevel)
		}
	}
	return nil
}

func validateStopOrderPlacement(side Side, entry decimal.Decimal, sl, tp decimal.NullDecimal) *Rejection {
	if sl.Valid {
		if !sl.Decimal.IsPositive() {
			return reject(ErrInvalidStopLoss, "stop loss must be positive")
		}
		if side == SideLong && sl.Decimal.GreaterThanOrEqual(entry) {
			return reject(ErrInvalidStopLoss, "long stop loss %s must be below entry %s", sl.Decimal, entry)
		}
		if side == SideShort && sl.Decimal.LessThanOrEqual(entry) {
			return reject(ErrInvalidStopLoss, "short stop loss %s must be above entry %s", sl.Decimal, entry)
		}
	}
	if tp.Valid {
		if !tp.Decimal.IsPositive() {
			return reject(ErrInvalidTakeProfit, "take profit must be positive")
		}
		if side == SideLong && tp.Decimal.LessThanOrEqual(entry) {
			return reject(ErrInvalidTakeProfit, "long take profit %s must be above entry %s", tp.Decimal, entry)
		}
		if side == SideShort && tp.Decimal.GreaterThanOrEqual(entry) {
			return reject(ErrInvalidTakeProfit, "short take profit %s must be below entry %s", tp.Decimal, entry)
		}
	}
	return nil
}

func validateClose(s EngineState, ev ClosePositionEvent) *Rejection {
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	if s.Account.Status == AccountStatusClosed {
		return reject(ErrInvalidAccountStatus, "account %s is closed", ev.AccountID)
	}
	p, r := requireOwnedPosition(s, ev.PositionID, ev.AccountID)
	if r != nil {
		return r
	}
	// 已平仓与其它非 OPEN 状态分开报错，幂等重放时前者更可辨。
	if p.Status == PositionStatusClosed {
		return reject(ErrPositionAlreadyClosed, "position %s already closed", ev.PositionID)
	}
	if p.Status != PositionStatusOpen {
		return reject(ErrPositionNotOpen, "position %s is %s", ev.PositionID, p.Status)
	}
	if !ev.ClosePrice.IsPositive() {
		return reject(ErrInvalidEventPayload, "close price must be positive, got %s", ev.ClosePrice)
	}
	switch ev.ClosedBy {
	case "", ClosedByUser:
	case ClosedByAdmin:
		if ev.AdminUserID == "" {
			return reject(ErrInvalidEventPayload, "admin close requires admin_user_id")
		}
	default:
		return reject(ErrInvalidEventPayload, "invalid closed_by %q", ev.ClosedBy)
	}
	return nil
}

func validatePrices(s EngineState, ev UpdatePricesEvent) *Rejection {
	if len(ev.Updates) == 0 {
		return reject(ErrInvalidEventPayload, "price update carries no prices")
	}
	for _, u := range ev.Updates {
		if !u.Price.IsPositive() {
			return reject(ErrInvalidEventPayload, "market %s price %s must be positive", u.MarketID, u.Price)
		}
		if _, ok := s.Markets[u.MarketID]; !ok {
			return reject(ErrMarketNotFound, "market %s not found", u.MarketID)
		}
	}
	return nil
}

func validateDeposit(s EngineState, ev DepositFundsEvent) *Rejection {
	if !ev.Amount.IsPositive() {
		return reject(ErrInvalidAmount, "deposit amount %s must be positive", ev.Amount)
	}
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	if s.Account.Status == AccountStatusClosed {
		return reject(ErrInvalidAccountStatus, "account %s is closed", ev.AccountID)
	}
	return nil
}

func validateWithdraw(s EngineState, ev WithdrawFundsEvent) *Rejection {
	if !ev.Amount.IsPositive() {
		return reject(ErrInvalidAmount, "withdrawal amount %s must be positive", ev.Amount)
	}
	if r := requireActiveAccount(s, ev.AccountID); r != nil {
		return r
	}
	if ev.Amount.GreaterThan(s.Account.Balance) {
		return reject(ErrInvalidBalance, "withdrawal %s exceeds balance %s", ev.Amount, s.Account.Balance)
	}
	if ev.Amount.GreaterThan(s.Account.FreeMargin) {
		return reject(ErrInvalidBalance, "withdrawal %s exceeds free margin %s", ev.Amount, s.Account.FreeMargin)
	}
	return nil
}

func validateAddBonus(s EngineState, ev AddBonusEvent) *Rejection {
	if !ev.Amount.IsPositive() {
		return reject(ErrInvalidAmount, "bonus amount %s must be positive", ev.Amount)
	}
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	if s.Account.Status == AccountStatusClosed {
		return reject(ErrInvalidAccountStatus, "account %s is closed", ev.AccountID)
	}
	return nil
}

func validateRemoveBonus(s EngineState, ev RemoveBonusEvent) *Rejection {
	if !ev.Amount.IsPositive() {
		return reject(ErrInvalidAmount, "bonus amount %s must be positive", ev.Amount)
	}
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	if ev.Amount.GreaterThan(s.Account.Bonus) {
		return reject(ErrInvalidAmount, "cannot remove %s from bonus %s", ev.Amount, s.Account.Bonus)
	}
	return nil
}

func validateUpdateStopLoss(s EngineState, ev UpdateStopLossEvent) *Rejection {
	if r := requireActiveAccount(s, ev.AccountID); r != nil {
		return r
	}
	p, r := requireOwnedPosition(s, ev.PositionID, ev.AccountID)
	if r != nil {
		return r
	}
	if p.Status != PositionStatusOpen && p.Status != PositionStatusPending {
		return reject(ErrPositionNotOpen, "position %s is %s", ev.PositionID, p.Status)
	}
	return validateStopOrderPlacement(p.Side, p.EntryPrice, ev.Value, decimal.NullDecimal{})
}

func validateUpdateTakeProfit(s EngineState, ev UpdateTakeProfitEvent) *Rejection {
	if r := requireActiveAccount(s, ev.AccountID); r != nil {
		return r
	}
	p, r := requireOwnedPosition(s, ev.PositionID, ev.AccountID)
	if r != nil {
		return r
	}
	if p.Status != PositionStatusOpen && p.Status != PositionStatusPending {
		return reject(ErrPositionNotOpen, "position %s is %s", ev.PositionID, p.Status)
	}
	return validateStopOrderPlacement(p.Side, p.EntryPrice, decimal.NullDecimal{}, ev.Value)
}

func validateCancelPending(s EngineState, ev CancelPendingEvent) *Rejection {
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	p, r := requireOwnedPosition(s, ev.PositionID, ev.AccountID)
	if r != nil {
		return r
	}
	if p.Status != PositionStatusPending {
		return reject(ErrPositionNotPending, "position %s is %s", ev.PositionID, p.Status)
	}
	return nil
}

func validateSetStatus(s EngineState, ev SetAccountStatusEvent) *Rejection {
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	switch ev.Status {
	case AccountStatusActive, AccountStatusLiquidationOnly, AccountStatusClosed:
	default:
		return reject(ErrInvalidEventPayload, "invalid account status %q", ev.Status)
	}
	if !accountStatusTransition(s.Account.Status, ev.Status) {
		return reject(ErrInvalidAccountStatus, "cannot transition account from %s to %s", s.Account.Status, ev.Status)
	}
	return nil
}

func validateUpdatePolicies(s EngineState, ev UpdatePoliciesEvent) *Rejection {
	if r := requireAccount(s, ev.AccountID); r != nil {
		return r
	}
	if !ev.Policy.isZero() && !ev.Policy.validate() {
		return reject(ErrInvalidPolicy, "policy parameters out of range")
	}
	if ev.MaxPositions != nil && *ev.MaxPositions <= 0 {
		return reject(ErrInvalidEventPayload, "max positions must be positive, got %d", *ev.MaxPositions)
	}
	return nil
}
