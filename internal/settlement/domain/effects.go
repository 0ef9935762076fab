package domain

import (
	"github.com/shopspring/decimal"
)

type EffectType string

const (
	EffectPositionOpened       EffectType = "PositionOpened"
	EffectPositionPending      EffectType = "PositionPending"
	EffectPositionPromoted     EffectType = "PositionPromoted"
	EffectPositionClosed       EffectType = "PositionClosed"
	EffectPositionCancelled    EffectType = "PositionCancelled"
	EffectPricesUpdated        EffectType = "PricesUpdated"
	EffectStopLossTriggered    EffectType = "StopLossTriggered"
	EffectTakeProfitTriggered  EffectType = "TakeProfitTriggered"
	EffectMarginCallTriggered  EffectType = "MarginCallTriggered"
	EffectLiquidationTriggered EffectType = "LiquidationTriggered"
	EffectPositionLiquidated   EffectType = "PositionLiquidated"
	EffectStopOutCompleted     EffectType = "StopOutCompleted"
	EffectBalanceUpdated       EffectType = "AccountBalanceUpdated"
	EffectBonusUpdated         EffectType = "BonusUpdated"
	EffectMarginReleased       EffectType = "MarginReleased"
	EffectStopLossUpdated      EffectType = "StopLossUpdated"
	EffectTakeProfitUpdated    EffectType = "TakeProfitUpdated"
	EffectAccountStatusChanged EffectType = "AccountStatusChanged"
	EffectPoliciesUpdated      EffectType = "PoliciesUpdated"
)

// Effect 引擎输出的副作用描述。引擎本身不执行任何 I/O，
// 效果由应用层持久化并投递到下游。
type Effect struct {
	Type       EffectType          `json:"type"`
	AccountID  string              `json:"account_id,omitempty"`
	PositionID string              `json:"position_id,omitempty"`
	MarketID   string              `json:"market_id,omitempty"`
	Price      decimal.NullDecimal `json:"price,omitempty"`
	Amount     decimal.NullDecimal `json:"amount,omitempty"`
	Balance    decimal.NullDecimal `json:"balance,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Detail     string              `json:"detail,omitempty"`
	Updates    []PriceUpdate       `json:"updates,omitempty"`
	// ClosedPositions 强平完成时按执行顺序列出被平仓位。
	ClosedPositions []string `json:"closed_positions,omitempty"`
}

func validDec(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
