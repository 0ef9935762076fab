package domain

import (
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOpenPosition     EventType = "OPEN_POSITION"
	EventClosePosition    EventType = "CLOSE_POSITION"
	EventUpdatePrices     EventType = "UPDATE_PRICES"
	EventDepositFunds     EventType = "DEPOSIT_FUNDS"
	EventWithdrawFunds    EventType = "WITHDRAW_FUNDS"
	EventAddBonus         EventType = "ADD_BONUS"
	EventRemoveBonus      EventType = "REMOVE_BONUS"
	EventUpdateStopLoss   EventType = "UPDATE_STOP_LOSS"
	EventUpdateTakeProfit EventType = "UPDATE_TAKE_PROFIT"
	EventCancelPending    EventType = "CANCEL_PENDING"
	EventSetAccountStatus EventType = "SET_ACCOUNT_STATUS"
	EventUpdatePolicies   EventType = "UPDATE_POLICIES"
)

// Event 引擎输入事件。所有实现都是不可变的值对象，
// 时间戳由外部时钟注入，引擎内部绝不读取系统时间。
type Event interface {
	Type() EventType
	EventID() string
	Timestamp() string
}

// EventMeta 所有事件的公共头。
type EventMeta struct {
	ID         string `json:"event_id"`
	OccurredAt string `json:"occurred_at"`
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) Timestamp() string { return m.OccurredAt }

// OpenPositionEvent 请求开仓。ExecutionPrice 由撮合方给出：
// MARKET 立即按该价成交为 OPEN，LIMIT 以该价为限价挂 PENDING。
// Commission 缺省时按策略费率计算。
type OpenPositionEvent struct {
	EventMeta
	PositionID     string              `json:"position_id"`
	AccountID      string              `json:"account_id"`
	MarketID       string              `json:"market_id"`
	Side           Side                `json:"side"`
	Size           decimal.Decimal     `json:"size"`
	ExecutionPrice decimal.Decimal     `json:"execution_price"`
	Leverage       decimal.Decimal     `json:"leverage"`
	OrderType      OrderType           `json:"order_type"`
	StopLoss       decimal.NullDecimal `json:"stop_loss"`
	TakeProfit     decimal.NullDecimal `json:"take_profit"`
	Commission     decimal.NullDecimal `json:"commission"`
}

func (OpenPositionEvent) Type() EventType { return EventOpenPosition }

// ClosePositionEvent 请求平仓，按 ClosePrice 结算。
// ClosedBy 只允许 USER/ADMIN，缺省按 AdminUserID 推断；
// 触发类平仓（止损、止盈、强平）由引擎内部产生，不走此事件。
type ClosePositionEvent struct {
	EventMeta
	PositionID   string          `json:"position_id"`
	AccountID    string          `json:"account_id"`
	ClosePrice   decimal.Decimal `json:"close_price"`
	ClosedBy     CloseReason     `json:"closed_by,omitempty"`
	AdminUserID  string          `json:"admin_user_id,omitempty"`
	AdminComment string          `json:"admin_comment,omitempty"`
}

func (ClosePositionEvent) Type() EventType { return EventClosePosition }

// PriceUpdate 单个市场的新标记价。
type PriceUpdate struct {
	MarketID string          `json:"market_id"`
	Price    decimal.Decimal `json:"price"`
}

// UpdatePricesEvent 批量价格更新。触发 SL/TP、限价单成交与强平级联。
type UpdatePricesEvent struct {
	EventMeta
	Updates []PriceUpdate `json:"updates"`
}

func (UpdatePricesEvent) Type() EventType { return EventUpdatePrices }

// 资金与赠金事件均为管理员操作，AdminUserID/Reason 随效果进入流水。

type DepositFundsEvent struct {
	EventMeta
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	AdminUserID string          `json:"admin_user_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

func (DepositFundsEvent) Type() EventType { return EventDepositFunds }

type WithdrawFundsEvent struct {
	EventMeta
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	AdminUserID string          `json:"admin_user_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

func (WithdrawFundsEvent) Type() EventType { return EventWithdrawFunds }

type AddBonusEvent struct {
	EventMeta
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	AdminUserID string          `json:"admin_user_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

func (AddBonusEvent) Type() EventType { return EventAddBonus }

type RemoveBonusEvent struct {
	EventMeta
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	AdminUserID string          `json:"admin_user_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

func (RemoveBonusEvent) Type() EventType { return EventRemoveBonus }

// UpdateStopLossEvent 调整止损。Value 无效表示清除。
type UpdateStopLossEvent struct {
	EventMeta
	PositionID string              `json:"position_id"`
	AccountID  string              `json:"account_id"`
	Value      decimal.NullDecimal `json:"value"`
}

func (UpdateStopLossEvent) Type() EventType { return EventUpdateStopLoss }

// UpdateTakeProfitEvent 调整止盈。Value 无效表示清除。
type UpdateTakeProfitEvent struct {
	EventMeta
	PositionID string              `json:"position_id"`
	AccountID  string              `json:"account_id"`
	Value      decimal.NullDecimal `json:"value"`
}

func (UpdateTakeProfitEvent) Type() EventType { return EventUpdateTakeProfit }

// CancelPendingEvent 撤销未成交的限价单。
type CancelPendingEvent struct {
	EventMeta
	PositionID string `json:"position_id"`
	AccountID  string `json:"account_id"`
}

func (CancelPendingEvent) Type() EventType { return EventCancelPending }

// SetAccountStatusEvent 管理员变更账户状态。
type SetAccountStatusEvent struct {
	EventMeta
	AccountID   string        `json:"account_id"`
	Status      AccountStatus `json:"status"`
	AdminUserID string        `json:"admin_user_id"`
}

func (SetAccountStatusEvent) Type() EventType { return EventSetAccountStatus }

// UpdatePoliciesEvent 运行时调整风控策略参数。
// Policy 为零值时阈值不变；MaxPositions 为 nil 时持仓上限不变。
type UpdatePoliciesEvent struct {
	EventMeta
	AccountID    string `json:"account_id"`
	Policy       Policy `json:"policy"`
	MaxPositions *int   `json:"max_positions,omitempty"`
	AdminUserID  string `json:"admin_user_id"`
	Reason       string `json:"reason,omitempty"`
}

func (UpdatePoliciesEvent) Type() EventType { return EventUpdatePolicies }
