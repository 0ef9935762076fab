package domain

import (
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "ACTIVE"
	AccountStatusLiquidationOnly AccountStatus = "LIQUIDATION_ONLY"
	AccountStatusClosed          AccountStatus = "CLOSED"
)

type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "PENDING"
	PositionStatusOpen      PositionStatus = "OPEN"
	PositionStatusClosed    PositionStatus = "CLOSED"
	PositionStatusCancelled PositionStatus = "CANCELLED"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type CloseReason string

const (
	ClosedByUser       CloseReason = "USER"
	ClosedByAdmin      CloseReason = "ADMIN"
	ClosedByStopLoss   CloseReason = "STOP_LOSS"
	ClosedByTakeProfit CloseReason = "TAKE_PROFIT"
	ClosedByMarginCall CloseReason = "MARGIN_CALL"
)

type AssetClass string

const (
	AssetClassForex       AssetClass = "FOREX"
	AssetClassCommodities AssetClass = "COMMODITIES"
	AssetClassIndices     AssetClass = "INDICES"
	AssetClassCrypto      AssetClass = "CRYPTO"
	AssetClassStocks      AssetClass = "STOCKS"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// AccountState 账户状态。Equity/MarginUsed/FreeMargin/MarginLevel 均为派生字段，
// 每次状态转换后从持仓集合重新计算，绝不独立存储。
type AccountState struct {
	AccountID    string              `json:"account_id"`
	Balance      decimal.Decimal     `json:"balance"`
	Bonus        decimal.Decimal     `json:"bonus"`
	Equity       decimal.Decimal     `json:"equity"`
	MarginUsed   decimal.Decimal     `json:"margin_used"`
	FreeMargin   decimal.Decimal     `json:"free_margin"`
	MarginLevel  decimal.NullDecimal `json:"margin_level"`
	Status       AccountStatus       `json:"status"`
	MaxPositions int                 `json:"max_positions"`
	CreatedAt    string              `json:"created_at"`
}

// PositionState 持仓状态。CLOSED 后经济字段不可再变更。
type PositionState struct {
	PositionID    string              `json:"position_id"`
	AccountID     string              `json:"account_id"`
	MarketID      string              `json:"market_id"`
	Side          Side                `json:"side"`
	Size          decimal.Decimal     `json:"size"`
	EntryPrice    decimal.Decimal     `json:"entry_price"`
	Leverage      decimal.Decimal     `json:"leverage"`
	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	TakeProfit    decimal.NullDecimal `json:"take_profit"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	RealizedPnL   decimal.NullDecimal `json:"realized_pnl"`
	MarginUsed    decimal.Decimal     `json:"margin_used"`
	CommissionFee decimal.Decimal     `json:"commission_fee"`
	SwapFee       decimal.Decimal     `json:"swap_fee"`
	Status        PositionStatus      `json:"status"`
	ClosedBy      CloseReason         `json:"closed_by,omitempty"`
	OpenedAt      string              `json:"opened_at"`
	ClosedAt      string              `json:"closed_at,omitempty"`
	ClosedPrice   decimal.NullDecimal `json:"closed_price"`
	AdminUserID   string              `json:"admin_user_id,omitempty"`
	AdminComment  string              `json:"admin_comment,omitempty"`
}

// MarketState 市场状态。价格更新事件只改 MarkPrice。
type MarketState struct {
	MarketID    string          `json:"market_id"`
	Symbol      string          `json:"symbol"`
	AssetClass  AssetClass      `json:"asset_class"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	MinSize     decimal.Decimal `json:"min_size"`
	MaxSize     decimal.Decimal `json:"max_size"`
	MaxLeverage decimal.Decimal `json:"max_leverage"`
}

// EngineState 引擎完整状态快照。所有转换都产生新快照，旧快照保持有效。
// Policy 随状态走，策略热更新也是一次普通的状态转换，重放时可复现。
type EngineState struct {
	Account   AccountState             `json:"account"`
	Positions map[string]PositionState `json:"positions"`
	Markets   map[string]MarketState   `json:"markets"`
	Policy    Policy                   `json:"policy"`
}

// Clone 返回完全独立的副本。结构体字段均为值语义（decimal 不可变），
// 只需复制两张 map 即可保证旧状态不被别名。
func (s EngineState) Clone() EngineState {
	positions := make(map[string]PositionState, len(s.Positions))
	for id, p := range s.Positions {
		positions[id] = p
	}
	markets := make(map[string]MarketState, len(s.Markets))
	for id, m := range s.Markets {
		markets[id] = m
	}
	return EngineState{Account: s.Account, Positions: positions, Markets: markets, Policy: s.Policy}
}

// OpenPositionCount 统计 OPEN 状态持仓数。
func (s EngineState) OpenPositionCount() int {
	n := 0
	for _, p := range s.Positions {
		if p.Status == PositionStatusOpen {
			n++
		}
	}
	return n
}

// recomputeAccount 从持仓集合重建账户派生字段。
// equity = balance + bonus + Σ unrealizedPnL(OPEN)
// marginUsed = Σ marginUsed(OPEN)
func recomputeAccount(acc AccountState, positions map[string]PositionState) AccountState {
	totalUnrealized := decimal.Zero
	totalMargin := decimal.Zero
	for _, p := range positions {
		if p.Status != PositionStatusOpen {
			continue
		}
		totalUnrealized = totalUnrealized.Add(p.UnrealizedPnL)
		totalMargin = totalMargin.Add(p.MarginUsed)
	}
	acc.Equity = AccountEquity(acc.Balance, acc.Bonus, totalUnrealized)
	acc.MarginUsed = totalMargin
	acc.FreeMargin = FreeMargin(acc.Equity, acc.MarginUsed)
	acc.MarginLevel = MarginLevel(acc.Equity, acc.MarginUsed)
	return acc
}
