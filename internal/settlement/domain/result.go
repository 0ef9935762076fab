package domain

import "fmt"

// ErrorCode 事件拒绝原因。校验失败属于正常业务流，不是引擎缺陷。
type ErrorCode string

const (
	ErrUnknownEventType        ErrorCode = "UNKNOWN_EVENT_TYPE"
	ErrInvalidEventPayload     ErrorCode = "INVALID_EVENT_PAYLOAD"
	ErrAccountNotFound         ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrInvalidAccountStatus    ErrorCode = "INVALID_ACCOUNT_STATUS"
	ErrInvalidBalance          ErrorCode = "INVALID_BALANCE"
	ErrMarketNotFound          ErrorCode = "MARKET_NOT_FOUND"
	ErrPositionIDDuplicate     ErrorCode = "POSITION_ID_DUPLICATE"
	ErrPositionNotFound        ErrorCode = "POSITION_NOT_FOUND"
	ErrPositionNotOwned        ErrorCode = "POSITION_NOT_OWNED"
	ErrPositionNotOpen         ErrorCode = "POSITION_NOT_OPEN"
	ErrPositionAlreadyClosed   ErrorCode = "POSITION_ALREADY_CLOSED"
	ErrPositionNotPending      ErrorCode = "POSITION_NOT_PENDING"
	ErrInvalidStopLoss         ErrorCode = "INVALID_STOP_LOSS"
	ErrInvalidTakeProfit       ErrorCode = "INVALID_TAKE_PROFIT"
	ErrLeverageExceeded        ErrorCode = "LEVERAGE_EXCEEDED"
	ErrSizeBelowMinimum        ErrorCode = "SIZE_BELOW_MINIMUM"
	ErrSizeAboveMaximum        ErrorCode = "SIZE_ABOVE_MAXIMUM"
	ErrPositionLimitExceeded   ErrorCode = "POSITION_LIMIT_EXCEEDED"
	ErrInsufficientMargin      ErrorCode = "INSUFFICIENT_MARGIN"
	ErrMarginLevelInsufficient ErrorCode = "MARGIN_LEVEL_INSUFFICIENT"
	ErrInvalidAmount           ErrorCode = "INVALID_AMOUNT"
	ErrInvalidPolicy           ErrorCode = "INVALID_POLICY"
	ErrExecutionError          ErrorCode = "EXECUTION_ERROR"
)

// Rejection 校验阶段的首个失败。校验按固定顺序执行，只报第一个错。
type Rejection struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code ErrorCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Violation 执行后不变量断言失败，表示引擎自身缺陷而非业务拒绝。
// 出现 Violation 时新状态必须被丢弃。
type Violation struct {
	Invariant string    `json:"invariant"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", v.Invariant, v.Message)
}

func violation(invariant, format string, args ...any) *Violation {
	return &Violation{Invariant: invariant, Code: ErrExecutionError, Message: fmt.Sprintf(format, args...)}
}

// Result 引擎单次运行的结果。三种互斥出口：
// Rejected 非空为校验拒绝，Violated 非空为不变量破坏，否则成功。
// 成功时 State 是新快照，Effects 为本次产生的全部效果（按产生顺序）。
type Result struct {
	State    EngineState `json:"state"`
	Effects  []Effect    `json:"effects"`
	Rejected *Rejection  `json:"rejected,omitempty"`
	Violated *Violation  `json:"violated,omitempty"`
}

func (r Result) OK() bool { return r.Rejected == nil && r.Violated == nil }
