// Package domain 实现确定性结算引擎核心：纯函数状态机，
// 输入一份状态快照和一个事件，输出新快照与效果列表。
// 核心不做任何 I/O，不读时钟，不生成 ID，同样的输入永远产出同样的输出。
package domain

// Run 引擎唯一入口。三种互斥出口：
//   - 校验失败：Rejected 非空，State 原样返回
//   - 不变量破坏或执行 panic：Violated 非空，新状态被丢弃，State 原样返回
//   - 成功：State 为新快照，Effects 按产生顺序排列
//
// 入参 state 绝不被修改，执行在克隆副本上进行。
func Run(state EngineState, event Event) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				State:    state,
				Violated: violation("no_panic_in_execution", "execution panicked: %v", r),
			}
		}
	}()

	if rej := validate(state, event); rej != nil {
		return Result{State: state, Rejected: rej}
	}

	next, effects := execute(state.Clone(), event)

	if v := CheckInvariants(next); v != nil {
		return Result{State: state, Violated: v}
	}
	return Result{State: next, Effects: effects}
}

// NewState 构造初始引擎状态。
func NewState(account AccountState, markets []MarketState, policy Policy) EngineState {
	ms := make(map[string]MarketState, len(markets))
	for _, m := range markets {
		ms[m.MarketID] = m
	}
	s := EngineState{
		Account:   account,
		Positions: make(map[string]PositionState),
		Markets:   ms,
		Policy:    policy,
	}
	s.Account = recomputeAccount(s.Account, s.Positions)
	return s
}
