package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func mustEffect(t *testing.T, effects []Effect, typ EffectType) Effect {
	t.Helper()
	for _, e := range effects {
		if e.Type == typ {
			return e
		}
	}
	t.Fatalf("effects %v missing %s", effectTypes(effects), typ)
	return Effect{}
}

func effectTypes(effects []Effect) []EffectType {
	out := make([]EffectType, len(effects))
	for i, e := range effects {
		out[i] = e.Type
	}
	return out
}

// 多头开仓止盈的完整路径：开仓不动余额，触价平仓后盈亏落账。
func TestGoldenPathLongTakeProfit(t *testing.T) {
	s := testState("10000")

	open := marketOpen("p1", SideLong)
	open.TakeProfit = ndec("1.12")
	open.Commission = ndec("10")
	res := wantOK(t, Run(s, open))
	s = res.State

	p := s.Positions["p1"]
	if p.Status != PositionStatusOpen || !p.EntryPrice.Equal(dec("1.1")) {
		t.Fatalf("position after open: %+v", p)
	}
	if !p.MarginUsed.Equal(dec("1100")) {
		t.Fatalf("margin used = %s, want 1100", p.MarginUsed)
	}
	if !s.Account.Balance.Equal(dec("10000")) {
		t.Fatalf("open must not move balance, got %s", s.Account.Balance)
	}
	if !s.Account.Equity.Equal(dec("10000")) || !s.Account.FreeMargin.Equal(dec("8900")) {
		t.Fatalf("account after open: %+v", s.Account)
	}

	res = wantOK(t, Run(s, priceEvent("1.12")))
	s = res.State

	mustEffect(t, res.Effects, EffectTakeProfitTriggered)
	closedEff := mustEffect(t, res.Effects, EffectPositionClosed)
	if !closedEff.Amount.Decimal.Equal(dec("1990")) {
		t.Fatalf("realized in effect = %s, want 1990", closedEff.Amount.Decimal)
	}

	p = s.Positions["p1"]
	if p.Status != PositionStatusClosed || p.ClosedBy != ClosedByTakeProfit {
		t.Fatalf("position after trigger: %+v", p)
	}
	if !p.RealizedPnL.Decimal.Equal(dec("1990")) {
		t.Fatalf("realized = %s, want 1990", p.RealizedPnL.Decimal)
	}
	if !s.Account.Balance.Equal(dec("11990")) {
		t.Fatalf("balance = %s, want 11990", s.Account.Balance)
	}
	if !s.Account.MarginUsed.IsZero() || s.Account.MarginLevel.Valid {
		t.Fatalf("margin must be fully released: %+v", s.Account)
	}
}

// 空头止损：边界价触发，亏损连同佣金落账。
func TestGoldenPathShortStopLoss(t *testing.T) {
	s := testState("10000")

	open := marketOpen("p1", SideShort)
	open.StopLoss = ndec("1.12")
	open.Commission = ndec("10")
	s = wantOK(t, Run(s, open)).State

	res := wantOK(t, Run(s, priceEvent("1.12")))
	s = res.State

	mustEffect(t, res.Effects, EffectStopLossTriggered)
	p := s.Positions["p1"]
	if p.ClosedBy != ClosedByStopLoss {
		t.Fatalf("closed by %s, want %s", p.ClosedBy, ClosedByStopLoss)
	}
	if !p.RealizedPnL.Decimal.Equal(dec("-2010")) {
		t.Fatalf("realized = %s, want -2010", p.RealizedPnL.Decimal)
	}
	if !s.Account.Balance.Equal(dec("7990")) {
		t.Fatalf("balance = %s, want 7990", s.Account.Balance)
	}
}

// 但凡止损止盈同时满足，止损优先。
func TestStopLossTakesPriorityOverTakeProfit(t *testing.T) {
	s := testState("10000")
	open := marketOpen("p1", SideLong)
	open.StopLoss = ndec("1.05")
	open.TakeProfit = ndec("1.15")
	s = wantOK(t, Run(s, open)).State

	// 跳空后两个价位同时满足时按止损结算。
	forced := s.Clone()
	p := forced.Positions["p1"]
	p.StopLoss = ndec("1.09")
	p.TakeProfit = ndec("1.05")
	forced.Positions["p1"] = p

	res := wantOK(t, Run(forced, priceEvent("1.05")))
	mustEffect(t, res.Effects, EffectStopLossTriggered)
	for _, e := range res.Effects {
		if e.Type == EffectTakeProfitTriggered {
			t.Fatal("take profit must not fire when stop loss fires")
		}
	}
}

// 三仓级联强平：逐仓按浮亏排序平掉，水平恢复即停，账户状态还原。
func TestGoldenPathLiquidationCascade(t *testing.T) {
	s := testState("12100")
	zero := ndec("0")

	steps := []struct {
		price string
		open  string
	}{
		{"1.06", "p1"},
		{"1.04", "p2"},
		{"1.02", "p3"},
	}
	for _, st := range steps {
		s = wantOK(t, Run(s, priceEvent(st.price))).State
		ev := marketOpen(st.open, SideLong)
		ev.ExecutionPrice = dec(st.price)
		ev.Commission = zero
		s = wantOK(t, Run(s, ev)).State
	}

	res := wantOK(t, Run(s, priceEvent("1.00")))
	s = res.State

	mustEffect(t, res.Effects, EffectLiquidationTriggered)
	done := mustEffect(t, res.Effects, EffectStopOutCompleted)

	// 浮亏最深的先平：p1(-6000)、p2(-4000)、p3(-2000)。
	// StopOutCompleted 按平仓顺序列出仓位。
	want := []string{"p1", "p2", "p3"}
	if len(done.ClosedPositions) != len(want) {
		t.Fatalf("cascade closed %v, want %v", done.ClosedPositions, want)
	}
	for i := range want {
		if done.ClosedPositions[i] != want[i] {
			t.Fatalf("cascade closed %v, want %v", done.ClosedPositions, want)
		}
	}

	var liquidated []string
	for _, e := range res.Effects {
		if e.Type == EffectPositionLiquidated {
			liquidated = append(liquidated, e.PositionID)
		}
	}
	if len(liquidated) != len(want) {
		t.Fatalf("liquidated %v, want %v", liquidated, want)
	}
	for i := range want {
		if liquidated[i] != want[i] {
			t.Fatalf("liquidated %v, want %v", liquidated, want)
		}
	}

	if !s.Account.Balance.Equal(dec("100")) {
		t.Fatalf("balance = %s, want 100", s.Account.Balance)
	}
	if !s.Account.MarginUsed.IsZero() || s.Account.MarginLevel.Valid {
		t.Fatalf("margin must be undefined after full stop out: %+v", s.Account)
	}
	if s.Account.Status != AccountStatusActive {
		t.Fatalf("account status = %s, want ACTIVE after recovery", s.Account.Status)
	}
	for _, id := range want {
		if s.Positions[id].ClosedBy != ClosedByMarginCall {
			t.Fatalf("position %s closed by %s, want MARGIN_CALL", id, s.Positions[id].ClosedBy)
		}
	}
}

func TestMarginCallWarningWithoutStopOut(t *testing.T) {
	// 水平落在 [20, 100) 区间时仅预警，不强平。
	s := testState("2000")
	open := marketOpen("p1", SideLong)
	open.Commission = ndec("0")
	s = wantOK(t, Run(s, open)).State

	// 价格跌至 1.09：浮亏 -1000，净值 1000，水平 = 1000/1100*100 ≈ 90.9。
	res := wantOK(t, Run(s, priceEvent("1.09")))
	mustEffect(t, res.Effects, EffectMarginCallTriggered)
	for _, e := range res.Effects {
		if e.Type == EffectLiquidationTriggered || e.Type == EffectPositionLiquidated {
			t.Fatalf("margin call must not liquidate, got %v", effectTypes(res.Effects))
		}
	}
	if res.State.Positions["p1"].Status != PositionStatusOpen {
		t.Fatal("position must stay open on a margin call warning")
	}
}

func TestLimitOrderLifecycle(t *testing.T) {
	s := testState("10000")

	open := marketOpen("p1", SideLong)
	open.OrderType = OrderTypeLimit
	open.ExecutionPrice = dec("1.05")
	open.Commission = ndec("0")
	res := wantOK(t, Run(s, open))
	s = res.State

	mustEffect(t, res.Effects, EffectPositionPending)
	if s.Positions["p1"].Status != PositionStatusPending {
		t.Fatalf("status = %s, want PENDING", s.Positions["p1"].Status)
	}
	if !s.Account.MarginUsed.IsZero() {
		t.Fatalf("pending order must not consume account margin, used = %s", s.Account.MarginUsed)
	}

	// 价格未触及限价，不成交。
	res = wantOK(t, Run(s, priceEvent("1.07")))
	s = res.State
	if s.Positions["p1"].Status != PositionStatusPending {
		t.Fatal("limit must not fill above the limit price")
	}

	// 触及限价后成交，入场价取限价而非标记价。
	res = wantOK(t, Run(s, priceEvent("1.04")))
	s = res.State
	mustEffect(t, res.Effects, EffectPositionPromoted)
	p := s.Positions["p1"]
	if p.Status != PositionStatusOpen || !p.EntryPrice.Equal(dec("1.05")) {
		t.Fatalf("promoted position: %+v", p)
	}
	if !s.Account.MarginUsed.Equal(dec("1050")) {
		t.Fatalf("margin used = %s, want 1050", s.Account.MarginUsed)
	}
}

func TestCancelPendingReleasesReservation(t *testing.T) {
	s := testState("10000")
	open := marketOpen("p1", SideLong)
	open.OrderType = OrderTypeLimit
	open.ExecutionPrice = dec("1.05")
	s = wantOK(t, Run(s, open)).State

	cancel := CancelPendingEvent{EventMeta: EventMeta{ID: "ev-x1", OccurredAt: "2026-01-02T12:00:00Z"}, PositionID: "p1", AccountID: "acc-1"}
	res := wantOK(t, Run(s, cancel))
	s = res.State

	mustEffect(t, res.Effects, EffectPositionCancelled)
	if s.Positions["p1"].Status != PositionStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", s.Positions["p1"].Status)
	}
	cancel.ID = "ev-x2"
	wantRejected(t, Run(s, cancel), ErrPositionNotPending)
}

func TestAdminCloseCarriesMetadata(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	ev := ClosePositionEvent{
		EventMeta:    EventMeta{ID: "ev-c1", OccurredAt: "2026-01-02T12:00:00Z"},
		PositionID:   "p1",
		AccountID:    "acc-1",
		ClosePrice:   dec("1.1"),
		AdminUserID:  "admin-7",
		AdminComment: "client request over phone",
	}
	s = wantOK(t, Run(s, ev)).State
	p := s.Positions["p1"]
	if p.ClosedBy != ClosedByAdmin || p.AdminUserID != "admin-7" || p.AdminComment == "" {
		t.Fatalf("admin close metadata missing: %+v", p)
	}
}

func TestDepositWithdrawAndBonusFlow(t *testing.T) {
	s := testState("1000")
	meta := func(id string) EventMeta { return EventMeta{ID: id, OccurredAt: "2026-01-02T12:00:00Z"} }

	s = wantOK(t, Run(s, DepositFundsEvent{EventMeta: meta("e1"), AccountID: "acc-1", Amount: dec("500.505")})).State
	if !s.Account.Balance.Equal(dec("1500.5")) {
		t.Fatalf("balance = %s, want 1500.5 after bankers rounding", s.Account.Balance)
	}
	s = wantOK(t, Run(s, AddBonusEvent{EventMeta: meta("e2"), AccountID: "acc-1", Amount: dec("200")})).State
	if !s.Account.Equity.Equal(dec("1700.5")) {
		t.Fatalf("equity = %s, want 1700.5", s.Account.Equity)
	}
	s = wantOK(t, Run(s, WithdrawFundsEvent{EventMeta: meta("e3"), AccountID: "acc-1", Amount: dec("1500.5")})).State
	if !s.Account.Balance.IsZero() || !s.Account.Bonus.Equal(dec("200")) {
		t.Fatalf("account = %+v", s.Account)
	}
}

// 赠金吸收穿仓亏损，余额绝不为负。
func TestBonusAbsorbsExcessLoss(t *testing.T) {
	s := testState("1500")
	meta := EventMeta{ID: "e-b", OccurredAt: "2026-01-02T09:00:00Z"}
	s = wantOK(t, Run(s, AddBonusEvent{EventMeta: meta, AccountID: "acc-1", Amount: dec("1000")})).State

	open := marketOpen("p1", SideLong)
	open.Commission = ndec("0")
	s = wantOK(t, Run(s, open)).State

	// 人工平仓在 1.08：亏 2000，余额 1500 不够，赠金补 500。
	close := ClosePositionEvent{EventMeta: EventMeta{ID: "e-c", OccurredAt: "2026-01-02T10:00:00Z"}, PositionID: "p1", AccountID: "acc-1", ClosePrice: dec("1.08")}
	res := wantOK(t, Run(s, close))
	if !res.State.Account.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", res.State.Account.Balance)
	}
	if !res.State.Account.Bonus.Equal(dec("500")) {
		t.Fatalf("bonus = %s, want 500", res.State.Account.Bonus)
	}
}

// 同一事件序列重放两遍，逐步状态与效果完全一致。
func TestReplayDeterminism(t *testing.T) {
	events := func() []Event {
		open1 := marketOpen("p1", SideLong)
		open1.StopLoss = ndec("1.02")
		open2 := marketOpen("p2", SideShort)
		open2.TakeProfit = ndec("1.03")
		return []Event{
			open1,
			priceEvent("1.08"),
			open2,
			priceEvent("1.03"),
			ClosePositionEvent{EventMeta: EventMeta{ID: "e-c", OccurredAt: "2026-01-02T13:00:00Z"}, PositionID: "p1", AccountID: "acc-1", ClosePrice: dec("1.03")},
		}
	}

	run := func() ([]byte, []Effect) {
		s := testState("50000")
		var all []Effect
		for _, ev := range events() {
			res := Run(s, ev)
			if res.Violated != nil {
				t.Fatalf("violation during replay: %v", res.Violated)
			}
			s = res.State
			all = append(all, res.Effects...)
		}
		raw, err := json.Marshal(s)
		if err != nil {
			t.Fatal(err)
		}
		return raw, all
	}

	raw1, eff1 := run()
	raw2, eff2 := run()
	if string(raw1) != string(raw2) {
		t.Fatal("replay produced different final states")
	}
	if len(eff1) != len(eff2) {
		t.Fatalf("replay produced %d effects then %d", len(eff1), len(eff2))
	}
	for i := range eff1 {
		if eff1[i].Type != eff2[i].Type || eff1[i].PositionID != eff2[i].PositionID {
			t.Fatalf("effect %d differs: %+v vs %+v", i, eff1[i], eff2[i])
		}
	}
}

// 输入状态在任何出口下都不被修改。
func TestInputStateImmutable(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	before, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	wantOK(t, Run(s, priceEvent("1.2")))
	wantRejected(t, Run(s, marketOpen("p1", SideLong)), ErrPositionIDDuplicate)

	after, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("input state was mutated")
	}
}

// 人为构造破坏派生字段的状态，引擎必须报不变量破坏并保留旧状态。
func TestViolationDiscardsNewState(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	s.Account.MarginUsed = dec("9999") // 与持仓合计不一致

	res := Run(s, priceEvent("1.1"))
	if res.Violated != nil {
		// 执行阶段会重算派生字段，这里应当被修复而非报错。
		t.Fatalf("recompute should heal derived fields, got %v", res.Violated)
	}

	bad := s.Clone()
	p := bad.Positions["p1"]
	p.Size = decimal.Zero
	bad.Positions["p1"] = p
	res = Run(bad, priceEvent("1.1"))
	if res.Violated == nil {
		t.Fatal("corrupted position size must trip an invariant")
	}
	if res.Violated.Code != ErrExecutionError {
		t.Fatalf("violation code = %s, want EXECUTION_ERROR", res.Violated.Code)
	}
}

// 市价单按事件携带的成交价入场，标记价只决定浮亏。
func TestOpenSettlesAtExecutionPrice(t *testing.T) {
	s := testState("10000")
	open := marketOpen("p1", SideLong)
	open.Size = dec("10000")
	open.ExecutionPrice = dec("1.2") // 标记价 1.1
	open.Commission = ndec("0")
	s = wantOK(t, Run(s, open)).State

	p := s.Positions["p1"]
	if !p.EntryPrice.Equal(dec("1.2")) {
		t.Fatalf("entry = %s, want execution price 1.2", p.EntryPrice)
	}
	if !p.MarginUsed.Equal(dec("120")) {
		t.Fatalf("margin used = %s, want 120", p.MarginUsed)
	}
	if !p.UnrealizedPnL.Equal(dec("-1000")) {
		t.Fatalf("unrealized = %s, want -1000 against mark 1.1", p.UnrealizedPnL)
	}
}

// 人工平仓按事件携带的成交价结算，不读标记价。
func TestCloseSettlesAtEventPrice(t *testing.T) {
	s := testState("10000")
	open := marketOpen("p1", SideLong)
	open.Commission = ndec("0")
	s = wantOK(t, Run(s, open)).State

	close := ClosePositionEvent{EventMeta: EventMeta{ID: "e-c", OccurredAt: "2026-01-02T12:00:00Z"}, PositionID: "p1", AccountID: "acc-1", ClosePrice: dec("1.25")}
	res := wantOK(t, Run(s, close))

	p := res.State.Positions["p1"]
	if !p.ClosedPrice.Decimal.Equal(dec("1.25")) {
		t.Fatalf("closed price = %s, want 1.25", p.ClosedPrice.Decimal)
	}
	if !p.RealizedPnL.Decimal.Equal(dec("15000")) {
		t.Fatalf("realized = %s, want 15000", p.RealizedPnL.Decimal)
	}
	if !res.State.Account.Balance.Equal(dec("25000")) {
		t.Fatalf("balance = %s, want 25000", res.State.Account.Balance)
	}
}

// 挂单触价成交时重新核查资金，不足则撤单而非强行开仓。
func TestLimitFillCancelledWhenMarginGone(t *testing.T) {
	s := testState("10000")
	open := marketOpen("p1", SideLong)
	open.OrderType = OrderTypeLimit
	open.ExecutionPrice = dec("1.05") // 需要保证金 1050
	s = wantOK(t, Run(s, open)).State

	withdraw := WithdrawFundsEvent{EventMeta: EventMeta{ID: "e-w", OccurredAt: "2026-01-02T11:00:00Z"}, AccountID: "acc-1", Amount: dec("9600")}
	s = wantOK(t, Run(s, withdraw)).State

	res := wantOK(t, Run(s, priceEvent("1.04")))
	s = res.State

	cancelled := mustEffect(t, res.Effects, EffectPositionCancelled)
	if cancelled.Reason != "INSUFFICIENT_MARGIN" {
		t.Fatalf("cancel reason = %s, want INSUFFICIENT_MARGIN", cancelled.Reason)
	}
	for _, e := range res.Effects {
		if e.Type == EffectPositionPromoted {
			t.Fatal("underfunded limit order must not fill")
		}
	}
	if s.Positions["p1"].Status != PositionStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", s.Positions["p1"].Status)
	}
	if !s.Account.MarginUsed.IsZero() {
		t.Fatalf("margin used = %s, want 0", s.Account.MarginUsed)
	}
}

// 持仓上限可单独上调，策略阈值保持不变。
func TestPolicyUpdateRaisesPositionLimit(t *testing.T) {
	s := testState("1000000")
	s.Account.MaxPositions = 1
	s = wantOK(t, Run(s, marketOpen("p1", SideLong))).State
	wantRejected(t, Run(s, marketOpen("p2", SideLong)), ErrPositionLimitExceeded)

	two := 2
	raise := UpdatePoliciesEvent{
		EventMeta:    EventMeta{ID: "e-pol", OccurredAt: "2026-01-02T12:00:00Z"},
		AccountID:    "acc-1",
		MaxPositions: &two,
		AdminUserID:  "admin-1",
		Reason:       "limit raised after review",
	}
	s = wantOK(t, Run(s, raise)).State

	if s.Account.MaxPositions != 2 {
		t.Fatalf("max positions = %d, want 2", s.Account.MaxPositions)
	}
	if !s.Policy.SafetyMarginLevel.Equal(dec("125")) {
		t.Fatalf("thresholds must survive a limit-only update: %+v", s.Policy)
	}
	wantOK(t, Run(s, marketOpen("p2", SideLong)))
}

func TestPolicyUpdateChangesStopOutBehavior(t *testing.T) {
	s := testState("2000")
	open := marketOpen("p1", SideLong)
	open.Commission = ndec("0")
	s = wantOK(t, Run(s, open)).State

	// 把强平线提到 95%，原本只预警的水平现在触发级联。
	tight := DefaultPolicy()
	tight.MarginCallLevel = dec("100")
	tight.StopOutLevel = dec("95")
	s = wantOK(t, Run(s, UpdatePoliciesEvent{EventMeta: EventMeta{ID: "e-pol", OccurredAt: "2026-01-02T12:00:00Z"}, AccountID: "acc-1", Policy: tight, AdminUserID: "admin-1"})).State

	res := wantOK(t, Run(s, priceEvent("1.09")))
	mustEffect(t, res.Effects, EffectLiquidationTriggered)
	if res.State.Positions["p1"].Status != PositionStatusClosed {
		t.Fatal("position must be liquidated under the tightened policy")
	}
}
