package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckInvariantsPassesOnConsistentState(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	if v := CheckInvariants(s); v != nil {
		t.Fatalf("unexpected violation: %v", v)
	}
}

func TestCheckInvariantsFlagsNegativeBalance(t *testing.T) {
	s := testState("10000")
	s.Account.Balance = dec("-0.01")
	s.Account = recomputeAccount(s.Account, s.Positions)
	v := CheckInvariants(s)
	if v == nil || v.Invariant != "balance_non_negative" {
		t.Fatalf("violation = %v, want balance_non_negative", v)
	}
}

func TestCheckInvariantsFlagsSubCentBalance(t *testing.T) {
	s := testState("10000")
	s.Account.Balance = dec("10.001")
	s.Account = recomputeAccount(s.Account, s.Positions)
	v := CheckInvariants(s)
	if v == nil || v.Invariant != "balance_currency_precision" {
		t.Fatalf("violation = %v, want balance_currency_precision", v)
	}
}

func TestCheckInvariantsFlagsStaleMarginAggregate(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	s.Account.MarginUsed = dec("1")
	v := CheckInvariants(s)
	if v == nil || v.Invariant != "margin_used_consistent" {
		t.Fatalf("violation = %v, want margin_used_consistent", v)
	}
}

func TestCheckInvariantsFlagsClosedPositionWithoutSettlement(t *testing.T) {
	s := wantOK(t, Run(testState("10000"), marketOpen("p1", SideLong))).State
	p := s.Positions["p1"]
	p.Status = PositionStatusClosed
	p.UnrealizedPnL = decimal.Zero
	s.Positions["p1"] = p
	s.Account = recomputeAccount(s.Account, s.Positions)
	v := CheckInvariants(s)
	if v == nil || v.Invariant != "closed_has_realized_pnl" {
		t.Fatalf("violation = %v, want closed_has_realized_pnl", v)
	}
}

func TestPositionStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to PositionStatus }{
		{PositionStatusPending, PositionStatusOpen},
		{PositionStatusPending, PositionStatusCancelled},
		{PositionStatusOpen, PositionStatusClosed},
	}
	for _, c := range allowed {
		if !positionStatusTransition(c.from, c.to) {
			t.Errorf("%s -> %s must be allowed", c.from, c.to)
		}
	}
	forbidden := []struct{ from, to PositionStatus }{
		{PositionStatusClosed, PositionStatusOpen},
		{PositionStatusCancelled, PositionStatusOpen},
		{PositionStatusOpen, PositionStatusPending},
		{PositionStatusPending, PositionStatusClosed},
	}
	for _, c := range forbidden {
		if positionStatusTransition(c.from, c.to) {
			t.Errorf("%s -> %s must be forbidden", c.from, c.to)
		}
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	if !accountStatusTransition(AccountStatusActive, AccountStatusLiquidationOnly) {
		t.Error("ACTIVE -> LIQUIDATION_ONLY must be allowed")
	}
	if !accountStatusTransition(AccountStatusLiquidationOnly, AccountStatusActive) {
		t.Error("LIQUIDATION_ONLY -> ACTIVE must be allowed")
	}
	if !accountStatusTransition(AccountStatusActive, AccountStatusClosed) {
		t.Error("any status may close")
	}
	if accountStatusTransition(AccountStatusClosed, AccountStatusActive) {
		t.Error("CLOSED is terminal")
	}
}
