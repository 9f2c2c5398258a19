package market

import (
	"errors"
	"testing"
)

func TestDynamicBonus(t *testing.T) {
	tests := []struct {
		name      string
		ltv       uint64
		threshold uint64
		maxBonus  uint64
		want      uint64
	}{
		{name: "at threshold no bonus", ltv: 9_000, threshold: 9_000, maxBonus: 800, want: 0},
		{name: "halfway to insolvency", ltv: 9_500, threshold: 9_000, maxBonus: 800, want: 400},
		{name: "insolvent caps at max", ltv: 11_000, threshold: 9_000, maxBonus: 800, want: 800},
		{name: "tiny overshoot floors to one", ltv: 9_001, threshold: 9_000, maxBonus: 800, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dynamicBonusBps(tc.ltv, tc.threshold, tc.maxBonus)
			if err != nil {
				t.Fatalf("dynamicBonusBps: %v", err)
			}
			if got != tc.want {
				t.Fatalf("bonus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLiquidateRejectsHealthyPosition(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	// LTV 89.99%: just under the 90% threshold.
	openLoan(t, state, "bob", 899_900, 1_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 1_000_000

	if _, err := engine.Liquidate("liq", "bob", 100_000); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("got %v, want ErrNotLiquidatable", err)
	}
}

func TestLiquidatePartialAppliesScaledBonus(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	// Debt 950,000 against 1,000,000 of collateral value: LTV 95%, which is
	// halfway between the 90% threshold and insolvency, so the bonus is half
	// of the 800 bps maximum.
	openLoan(t, state, "bob", 950_000, 1_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 1_000_000

	res, err := engine.Liquidate("liq", "bob", 100_000)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if res.BonusBps != 400 {
		t.Fatalf("bonus = %d bps, want 400", res.BonusBps)
	}
	if res.Repaid != 100_000 {
		t.Fatalf("repaid = %d, want 100000", res.Repaid)
	}
	// Seizure carries the 4% premium.
	if res.Seized != 104_000 {
		t.Fatalf("seized = %d, want 104000", res.Seized)
	}
	if res.Closed {
		t.Fatal("partial liquidation must not close the loan")
	}

	loan := state.loans["bob"]
	if loan.Principal != 850_000 {
		t.Fatalf("residual principal = %d, want 850000", loan.Principal)
	}
	if loan.CollateralAmount != 896_000 {
		t.Fatalf("residual pledge = %d, want 896000", loan.CollateralAmount)
	}
	if got := state.balances[balanceKey("liq", testCollateral)]; got != 104_000 {
		t.Fatalf("liquidator collateral = %d, want 104000", got)
	}
	if got := state.balances[balanceKey("liq", testBaseAsset)]; got != 900_000 {
		t.Fatalf("liquidator base = %d, want 900000", got)
	}
	if state.market.TotalBorrows != 850_000 {
		t.Fatalf("total borrows = %d, want 850000", state.market.TotalBorrows)
	}
	if state.collaterals[testCollateral].TotalPledged != 896_000 {
		t.Fatalf("pledged total = %d, want 896000", state.collaterals[testCollateral].TotalPledged)
	}
}

func TestLiquidateUnderwaterRequiresFullRepay(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	// Debt exceeds collateral value: partial offers are refused outright.
	openLoan(t, state, "bob", 1_100_000, 1_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 2_000_000

	if _, err := engine.Liquidate("liq", "bob", 500_000); !errors.Is(err, ErrFullRepayRequired) {
		t.Fatalf("partial on underwater: got %v, want ErrFullRepayRequired", err)
	}

	res, err := engine.Liquidate("liq", "bob", 1_100_000)
	if err != nil {
		t.Fatalf("full liquidation: %v", err)
	}
	if !res.Closed {
		t.Fatal("full liquidation must close the loan")
	}
	if res.Repaid != 1_100_000 {
		t.Fatalf("repaid = %d, want 1100000", res.Repaid)
	}
	// The collateral/debt gap is zero, so the bonus collapses and the
	// liquidator takes exactly the pledged collateral.
	if res.BonusBps != 0 {
		t.Fatalf("bonus = %d, want 0", res.BonusBps)
	}
	if res.Seized != 1_000_000 {
		t.Fatalf("seized = %d, want 1000000", res.Seized)
	}
	if state.loans["bob"] != nil {
		t.Fatal("loan record should be gone")
	}
	if state.market.ActiveLoanCount != 0 {
		t.Fatalf("active loans = %d, want 0", state.market.ActiveLoanCount)
	}
	if state.collaterals[testCollateral].TotalPledged != 0 {
		t.Fatalf("pledged total = %d, want 0", state.collaterals[testCollateral].TotalPledged)
	}
}

func TestLiquidateNearInsolvencyBonusCappedByGap(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	// Collateral barely exceeds debt: the curve asks for 760 bps but the
	// 5,000 micro-USD gap over a 994,000 repay only supports 50 bps. The
	// seizure premium can never eat into value the debt already claims.
	openLoan(t, state, "bob", 995_000, 1_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 2_000_000

	res, err := engine.Liquidate("liq", "bob", 994_000)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if res.BonusBps != 50 {
		t.Fatalf("bonus = %d bps, want 50", res.BonusBps)
	}
	if res.Repaid != 994_000 {
		t.Fatalf("repaid = %d, want 994000", res.Repaid)
	}
	if res.Seized != 998_970 {
		t.Fatalf("seized = %d, want 998970", res.Seized)
	}
	if res.Seized > 1_000_000 {
		t.Fatalf("seized %d exceeds the pledge", res.Seized)
	}
	if res.Closed {
		t.Fatal("partial liquidation must not close the loan")
	}
	if got := state.loans["bob"].Principal; got != 1_000 {
		t.Fatalf("residual principal = %d, want 1000", got)
	}
}

func TestLiquidateWorthlessCollateralNeedsFullRepay(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	// Collapsed peer market: the pledged share token no longer converts to
	// any underlying, so collateral value is zero and LTV is unbounded.
	engine.SetPeerSource(stubPeerSource{testPeerMarket: stubPeer{}})

	fundPool(t, engine, state, "alice", 10_000_000)
	openLoan(t, state, "bob", 500_000, 1_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 1_000_000

	// Unbounded ratio: liquidatable, but only in full.
	if _, err := engine.Liquidate("liq", "bob", 100_000); !errors.Is(err, ErrFullRepayRequired) {
		t.Fatalf("partial: got %v, want ErrFullRepayRequired", err)
	}
	res, err := engine.Liquidate("liq", "bob", 500_000)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if !res.Closed || res.Repaid != 500_000 {
		t.Fatalf("result = %+v, want closed with 500000 repaid", res)
	}
	// Nothing of value to seize; the worthless pledge is released back to
	// the borrower when the loan closes.
	if res.Seized != 0 {
		t.Fatalf("seized = %d, want 0", res.Seized)
	}
	if got := state.balances[balanceKey("bob", testCollateral)]; got != 1_000_000 {
		t.Fatalf("released pledge = %d, want 1000000", got)
	}
}

func TestBuyoutPremiumScalesWithHealth(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	// LTV 60% against a 90% threshold: premium rate (9000/6000 - 1) = 50%.
	openLoan(t, state, "bob", 600_000, 1_000_000)
	state.balances[balanceKey("buyer", testBaseAsset)] = 1_000_000
	state.balances[balanceKey("buyer", testPremium)] = 1_000_000

	res, err := engine.Buyout("buyer", "bob", 600_000, 600_000)
	if err != nil {
		t.Fatalf("buyout: %v", err)
	}
	if res.PremiumRateBps != 5_000 {
		t.Fatalf("premium rate = %d bps, want 5000", res.PremiumRateBps)
	}
	// 50% of the 1,000,000 micro-USD collateral value, paid in the premium
	// asset at $1.
	if res.PremiumPaid != 500_000 {
		t.Fatalf("premium = %d, want 500000", res.PremiumPaid)
	}
	if res.DebtRepaid != 600_000 {
		t.Fatalf("debt repaid = %d, want 600000", res.DebtRepaid)
	}
	if res.CollateralOut != 1_000_000 {
		t.Fatalf("collateral out = %d, want 1000000", res.CollateralOut)
	}

	// Premium splits evenly between protocol custody and the borrower, and
	// the protocol half is tracked for fee withdrawal.
	if got := state.balances[balanceKey(testVault, testPremium)]; got != 250_000 {
		t.Fatalf("protocol premium = %d, want 250000", got)
	}
	if state.market.PremiumFeePool != 250_000 {
		t.Fatalf("premium fee pool = %d, want 250000", state.market.PremiumFeePool)
	}
	if got := state.balances[balanceKey("bob", testPremium)]; got != 250_000 {
		t.Fatalf("borrower premium = %d, want 250000", got)
	}
	if got := state.balances[balanceKey("buyer", testCollateral)]; got != 1_000_000 {
		t.Fatalf("buyer collateral = %d, want 1000000", got)
	}
	if state.loans["bob"] != nil {
		t.Fatal("loan record should be gone after buyout")
	}
	if state.market.TotalBorrows != 0 {
		t.Fatalf("total borrows = %d, want 0", state.market.TotalBorrows)
	}
}

func TestBuyoutRejectsUnderfundedOffers(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	openLoan(t, state, "bob", 600_000, 1_000_000)
	state.balances[balanceKey("buyer", testBaseAsset)] = 1_000_000
	state.balances[balanceKey("buyer", testPremium)] = 1_000_000

	if _, err := engine.Buyout("buyer", "bob", 499_999, 600_000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("short premium: got %v, want ErrInsufficientBalance", err)
	}
	if _, err := engine.Buyout("buyer", "bob", 500_000, 599_999); !errors.Is(err, ErrFullRepayRequired) {
		t.Fatalf("short repay: got %v, want ErrFullRepayRequired", err)
	}
}

func TestLiquidationAndBuyoutWindowsPartition(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 10_000_000)
	state.balances[balanceKey("liq", testBaseAsset)] = 2_000_000
	state.balances[balanceKey("liq", testPremium)] = 2_000_000

	// Exactly at the threshold: liquidatable, not buyable.
	openLoan(t, state, "bob", 900_000, 1_000_000)
	if _, err := engine.Buyout("liq", "bob", 2_000_000, 2_000_000); !errors.Is(err, ErrNotBuyoutEligible) {
		t.Fatalf("buyout at threshold: got %v, want ErrNotBuyoutEligible", err)
	}
	if _, err := engine.Liquidate("liq", "bob", 900_000); err != nil {
		t.Fatalf("liquidate at threshold: %v", err)
	}

	// One micro-USD below the threshold: buyable, not liquidatable.
	openLoan(t, state, "carol", 899_999, 1_000_000)
	if _, err := engine.Liquidate("liq", "carol", 899_999); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("liquidate below threshold: got %v, want ErrNotLiquidatable", err)
	}
	if _, err := engine.Buyout("liq", "carol", 2_000_000, 899_999); err != nil {
		t.Fatalf("buyout below threshold: %v", err)
	}
}
