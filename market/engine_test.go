package market

import (
	"errors"
	"testing"
)

func TestDepositMintsOneToOneOnFreshPool(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	const amount = 200_000_050
	state.balances[balanceKey("alice", testBaseAsset)] = amount

	shares, err := engine.Deposit("alice", amount)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares != amount {
		t.Fatalf("expected %d shares on empty pool, got %d", amount, shares)
	}
	if got := state.balances[balanceKey("alice", testShareAsset)]; got != amount {
		t.Fatalf("share balance = %d, want %d", got, amount)
	}
	if got := state.balances[balanceKey(testVault, testBaseAsset)]; got != amount {
		t.Fatalf("vault cash = %d, want %d", got, amount)
	}
	if state.market.TotalDeposits != amount || state.market.CirculatingShares != amount {
		t.Fatalf("aggregates = (%d, %d), want (%d, %d)",
			state.market.TotalDeposits, state.market.CirculatingShares, amount, amount)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	shares := fundPool(t, engine, state, "alice", 200_000_050)
	amount, err := engine.Withdraw("alice", shares)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 200_000_050 {
		t.Fatalf("round trip returned %d, want 200000050", amount)
	}
	if state.market.CirculatingShares != 0 {
		t.Fatalf("circulating shares = %d after full exit", state.market.CirculatingShares)
	}
	if got := state.balances[balanceKey("alice", testBaseAsset)]; got != 200_000_050 {
		t.Fatalf("alice balance = %d, want 200000050", got)
	}
}

func TestDepositRejectsZeroAndDust(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	if _, err := engine.Deposit("alice", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: got %v, want ErrInvalidAmount", err)
	}

	// Skew the exchange rate so a one-unit deposit mints zero shares.
	fundPool(t, engine, state, "alice", 10)
	state.market.TotalDeposits = 1_000_000
	state.balances[balanceKey("bob", testBaseAsset)] = 1
	if _, err := engine.Deposit("bob", 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("dust deposit: got %v, want ErrInvalidAmount", err)
	}
}

func TestDepositRejectsInsufficientBalance(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	state.balances[balanceKey("alice", testBaseAsset)] = 99
	if _, err := engine.Deposit("alice", 100); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestWithdrawBlockedByOutstandingBorrows(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	shares := fundPool(t, engine, state, "alice", 1_000_000)

	// Drain most of the vault as if borrowed out.
	state.balances[balanceKey(testVault, testBaseAsset)] = 100
	if _, err := engine.Withdraw("alice", shares); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("got %v, want ErrInsufficientLiquidity", err)
	}
}

func TestWithdrawRejectsExcessShares(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	shares := fundPool(t, engine, state, "alice", 1_000_000)
	if _, err := engine.Withdraw("alice", shares+1); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestOperationsRejectedWhileInactive(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	state.balances[balanceKey("alice", testBaseAsset)] = 1_000
	state.market.Active = false

	if _, err := engine.Deposit("alice", 1_000); !errors.Is(err, ErrMarketInactive) {
		t.Fatalf("deposit on paused market: got %v, want ErrMarketInactive", err)
	}
	if _, err := engine.Borrow("alice", testCollateral, 100, 100); !errors.Is(err, ErrMarketInactive) {
		t.Fatalf("borrow on paused market: got %v, want ErrMarketInactive", err)
	}
}

func TestSecondDepositorEarnsProRataShares(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 1_000_000)

	// Simulate accrued depositor interest: deposits grew, shares did not.
	state.market.TotalDeposits = 2_000_000

	state.balances[balanceKey("bob", testBaseAsset)] = 1_000_000
	shares, err := engine.Deposit("bob", 1_000_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// 1,000,000 shares over 2,000,000 deposits: half a share per unit.
	if shares != 500_000 {
		t.Fatalf("bob shares = %d, want 500000", shares)
	}
}

func TestEngineExposesPeerViewPair(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 750_000)
	if got := engine.GetCirculatingShares(); got != 750_000 {
		t.Fatalf("GetCirculatingShares = %d, want 750000", got)
	}
	if got := engine.GetTotalDeposits(); got != 750_000 {
		t.Fatalf("GetTotalDeposits = %d, want 750000", got)
	}
}

func TestPeerViewResolvableDuringOperations(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	fundPool(t, engine, state, "alice", 1_000_000_000)
	// Route the collateral's peer lookup back to this engine's own view pair.
	// The valuation happens while Borrow holds the operation mutex, so the
	// view pair must complete without re-acquiring it.
	engine.SetPeerSource(stubPeerSource{testPeerMarket: engine})

	state.balances[balanceKey("bob", testCollateral)] = 1_000_000
	res, err := engine.Borrow("bob", testCollateral, 1_000_000, 100_000)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// The pool's own 1:1 share exchange rate values the pledge at 1,000,000
	// micro-USD; 100,000 borrowed at a 1% fee disburses 99,000.
	if res.Disbursed != 99_000 {
		t.Fatalf("disbursed = %d, want 99000", res.Disbursed)
	}
}

func TestLoanViewDerivesLiveDebt(t *testing.T) {
	engine, state, _ := newTestEngine(t)

	openLoan(t, state, "bob", 100_000, 500_000)
	state.market.BorrowIndex = Scale + Scale/10 // 10% accrued since snapshot

	loan, debt, err := engine.LoanView("bob")
	if err != nil {
		t.Fatalf("loan view: %v", err)
	}
	if loan.Principal != 100_000 {
		t.Fatalf("stored principal mutated to %d", loan.Principal)
	}
	if debt != 110_000 {
		t.Fatalf("live debt = %d, want 110000", debt)
	}
}

func TestViewsReportMissingRecords(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, _, err := engine.LoanView("nobody"); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("loan view: got %v, want ErrLoanNotFound", err)
	}
	if _, err := engine.DepositView("nobody"); !errors.Is(err, ErrDepositNotFound) {
		t.Fatalf("deposit view: got %v, want ErrDepositNotFound", err)
	}
	if _, err := engine.CollateralView("nothing"); !errors.Is(err, ErrCollateralUnknown) {
		t.Fatalf("collateral view: got %v, want ErrCollateralUnknown", err)
	}
}
