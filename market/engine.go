package market

import (
	"sync"
	"time"
)

// Engine orchestrates every state transition of a lending market. All public
// operations run under a single mutex: the host ledger semantics this engine
// mirrors are fully serialized, so no finer-grained locking is needed or
// wanted.
type Engine struct {
	mu sync.Mutex

	state  State
	oracle PriceOracle
	tiers  TierSource
	peers  PeerSource
	events EventSink

	// vaultAccount custodies pool cash; collateralAccount custodies pledged
	// collateral tokens.
	vaultAccount      string
	collateralAccount string

	nowFn func() uint64
}

// NewEngine constructs an engine bound to the module vault accounts.
func NewEngine(vaultAccount, collateralAccount string) *Engine {
	return &Engine{
		vaultAccount:      vaultAccount,
		collateralAccount: collateralAccount,
		nowFn:             func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.state = state
}

// SetOracle wires the price oracle consulted for USD conversions.
func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetTierSource wires the reputation tier lookup used to discount
// origination fees. Optional; absent means tier 0 for everyone.
func (e *Engine) SetTierSource(tiers TierSource) {
	if e == nil {
		return
	}
	e.tiers = tiers
}

// SetPeerSource wires the resolver for peer-market exchange rates.
func (e *Engine) SetPeerSource(peers PeerSource) {
	if e == nil {
		return
	}
	e.peers = peers
}

// SetEventSink wires the optional event receiver.
func (e *Engine) SetEventSink(sink EventSink) {
	if e == nil {
		return
	}
	e.events = sink
}

// SetNowFunc overrides the wall clock. Primarily leveraged in tests to drive
// deterministic accrual slices.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) loadMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	m, err := e.state.GetMarket()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNilMarket
	}
	if m.BorrowIndex == 0 {
		m.BorrowIndex = Scale
	}
	return m, nil
}

func (e *Engine) activeMarket() (*Market, error) {
	m, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, ErrMarketInactive
	}
	return m, nil
}

// transfer moves asset balance between accounts inside the engine's ledger.
func (e *Engine) transfer(from, to, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBal, err := e.state.GetBalance(from, asset)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientBalance
	}
	toBal, err := e.state.GetBalance(to, asset)
	if err != nil {
		return err
	}
	toBal, err = addChecked(toBal, amount)
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(from, asset, fromBal-amount); err != nil {
		return err
	}
	return e.state.SetBalance(to, asset, toBal)
}

// mint credits freshly issued asset units to an account.
func (e *Engine) mint(account, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := e.state.GetBalance(account, asset)
	if err != nil {
		return err
	}
	bal, err = addChecked(bal, amount)
	if err != nil {
		return err
	}
	return e.state.SetBalance(account, asset, bal)
}

// burn destroys asset units held by an account.
func (e *Engine) burn(account, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := e.state.GetBalance(account, asset)
	if err != nil {
		return err
	}
	if bal < amount {
		return ErrInsufficientBalance
	}
	return e.state.SetBalance(account, asset, bal-amount)
}

// poolCash reports the vault's on-hand base asset balance.
func (e *Engine) poolCash(m *Market) (uint64, error) {
	return e.state.GetBalance(e.vaultAccount, m.BaseAsset)
}

// Deposit moves base asset from the depositor into the pool vault and mints
// pool-share tokens at the post-accrual exchange rate. Returns the minted
// share amount.
func (e *Engine) Deposit(depositor string, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	m, err := e.activeMarket()
	if err != nil {
		return 0, err
	}
	if err := e.accrueMarket(m); err != nil {
		return 0, err
	}

	var shares uint64
	if m.TotalDeposits == 0 {
		shares = amount
	} else {
		shares, err = mulDiv(m.CirculatingShares, amount, m.TotalDeposits)
		if err != nil {
			return 0, err
		}
	}
	if shares == 0 {
		// Dust deposit that would mint nothing against the current rate.
		return 0, ErrInvalidAmount
	}

	if err := e.transfer(depositor, e.vaultAccount, m.BaseAsset, amount); err != nil {
		return 0, err
	}
	if err := e.mint(depositor, m.ShareAsset, shares); err != nil {
		return 0, err
	}
	if m.TotalDeposits, err = addChecked(m.TotalDeposits, amount); err != nil {
		return 0, err
	}
	if m.CirculatingShares, err = addChecked(m.CirculatingShares, shares); err != nil {
		return 0, err
	}

	record, err := e.state.GetDeposit(depositor)
	if err != nil {
		return 0, err
	}
	if record == nil {
		record = &DepositRecord{Depositor: depositor}
	}
	if record.Principal, err = addChecked(record.Principal, amount); err != nil {
		return 0, err
	}
	record.LastUpdated = e.now()
	if err := e.state.PutDeposit(record); err != nil {
		return 0, err
	}

	if err := refreshRate(m); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return 0, err
	}

	e.emit(newEvent(EventTypeDeposit).
		attr("depositor", depositor).
		amount("amount", amount).
		amount("shares", shares))
	return shares, nil
}

// Withdraw burns pool-share tokens and pays out the corresponding base asset
// at the post-accrual exchange rate. Returns the amount paid out.
func (e *Engine) Withdraw(depositor string, shares uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	m, err := e.activeMarket()
	if err != nil {
		return 0, err
	}
	if err := e.accrueMarket(m); err != nil {
		return 0, err
	}
	if m.CirculatingShares == 0 || shares > m.CirculatingShares {
		return 0, ErrInsufficientBalance
	}

	amount, err := mulDiv(m.TotalDeposits, shares, m.CirculatingShares)
	if err != nil {
		return 0, err
	}
	cash, err := e.poolCash(m)
	if err != nil {
		return 0, err
	}
	if cash < amount {
		return 0, ErrInsufficientLiquidity
	}

	if err := e.burn(depositor, m.ShareAsset, shares); err != nil {
		return 0, err
	}
	if err := e.transfer(e.vaultAccount, depositor, m.BaseAsset, amount); err != nil {
		return 0, err
	}
	m.CirculatingShares -= shares
	m.TotalDeposits = subSat(m.TotalDeposits, amount)

	record, err := e.state.GetDeposit(depositor)
	if err != nil {
		return 0, err
	}
	if record != nil {
		record.Principal = subSat(record.Principal, amount)
		record.LastUpdated = e.now()
		if err := e.state.PutDeposit(record); err != nil {
			return 0, err
		}
	}

	if err := refreshRate(m); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return 0, err
	}

	e.emit(newEvent(EventTypeWithdraw).
		attr("depositor", depositor).
		amount("shares", shares).
		amount("amount", amount))
	return amount, nil
}

// GetCirculatingShares exposes the share supply so this market's pool-share
// token can itself be pledged as collateral in a peer market. Must not take
// the operation mutex: a peer lookup can arrive while an engine holds its
// mutex mid-valuation, and state backends serialize their own reads.
func (e *Engine) GetCirculatingShares() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	m, err := e.state.GetMarket()
	if err != nil || m == nil {
		return 0
	}
	return m.CirculatingShares
}

// GetTotalDeposits is the companion exchange-rate input to
// GetCirculatingShares. Same locking constraint.
func (e *Engine) GetTotalDeposits() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	m, err := e.state.GetMarket()
	if err != nil || m == nil {
		return 0
	}
	return m.TotalDeposits
}

// MarketView returns a copy of the market aggregates.
func (e *Engine) MarketView() (*Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// LoanView resolves a loan record together with its current live debt.
func (e *Engine) LoanView(borrower string) (*LoanRecord, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.loadMarket()
	if err != nil {
		return nil, 0, err
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, 0, err
	}
	if loan == nil {
		return nil, 0, ErrLoanNotFound
	}
	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return nil, 0, err
	}
	return loan.Clone(), debt, nil
}

// DepositView resolves a depositor's informational record.
func (e *Engine) DepositView(depositor string) (*DepositRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	record, err := e.state.GetDeposit(depositor)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrDepositNotFound
	}
	return record.Clone(), nil
}

// BalanceView reports a ledger balance.
func (e *Engine) BalanceView(account, asset string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0, ErrNilState
	}
	return e.state.GetBalance(account, asset)
}
