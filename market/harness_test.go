package market

import "testing"

// mockState is a map-backed State used by the engine tests.
type mockState struct {
	market      *Market
	loans       map[string]*LoanRecord
	deposits    map[string]*DepositRecord
	collaterals map[string]*CollateralType
	balances    map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		loans:       make(map[string]*LoanRecord),
		deposits:    make(map[string]*DepositRecord),
		collaterals: make(map[string]*CollateralType),
		balances:    make(map[string]uint64),
	}
}

func balanceKey(account, asset string) string { return account + "/" + asset }

func (s *mockState) GetMarket() (*Market, error) { return s.market.Clone(), nil }

func (s *mockState) PutMarket(m *Market) error {
	s.market = m.Clone()
	return nil
}

func (s *mockState) GetLoan(borrower string) (*LoanRecord, error) {
	return s.loans[borrower].Clone(), nil
}

func (s *mockState) PutLoan(loan *LoanRecord) error {
	s.loans[loan.Borrower] = loan.Clone()
	return nil
}

func (s *mockState) DeleteLoan(borrower string) error {
	delete(s.loans, borrower)
	return nil
}

func (s *mockState) Loans() ([]*LoanRecord, error) {
	out := make([]*LoanRecord, 0, len(s.loans))
	for _, loan := range s.loans {
		out = append(out, loan.Clone())
	}
	return out, nil
}

func (s *mockState) GetDeposit(depositor string) (*DepositRecord, error) {
	return s.deposits[depositor].Clone(), nil
}

func (s *mockState) PutDeposit(record *DepositRecord) error {
	s.deposits[record.Depositor] = record.Clone()
	return nil
}

func (s *mockState) Deposits() ([]*DepositRecord, error) {
	out := make([]*DepositRecord, 0, len(s.deposits))
	for _, record := range s.deposits {
		out = append(out, record.Clone())
	}
	return out, nil
}

func (s *mockState) GetCollateral(asset string) (*CollateralType, error) {
	return s.collaterals[asset].Clone(), nil
}

func (s *mockState) PutCollateral(ct *CollateralType) error {
	s.collaterals[ct.Asset] = ct.Clone()
	return nil
}

func (s *mockState) DeleteCollateral(asset string) error {
	delete(s.collaterals, asset)
	return nil
}

func (s *mockState) Collaterals() ([]*CollateralType, error) {
	out := make([]*CollateralType, 0, len(s.collaterals))
	for _, ct := range s.collaterals {
		out = append(out, ct.Clone())
	}
	return out, nil
}

func (s *mockState) GetBalance(account, asset string) (uint64, error) {
	return s.balances[balanceKey(account, asset)], nil
}

func (s *mockState) SetBalance(account, asset string, amount uint64) error {
	s.balances[balanceKey(account, asset)] = amount
	return nil
}

// stubOracle serves fixed micro-USD quotes.
type stubOracle map[string]uint64

func (o stubOracle) GetPrice(asset string) (PriceQuote, error) {
	price, ok := o[asset]
	if !ok {
		return PriceQuote{}, ErrZeroOraclePrice
	}
	return PriceQuote{PriceMicroUSD: price, LastUpdated: 1}, nil
}

// stubPeer is a fixed exchange-rate view.
type stubPeer struct {
	shares   uint64
	deposits uint64
}

func (p stubPeer) GetCirculatingShares() uint64 { return p.shares }
func (p stubPeer) GetTotalDeposits() uint64     { return p.deposits }

type stubPeerSource map[string]PeerView

func (s stubPeerSource) Peer(marketID string) (PeerView, bool) {
	view, ok := s[marketID]
	return view, ok
}

type stubTiers map[string]uint8

func (t stubTiers) GetTier(account string) uint8 { return t[account] }

type testClock struct {
	now uint64
}

func (c *testClock) Now() uint64       { return c.now }
func (c *testClock) Advance(dt uint64) { c.now += dt }
func (c *testClock) Set(ts uint64)     { c.now = ts }

const (
	testVault      = "vault"
	testCustody    = "collateral-vault"
	testBaseAsset  = "ZUSD"
	testShareAsset = "zusd-lp"
	testPremium    = "ORB"
	testCollateral = "alpha-lp"
	testUnderlying = "ALPHA"
	testPeerMarket = "alpha"

	testParamAdmin     = "param-admin"
	testFeeAdmin       = "fee-admin"
	testInitAdmin      = "init-admin"
	testMigrationAdmin = "migration-admin"

	testGenesisTime uint64 = 1_700_000_000
)

// newTestEngine wires an engine over fresh mock state with $1 quotes for
// every asset and a 1:1 peer exchange rate, so one base unit equals one
// micro-USD throughout the tests.
func newTestEngine(t *testing.T) (*Engine, *mockState, *testClock) {
	t.Helper()

	state := newMockState()
	state.market = &Market{
		BaseAsset:       testBaseAsset,
		BaseDecimals:    6,
		ShareAsset:      testShareAsset,
		PremiumAsset:    testPremium,
		PremiumDecimals: 6,
		BorrowIndex:     Scale,
		LastAccrualTime: testGenesisTime,
		Active:          true,
		Rate: RateParams{
			BaseBps:    100,
			UtilCapBps: 10_000,
			KinkBps:    8_000,
			Slope1Bps:  400,
			Slope2Bps:  6_000,
		},
		Risk: RiskParams{
			LTVBps:            2_500,
			LiqThresholdBps:   9_000,
			LiqBonusBps:       800,
			OriginationFeeBps: 100,
			ProtocolShareBps:  1_000,
		},
		ParamAdmin:     testParamAdmin,
		FeeAdmin:       testFeeAdmin,
		InitAdmin:      testInitAdmin,
		MigrationAdmin: testMigrationAdmin,
	}
	state.collaterals[testCollateral] = &CollateralType{
		Asset:              testCollateral,
		UnderlyingAsset:    testUnderlying,
		UnderlyingDecimals: 6,
		MarketBaseAsset:    testBaseAsset,
		MarketBaseDecimals: 6,
		PeerMarket:         testPeerMarket,
	}

	clock := &testClock{now: testGenesisTime}
	engine := NewEngine(testVault, testCustody)
	engine.SetState(state)
	engine.SetOracle(stubOracle{
		testBaseAsset:  1_000_000,
		testUnderlying: 1_000_000,
		testPremium:    1_000_000,
	})
	engine.SetPeerSource(stubPeerSource{
		testPeerMarket: stubPeer{shares: 1_000_000_000, deposits: 1_000_000_000},
	})
	engine.SetNowFunc(clock.Now)
	return engine, state, clock
}

// fundPool seeds a depositor balance and routes it through Deposit so the
// vault holds lendable cash.
func fundPool(t *testing.T, engine *Engine, state *mockState, depositor string, amount uint64) uint64 {
	t.Helper()
	state.balances[balanceKey(depositor, testBaseAsset)] += amount
	shares, err := engine.Deposit(depositor, amount)
	if err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	return shares
}

// openLoan writes a loan position directly into state, bypassing the borrow
// path, so tests can shape exact debt/collateral ratios.
func openLoan(t *testing.T, state *mockState, borrower string, principal, collateral uint64) {
	t.Helper()
	state.loans[borrower] = &LoanRecord{
		Borrower:         borrower,
		CollateralAsset:  testCollateral,
		CollateralAmount: collateral,
		Principal:        principal,
		UserIndex:        state.market.BorrowIndex,
	}
	state.collaterals[testCollateral].TotalPledged += collateral
	state.balances[balanceKey(testCustody, testCollateral)] += collateral
	state.market.TotalBorrows += principal
	state.market.ActiveLoanCount++
}
