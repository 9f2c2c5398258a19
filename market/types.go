package market

// RateParams shapes the kinked borrow rate curve. All values are expressed in
// basis points for deterministic accounting.
type RateParams struct {
	// BaseBps is the minimum borrow APR applied when utilization is zero.
	BaseBps uint64
	// UtilCapBps bounds borrowing relative to total deposits; utilization is
	// normalized against this cap rather than raw deposits.
	UtilCapBps uint64
	// KinkBps is the utilization point where the curve slope changes.
	KinkBps uint64
	// Slope1Bps is the APR increase across the pre-kink segment.
	Slope1Bps uint64
	// Slope2Bps is the additional APR increase across the post-kink segment.
	Slope2Bps uint64
	// MaxAprBps clamps the resulting APR when nonzero.
	MaxAprBps uint64
}

// RiskParams groups the governance controlled safety limits for the market.
type RiskParams struct {
	// LTVBps is the maximum loan-to-value ratio permitted on borrow.
	LTVBps uint64
	// LiqThresholdBps is the LTV where positions become liquidatable.
	LiqThresholdBps uint64
	// LiqBonusBps is the maximum liquidation bonus; the effective bonus grows
	// linearly from zero at the threshold toward this value.
	LiqBonusBps uint64
	// OriginationFeeBps is the nominal borrow fee before tier discounts.
	OriginationFeeBps uint64
	// ProtocolShareBps is the slice of accrued interest routed to the fee pool.
	ProtocolShareBps uint64
}

// Market captures the global accounting state for one deployed market
// instance. Amounts are unsigned base units of the respective asset.
type Market struct {
	// BaseAsset identifies the deposited and borrowed asset.
	BaseAsset string
	// BaseDecimals is the base asset's decimal precision.
	BaseDecimals uint32
	// ShareAsset identifies the pool-share token minted to depositors.
	ShareAsset string
	// PremiumAsset denominates buyout premium payments.
	PremiumAsset string
	// PremiumDecimals is the premium asset's decimal precision.
	PremiumDecimals uint32

	// CirculatingShares is the outstanding pool-share token supply.
	CirculatingShares uint64
	// TotalDeposits is the base-unit claim of all depositors, interest
	// compounded up to LastAccrualTime.
	TotalDeposits uint64
	// TotalBorrows is the aggregate live debt in base units, interest
	// compounded up to LastAccrualTime.
	TotalBorrows uint64
	// FeePool accumulates protocol interest share and origination fees.
	FeePool uint64
	// PremiumFeePool accumulates the protocol half of buyout premiums, in
	// premium-asset units held by the vault.
	PremiumFeePool uint64
	// BorrowIndex is the multiplicative interest index, Scale fixed-point.
	BorrowIndex uint64
	// LastAccrualTime is the unix time interest was last realized.
	LastAccrualTime uint64
	// LastAprBps is the borrow APR in force since the last accrual; the next
	// slice compounds at this rate, not a freshly derived one.
	LastAprBps uint64
	// ActiveLoanCount tracks open loan records.
	ActiveLoanCount uint64
	// Active gates all non-admin operations.
	Active bool

	Rate RateParams
	Risk RiskParams

	// ParamAdmin may update rate and risk parameters and the active flag.
	ParamAdmin string
	// FeeAdmin may withdraw from the fee pool.
	FeeAdmin string
	// InitAdmin may register and deregister collateral types.
	InitAdmin string
	// MigrationAdmin may snapshot this market and restore a successor.
	MigrationAdmin string
}

// Clone returns a deep copy of the market state.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// CollateralType registers a peer market's pool-share token accepted as loan
// collateral, together with the data needed to value it.
type CollateralType struct {
	// Asset is the pool-share token pledged by borrowers.
	Asset string
	// UnderlyingAsset is the base asset of the peer market minting Asset.
	UnderlyingAsset string
	// UnderlyingDecimals is the underlying asset's decimal precision.
	UnderlyingDecimals uint32
	// MarketBaseAsset mirrors this market's base asset for bookkeeping.
	MarketBaseAsset string
	// MarketBaseDecimals mirrors this market's base decimals.
	MarketBaseDecimals uint32
	// TotalPledged is the running total pledged across all loans, in
	// collateral-asset units.
	TotalPledged uint64
	// PeerMarket identifies the market whose exchange rate values Asset.
	PeerMarket string
}

// Clone returns a deep copy of the collateral registration.
func (c *CollateralType) Clone() *CollateralType {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Loan change audit kinds recorded on every mutation.
const (
	LoanChangeBorrow uint8 = iota + 1
	LoanChangeTopUp
	LoanChangeRepay
	LoanChangeLiquidation
	LoanChangeBuyout
	LoanChangeCollateral
)

// LoanRecord is the per-borrower position. Live debt is always derived from
// the (Principal, UserIndex) snapshot against the market borrow index and is
// never stored directly.
type LoanRecord struct {
	Borrower        string
	CollateralAsset string
	// CollateralAmount is pledged collateral in collateral-asset units.
	CollateralAmount uint64
	// Principal is the debt snapshot in base units.
	Principal uint64
	// UserIndex is the borrow index at the moment Principal was last set.
	UserIndex uint64

	LastChangeAmount uint64
	LastChangeType   uint8
	LastChangeTime   uint64
}

// Clone returns a deep copy of the loan record.
func (l *LoanRecord) Clone() *LoanRecord {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// liveDebt derives the current debt from the snapshot. Rounds down.
func liveDebt(loan *LoanRecord, borrowIndex uint64) (uint64, error) {
	if loan == nil || loan.Principal == 0 {
		return 0, nil
	}
	return mulDiv(loan.Principal, borrowIndex, loan.UserIndex)
}

// DepositRecord tracks the base units a depositor has put in. Informational
// only; the share token balance is authoritative for withdrawals.
type DepositRecord struct {
	Depositor   string
	Principal   uint64
	LastUpdated uint64
}

// Clone returns a deep copy of the deposit record.
func (d *DepositRecord) Clone() *DepositRecord {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}
