package market

import "errors"

// Authorization errors.
var (
	ErrUnauthorized = errors.New("lending engine: caller not authorized")
)

// State errors.
var (
	ErrNilState           = errors.New("lending engine: state not configured")
	ErrNilMarket          = errors.New("lending engine: market not initialised")
	ErrMarketExists       = errors.New("lending engine: market already initialised")
	ErrMarketInactive     = errors.New("lending engine: market inactive")
	ErrLoanNotFound       = errors.New("lending engine: loan not found")
	ErrDepositNotFound    = errors.New("lending engine: deposit record not found")
	ErrCollateralUnknown  = errors.New("lending engine: collateral type not registered")
	ErrCollateralExists   = errors.New("lending engine: collateral type already registered")
	ErrCollateralPledged  = errors.New("lending engine: collateral type still pledged")
	ErrCollateralIsBase   = errors.New("lending engine: collateral cannot equal the market base asset")
	ErrCollateralSelf     = errors.New("lending engine: collateral cannot reference this market")
	ErrCollateralMismatch = errors.New("lending engine: loan uses a different collateral asset")
	ErrPeerUnavailable    = errors.New("lending engine: peer market view not available")
)

// Economic errors.
var (
	ErrExceedsLTV             = errors.New("lending engine: request exceeds loan-to-value limit")
	ErrUtilizationCap         = errors.New("lending engine: pool utilization cap exceeded")
	ErrNotLiquidatable        = errors.New("lending engine: position not eligible for liquidation")
	ErrNotBuyoutEligible      = errors.New("lending engine: position not eligible for buyout")
	ErrFullRepayRequired      = errors.New("lending engine: full repayment required")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	ErrInsufficientLiquidity  = errors.New("lending engine: insufficient liquidity")
	ErrInsufficientBalance    = errors.New("lending engine: insufficient balance")
	ErrNoDebtToRepay          = errors.New("lending engine: no outstanding debt to repay")
)

// Input validation errors.
var (
	ErrInvalidAmount   = errors.New("lending engine: amount must be positive")
	ErrZeroOraclePrice = errors.New("lending engine: oracle price is zero")
	ErrInvalidDecimals = errors.New("lending engine: decimals out of range")
	ErrAmountOverflow  = errors.New("lending engine: amount overflow")
	ErrDivisionByZero  = errors.New("lending engine: division by zero")
	ErrInvalidSnapshot = errors.New("lending engine: snapshot payload invalid")
)
