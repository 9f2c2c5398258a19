package market

// Origination fee retained per tier, in percent of the nominal fee. Tier 0
// pays the full fee; tiers above the table floor at the last entry.
var tierFeeRetainedPct = []uint64{100, 90, 75, 50, 25}

func feeDiscountPct(tier uint8) uint64 {
	idx := int(tier)
	if idx >= len(tierFeeRetainedPct) {
		idx = len(tierFeeRetainedPct) - 1
	}
	return tierFeeRetainedPct[idx]
}

// BorrowResult reports the outcome of a borrow or top-up.
type BorrowResult struct {
	// Disbursed is the amount paid out to the borrower (requested minus fee).
	Disbursed uint64
	// Fee is the origination fee credited to the fee pool.
	Fee uint64
	// Principal is the loan's new debt snapshot.
	Principal uint64
	// LiveDebt is the debt outstanding after the operation.
	LiveDebt uint64
}

// Borrow opens a loan or tops up an existing one. The borrower pledges
// collateralAmount units of collateralAsset (zero is allowed on top-up) and
// requests amount base units. The disbursement is the request minus the
// tier-discounted origination fee.
func (e *Engine) Borrow(borrower, collateralAsset string, collateralAmount, amount uint64) (*BorrowResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	m, err := e.activeMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueMarket(m); err != nil {
		return nil, err
	}

	ct, err := e.state.GetCollateral(collateralAsset)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, ErrCollateralUnknown
	}

	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan != nil && loan.CollateralAsset != collateralAsset {
		return nil, ErrCollateralMismatch
	}

	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return nil, err
	}

	pledged := collateralAmount
	if loan != nil {
		if pledged, err = addChecked(loan.CollateralAmount, collateralAmount); err != nil {
			return nil, err
		}
	}

	collateralUSD, err := e.collateralValueUSD(ct, pledged)
	if err != nil {
		return nil, err
	}
	maxBorrowUSD, err := mulDiv(collateralUSD, m.Risk.LTVBps, basisPoints)
	if err != nil {
		return nil, err
	}
	requestUSD, err := e.baseValueUSD(m, amount)
	if err != nil {
		return nil, err
	}
	debtUSD, err := e.baseValueUSD(m, debt)
	if err != nil {
		return nil, err
	}
	totalUSD, err := addChecked(debtUSD, requestUSD)
	if err != nil {
		return nil, err
	}
	if totalUSD > maxBorrowUSD {
		return nil, ErrExceedsLTV
	}

	// Pool-wide ceiling, independent of the per-loan LTV check.
	ceiling, err := capBorrow(m)
	if err != nil {
		return nil, err
	}
	projected, err := addChecked(m.TotalBorrows, amount)
	if err != nil {
		return nil, err
	}
	if projected > ceiling {
		return nil, ErrUtilizationCap
	}

	var tier uint8
	if e.tiers != nil {
		tier = e.tiers.GetTier(borrower)
	}
	effectiveFeeBps, err := mulDiv(m.Risk.OriginationFeeBps, feeDiscountPct(tier), 100)
	if err != nil {
		return nil, err
	}
	fee, err := mulDiv(amount, effectiveFeeBps, basisPoints)
	if err != nil {
		return nil, err
	}
	disbursed := amount - fee

	cash, err := e.poolCash(m)
	if err != nil {
		return nil, err
	}
	if cash < disbursed {
		return nil, ErrInsufficientLiquidity
	}

	if collateralAmount > 0 {
		if err := e.transfer(borrower, e.collateralAccount, ct.Asset, collateralAmount); err != nil {
			return nil, err
		}
		if ct.TotalPledged, err = addChecked(ct.TotalPledged, collateralAmount); err != nil {
			return nil, err
		}
		if err := e.state.PutCollateral(ct); err != nil {
			return nil, err
		}
	}
	if err := e.transfer(e.vaultAccount, borrower, m.BaseAsset, disbursed); err != nil {
		return nil, err
	}

	changeType := LoanChangeTopUp
	if loan == nil {
		loan = &LoanRecord{Borrower: borrower, CollateralAsset: collateralAsset}
		m.ActiveLoanCount++
		changeType = LoanChangeBorrow
	}
	principal, err := addChecked(debt, disbursed)
	if err != nil {
		return nil, err
	}
	loan.Principal = principal
	loan.UserIndex = m.BorrowIndex
	loan.CollateralAmount = pledged
	loan.LastChangeAmount = disbursed
	loan.LastChangeType = changeType
	loan.LastChangeTime = e.now()
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}

	if m.TotalBorrows, err = addChecked(m.TotalBorrows, disbursed); err != nil {
		return nil, err
	}
	if m.FeePool, err = addChecked(m.FeePool, fee); err != nil {
		return nil, err
	}
	if err := refreshRate(m); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return nil, err
	}

	e.emit(newEvent(EventTypeBorrow).
		attr("borrower", borrower).
		attr("collateralAsset", collateralAsset).
		amount("collateral", collateralAmount).
		amount("requested", amount).
		amount("disbursed", disbursed).
		amount("fee", fee))
	return &BorrowResult{Disbursed: disbursed, Fee: fee, Principal: principal, LiveDebt: principal}, nil
}

// Repay retires up to the loan's live debt from the offered amount. The
// unused excess never leaves the payer. Returns the amount actually applied.
func (e *Engine) Repay(borrower string, amount uint64) (uint64, error) {
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

	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return 0, err
	}
	if loan == nil {
		return 0, ErrLoanNotFound
	}
	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return 0, err
	}
	if debt == 0 {
		return 0, ErrNoDebtToRepay
	}

	repayUsed := minUint64(amount, debt)
	if err := e.transfer(borrower, e.vaultAccount, m.BaseAsset, repayUsed); err != nil {
		return 0, err
	}
	m.TotalBorrows = subSat(m.TotalBorrows, repayUsed)

	if repayUsed == debt {
		if err := e.closeLoan(m, loan, LoanChangeRepay); err != nil {
			return 0, err
		}
	} else {
		loan.Principal = debt - repayUsed
		loan.UserIndex = m.BorrowIndex
		loan.LastChangeAmount = repayUsed
		loan.LastChangeType = LoanChangeRepay
		loan.LastChangeTime = e.now()
		if err := e.state.PutLoan(loan); err != nil {
			return 0, err
		}
	}

	if err := refreshRate(m); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return 0, err
	}

	e.emit(newEvent(EventTypeRepay).
		attr("borrower", borrower).
		amount("repaid", repayUsed))
	return repayUsed, nil
}

// WithdrawCollateral releases pledged collateral back to the borrower while
// the remaining position stays within the LTV limit. No debt changes.
func (e *Engine) WithdrawCollateral(borrower string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.activeMarket()
	if err != nil {
		return err
	}
	if err := e.accrueMarket(m); err != nil {
		return err
	}

	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanNotFound
	}
	if amount > loan.CollateralAmount {
		return ErrInsufficientCollateral
	}
	ct, err := e.state.GetCollateral(loan.CollateralAsset)
	if err != nil {
		return err
	}
	if ct == nil {
		return ErrCollateralUnknown
	}

	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return err
	}
	collateralUSD, err := e.collateralValueUSD(ct, loan.CollateralAmount)
	if err != nil {
		return err
	}
	var requiredUSD uint64
	if debt > 0 {
		debtUSD, err := e.baseValueUSD(m, debt)
		if err != nil {
			return err
		}
		if requiredUSD, err = mulDiv(debtUSD, basisPoints, m.Risk.LTVBps); err != nil {
			return err
		}
	}
	headroomUSD := subSat(collateralUSD, requiredUSD)
	withdrawable, err := e.collateralFromUSD(ct, headroomUSD)
	if err != nil {
		return err
	}
	if amount > withdrawable {
		return ErrInsufficientCollateral
	}

	if err := e.transfer(e.collateralAccount, borrower, ct.Asset, amount); err != nil {
		return err
	}
	if ct.TotalPledged, err = subChecked(ct.TotalPledged, amount); err != nil {
		return err
	}
	if err := e.state.PutCollateral(ct); err != nil {
		return err
	}

	loan.CollateralAmount -= amount
	loan.LastChangeAmount = amount
	loan.LastChangeType = LoanChangeCollateral
	loan.LastChangeTime = e.now()
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}

	if err := refreshRate(m); err != nil {
		return err
	}
	if err := e.state.PutMarket(m); err != nil {
		return err
	}

	e.emit(newEvent(EventTypeCollateralWithdraw).
		attr("borrower", borrower).
		amount("amount", amount))
	return nil
}

// closeLoan releases all remaining collateral to the borrower, deletes the
// record and decrements the loan count and registry total.
func (e *Engine) closeLoan(m *Market, loan *LoanRecord, changeType uint8) error {
	if loan.CollateralAmount > 0 {
		ct, err := e.state.GetCollateral(loan.CollateralAsset)
		if err != nil {
			return err
		}
		if ct == nil {
			return ErrCollateralUnknown
		}
		if err := e.transfer(e.collateralAccount, loan.Borrower, ct.Asset, loan.CollateralAmount); err != nil {
			return err
		}
		if ct.TotalPledged, err = subChecked(ct.TotalPledged, loan.CollateralAmount); err != nil {
			return err
		}
		if err := e.state.PutCollateral(ct); err != nil {
			return err
		}
	}
	if err := e.state.DeleteLoan(loan.Borrower); err != nil {
		return err
	}
	if m.ActiveLoanCount > 0 {
		m.ActiveLoanCount--
	}
	e.emit(newEvent(EventTypeLoanClosed).
		attr("borrower", loan.Borrower).
		amount("changeType", uint64(changeType)))
	return nil
}
