package market

// LiquidationResult reports the settled legs of a liquidation call.
type LiquidationResult struct {
	// Repaid is the debt retired, in base units.
	Repaid uint64
	// Seized is the collateral transferred to the liquidator.
	Seized uint64
	// BonusBps is the effective bonus applied after all caps.
	BonusBps uint64
	// Closed reports whether the loan was fully closed.
	Closed bool
}

// currentLTVBps derives the position's loan-to-value in bps. The second
// return is false when collateral value is zero while debt is outstanding,
// i.e. the ratio is unbounded.
func currentLTVBps(debtUSD, collateralUSD uint64) (uint64, bool, error) {
	if collateralUSD == 0 {
		return 0, debtUSD == 0, nil
	}
	ltv, err := mulDiv(debtUSD, basisPoints, collateralUSD)
	if err != nil {
		return 0, false, err
	}
	return ltv, true, nil
}

// dynamicBonusBps grows the bonus linearly from zero at the liquidation
// threshold toward the configured maximum as the position worsens. A
// positive overshoot that rounds to zero is floored to 1 bps.
func dynamicBonusBps(ltv, threshold, maxBonus uint64) (uint64, error) {
	if ltv <= threshold || threshold >= basisPoints {
		return 0, nil
	}
	bonus, err := mulDiv(ltv-threshold, maxBonus, basisPoints-threshold)
	if err != nil {
		return 0, err
	}
	if bonus == 0 {
		bonus = 1
	}
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus, nil
}

// Liquidate settles an undercollateralized position. The liquidator offers
// up to `offer` base units of repayment; the engine may cap the amount it
// actually takes. Once collateral no longer covers debt only a full close is
// accepted, so a position can never be drained without clearing it.
//
// The bonus/close-factor interaction is deliberately one-pass: the bonus is
// derived from the original repay request and the repay cap computed from it
// is not fed back into a second bonus pass.
func (e *Engine) Liquidate(liquidator, borrower string, offer uint64) (*LiquidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if offer == 0 {
		return nil, ErrInvalidAmount
	}
	m, err := e.activeMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueMarket(m); err != nil {
		return nil, err
	}

	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return nil, err
	}
	if debt == 0 {
		return nil, ErrNoDebtToRepay
	}
	ct, err := e.state.GetCollateral(loan.CollateralAsset)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, ErrCollateralUnknown
	}

	collateralUSD, err := e.collateralValueUSD(ct, loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	debtUSD, err := e.baseValueUSD(m, debt)
	if err != nil {
		return nil, err
	}
	ltv, bounded, err := currentLTVBps(debtUSD, collateralUSD)
	if err != nil {
		return nil, err
	}
	threshold := m.Risk.LiqThresholdBps
	if bounded && ltv < threshold {
		return nil, ErrNotLiquidatable
	}

	fullRepay := offer >= debt
	if collateralUSD <= debtUSD && !fullRepay {
		return nil, ErrFullRepayRequired
	}

	maxBonus := m.Risk.LiqBonusBps
	var bonus uint64
	if bounded {
		if bonus, err = dynamicBonusBps(ltv, threshold, maxBonus); err != nil {
			return nil, err
		}
	} else {
		bonus = maxBonus
	}

	repayUsed := minUint64(offer, debt)
	repayUSD, err := e.baseValueUSD(m, repayUsed)
	if err != nil {
		return nil, err
	}

	// The seizure premium may never eat into value the debt already claims:
	// cap the bonus by the collateral/debt gap.
	if repayUSD > 0 {
		gapUSD := subSat(collateralUSD, debtUSD)
		bonusCap, err := mulDiv(gapUSD, basisPoints, repayUSD)
		if err != nil {
			return nil, err
		}
		if bonusCap < bonus {
			bonus = bonusCap
		}
	}

	// Close-factor cap: a partial repay may not trigger a seizure beyond the
	// pledged collateral.
	if !fullRepay {
		maxRepayUSD, err := mulDiv(collateralUSD, basisPoints, basisPoints+bonus)
		if err != nil {
			return nil, err
		}
		if repayUSD > maxRepayUSD {
			repayUSD = maxRepayUSD
			capped, err := e.baseFromUSD(m, repayUSD)
			if err != nil {
				return nil, err
			}
			repayUsed = minUint64(capped, debt)
		}
	}

	seizeUSD, err := mulDiv(repayUSD, basisPoints+bonus, basisPoints)
	if err != nil {
		return nil, err
	}
	seized, err := e.collateralFromUSD(ct, seizeUSD)
	if err != nil {
		return nil, err
	}
	if seized > loan.CollateralAmount {
		seized = loan.CollateralAmount
	}

	// Recompute the debt the seized collateral actually supports so the
	// repay leg cannot drift from the seize leg through rounding.
	seizedUSD, err := e.collateralValueUSD(ct, seized)
	if err != nil {
		return nil, err
	}
	supportedUSD, err := mulDiv(seizedUSD, basisPoints, basisPoints+bonus)
	if err != nil {
		return nil, err
	}
	repaySupported, err := e.baseFromUSD(m, supportedUSD)
	if err != nil {
		return nil, err
	}
	repaySupported = minUint64(repaySupported, debt)

	if seized == loan.CollateralAmount && repaySupported < debt && !fullRepay {
		return nil, ErrFullRepayRequired
	}

	repaid := repaySupported
	if fullRepay {
		repaid = debt
	}

	if err := e.transfer(liquidator, e.vaultAccount, m.BaseAsset, repaid); err != nil {
		return nil, err
	}
	if err := e.transfer(e.collateralAccount, liquidator, ct.Asset, seized); err != nil {
		return nil, err
	}
	if ct.TotalPledged, err = subChecked(ct.TotalPledged, seized); err != nil {
		return nil, err
	}
	if err := e.state.PutCollateral(ct); err != nil {
		return nil, err
	}
	m.TotalBorrows = subSat(m.TotalBorrows, repaid)
	loan.CollateralAmount -= seized

	closed := repaid == debt
	if closed {
		if err := e.closeLoan(m, loan, LoanChangeLiquidation); err != nil {
			return nil, err
		}
	} else {
		loan.Principal = debt - repaid
		loan.UserIndex = m.BorrowIndex
		loan.LastChangeAmount = repaid
		loan.LastChangeType = LoanChangeLiquidation
		loan.LastChangeTime = e.now()
		if err := e.state.PutLoan(loan); err != nil {
			return nil, err
		}
	}

	if err := refreshRate(m); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return nil, err
	}

	e.emit(newEvent(EventTypeLiquidation).
		attr("liquidator", liquidator).
		attr("borrower", borrower).
		amount("repaid", repaid).
		amount("seized", seized).
		amount("bonusBps", bonus))
	return &LiquidationResult{Repaid: repaid, Seized: seized, BonusBps: bonus, Closed: closed}, nil
}

// BuyoutResult reports the settled legs of a voluntary buyout.
type BuyoutResult struct {
	// PremiumPaid is the premium taken from the buyer, in premium-asset units.
	PremiumPaid uint64
	// PremiumRateBps is the premium rate applied to the collateral value.
	PremiumRateBps uint64
	// DebtRepaid is the full live debt cleared by the buyer.
	DebtRepaid uint64
	// CollateralOut is the collateral transferred to the buyer.
	CollateralOut uint64
}

// Buyout purchases a healthy position at a premium. The buyer pays the
// premium (half to the protocol fee custody, half to the borrower) and
// separately clears the full live debt; all pledged collateral transfers to
// the buyer and the loan closes. Excess offers are simply not taken.
func (e *Engine) Buyout(buyer, borrower string, premiumOffer, repayOffer uint64) (*BuyoutResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.activeMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueMarket(m); err != nil {
		return nil, err
	}

	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	debt, err := liveDebt(loan, m.BorrowIndex)
	if err != nil {
		return nil, err
	}
	if debt == 0 {
		return nil, ErrNoDebtToRepay
	}
	ct, err := e.state.GetCollateral(loan.CollateralAsset)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, ErrCollateralUnknown
	}

	collateralUSD, err := e.collateralValueUSD(ct, loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	debtUSD, err := e.baseValueUSD(m, debt)
	if err != nil {
		return nil, err
	}
	ltv, bounded, err := currentLTVBps(debtUSD, collateralUSD)
	if err != nil {
		return nil, err
	}
	// The buyout window is the exact complement of the liquidation window. A
	// debt value that rounds to zero micro-USD would make the premium
	// unbounded, so it is rejected as ineligible as well.
	if !bounded || ltv >= m.Risk.LiqThresholdBps || ltv == 0 {
		return nil, ErrNotBuyoutEligible
	}

	premiumRate, err := mulDiv(m.Risk.LiqThresholdBps, basisPoints, ltv)
	if err != nil {
		return nil, err
	}
	premiumRate -= basisPoints
	premiumUSD, err := mulDiv(collateralUSD, premiumRate, basisPoints)
	if err != nil {
		return nil, err
	}
	premiumQuote, err := e.oracle.GetPrice(m.PremiumAsset)
	if err != nil {
		return nil, err
	}
	premium, err := fromUSD(premiumUSD, premiumQuote.PriceMicroUSD, m.PremiumDecimals)
	if err != nil {
		return nil, err
	}
	if premiumOffer < premium {
		return nil, ErrInsufficientBalance
	}
	if repayOffer < debt {
		return nil, ErrFullRepayRequired
	}

	// Premium leg: half to the protocol fee custody, half to the borrower.
	protocolHalf := premium / 2
	borrowerHalf := premium - protocolHalf
	if err := e.transfer(buyer, e.vaultAccount, m.PremiumAsset, protocolHalf); err != nil {
		return nil, err
	}
	if m.PremiumFeePool, err = addChecked(m.PremiumFeePool, protocolHalf); err != nil {
		return nil, err
	}
	if err := e.transfer(buyer, borrower, m.PremiumAsset, borrowerHalf); err != nil {
		return nil, err
	}

	// Repay leg: clear the full live debt.
	if err := e.transfer(buyer, e.vaultAccount, m.BaseAsset, debt); err != nil {
		return nil, err
	}
	m.TotalBorrows = subSat(m.TotalBorrows, debt)

	collateralOut := loan.CollateralAmount
	if err := e.transfer(e.collateralAccount, buyer, ct.Asset, collateralOut); err != nil {
		return nil, err
	}
	if ct.TotalPledged, err = subChecked(ct.TotalPledged, collateralOut); err != nil {
		return nil, err
	}
	if err := e.state.PutCollateral(ct); err != nil {
		return nil, err
	}
	loan.CollateralAmount = 0
	if err := e.closeLoan(m, loan, LoanChangeBuyout); err != nil {
		return nil, err
	}

	if err := refreshRate(m); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return nil, err
	}

	e.emit(newEvent(EventTypeBuyout).
		attr("buyer", buyer).
		attr("borrower", borrower).
		amount("premium", premium).
		amount("premiumRateBps", premiumRate).
		amount("repaid", debt).
		amount("collateral", collateralOut))
	return &BuyoutResult{
		PremiumPaid:    premium,
		PremiumRateBps: premiumRate,
		DebtRepaid:     debt,
		CollateralOut:  collateralOut,
	}, nil
}
