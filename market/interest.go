package market

// capBorrow returns the pool-wide borrow ceiling derived from deposits and
// the utilization cap.
func capBorrow(m *Market) (uint64, error) {
	return mulDiv(m.TotalDeposits, m.Rate.UtilCapBps, basisPoints)
}

// utilizationBps normalizes outstanding borrows against the capped borrow
// ceiling rather than raw deposits. Zero when no ceiling exists.
func utilizationBps(m *Market) (uint64, error) {
	ceiling, err := capBorrow(m)
	if err != nil {
		return 0, err
	}
	if ceiling == 0 {
		return 0, nil
	}
	capped := minUint64(m.TotalBorrows, ceiling)
	return mulDiv(capped, basisPoints, ceiling)
}

// aprBps evaluates the kinked borrow rate curve at the market's current
// utilization and clamps the result to MaxAprBps when configured.
func aprBps(m *Market) (uint64, error) {
	util, err := utilizationBps(m)
	if err != nil {
		return 0, err
	}
	rate := m.Rate.BaseBps
	kink := m.Rate.KinkBps
	switch {
	case util == 0:
		// Base rate only.
	case kink == 0 || util > kink:
		rate += m.Rate.Slope1Bps
		span := basisPoints - kink
		if span > 0 && util > kink {
			excess, err := mulDiv(m.Rate.Slope2Bps, util-kink, span)
			if err != nil {
				return 0, err
			}
			rate += excess
		}
	default:
		ramp, err := mulDiv(m.Rate.Slope1Bps, util, kink)
		if err != nil {
			return 0, err
		}
		rate += ramp
	}
	if m.Rate.MaxAprBps > 0 && rate > m.Rate.MaxAprBps {
		rate = m.Rate.MaxAprBps
	}
	return rate, nil
}

// accrueMarket lazily realizes interest for the slice since the last touch.
// The slice compounds at the previously recorded APR: the rate in force when
// the interval began, not the rate implied by whatever the caller is about to
// do. Idempotent for non-positive elapsed time.
func (e *Engine) accrueMarket(m *Market) error {
	now := e.now()
	if now <= m.LastAccrualTime {
		return nil
	}
	dt := now - m.LastAccrualTime
	if m.BorrowIndex == 0 {
		m.BorrowIndex = Scale
	}

	sliceWad, err := mulDiv(Scale, m.LastAprBps, basisPoints)
	if err != nil {
		return err
	}
	sliceWad, err = mulDiv(sliceWad, dt, secondsPerYear)
	if err != nil {
		return err
	}
	if sliceWad == 0 {
		m.LastAccrualTime = now
		return nil
	}

	indexDelta, err := mulDiv(m.BorrowIndex, sliceWad, Scale)
	if err != nil {
		return err
	}
	if m.BorrowIndex, err = addChecked(m.BorrowIndex, indexDelta); err != nil {
		return err
	}

	interest, err := mulDiv(m.TotalBorrows, sliceWad, Scale)
	if err != nil {
		return err
	}
	if interest > 0 {
		depositorShare, err := mulDiv(interest, basisPoints-m.Risk.ProtocolShareBps, basisPoints)
		if err != nil {
			return err
		}
		protocolShare := interest - depositorShare
		if m.TotalDeposits, err = addChecked(m.TotalDeposits, depositorShare); err != nil {
			return err
		}
		if m.FeePool, err = addChecked(m.FeePool, protocolShare); err != nil {
			return err
		}
		if m.TotalBorrows, err = addChecked(m.TotalBorrows, interest); err != nil {
			return err
		}
	}
	m.LastAccrualTime = now
	return nil
}

// refreshRate stores the APR that will govern the next accrual slice. Called
// after all mutations of an operation so the rate-over-an-interval stays well
// defined.
func refreshRate(m *Market) error {
	rate, err := aprBps(m)
	if err != nil {
		return err
	}
	m.LastAprBps = rate
	return nil
}
