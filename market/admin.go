package market

import "strings"

func validateRateParams(p RateParams) error {
	if p.UtilCapBps == 0 || p.UtilCapBps > basisPoints {
		return ErrInvalidAmount
	}
	if p.KinkBps > basisPoints {
		return ErrInvalidAmount
	}
	return nil
}

func validateRiskParams(p RiskParams) error {
	if p.LTVBps == 0 || p.LTVBps > basisPoints {
		return ErrInvalidAmount
	}
	if p.LiqThresholdBps == 0 || p.LiqThresholdBps >= basisPoints {
		return ErrInvalidAmount
	}
	if p.LiqThresholdBps < p.LTVBps {
		return ErrInvalidAmount
	}
	if p.OriginationFeeBps > basisPoints || p.ProtocolShareBps > basisPoints {
		return ErrInvalidAmount
	}
	return nil
}

// InitMarket bootstraps a fresh market instance. Rejected once a market
// already exists.
func (e *Engine) InitMarket(m *Market) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if m == nil {
		return ErrNilMarket
	}
	existing, err := e.state.GetMarket()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrMarketExists
	}
	if err := validateRateParams(m.Rate); err != nil {
		return err
	}
	if err := validateRiskParams(m.Risk); err != nil {
		return err
	}
	if m.BorrowIndex == 0 {
		m.BorrowIndex = Scale
	}
	if m.LastAccrualTime == 0 {
		m.LastAccrualTime = e.now()
	}
	return e.state.PutMarket(m)
}

func requireRole(caller, admin string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

// RegisterCollateral admits a peer market's pool-share token as collateral.
// Init admin only.
func (e *Engine) RegisterCollateral(caller string, ct CollateralType) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return err
	}
	if err := requireRole(caller, m.InitAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(ct.Asset) == "" {
		return ErrInvalidAmount
	}
	if ct.Asset == m.BaseAsset {
		return ErrCollateralIsBase
	}
	// A collateral type must never resolve back to this market: pledging the
	// market's own share token, or valuing collateral through its own peer
	// identifier, makes every valuation self-referential.
	if ct.Asset == m.ShareAsset || strings.TrimSpace(ct.PeerMarket) == m.BaseAsset {
		return ErrCollateralSelf
	}
	existing, err := e.state.GetCollateral(ct.Asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrCollateralExists
	}
	if ct.UnderlyingDecimals > maxDecimals {
		return ErrInvalidDecimals
	}
	ct.MarketBaseAsset = m.BaseAsset
	ct.MarketBaseDecimals = m.BaseDecimals
	ct.TotalPledged = 0
	return e.state.PutCollateral(&ct)
}

// DeregisterCollateral removes a collateral type once nothing is pledged
// against it. Init admin only.
func (e *Engine) DeregisterCollateral(caller, asset string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return err
	}
	if err := requireRole(caller, m.InitAdmin); err != nil {
		return err
	}
	ct, err := e.state.GetCollateral(asset)
	if err != nil {
		return err
	}
	if ct == nil {
		return ErrCollateralUnknown
	}
	if ct.TotalPledged != 0 {
		return ErrCollateralPledged
	}
	return e.state.DeleteCollateral(asset)
}

// CollateralView resolves a registered collateral type.
func (e *Engine) CollateralView(asset string) (*CollateralType, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	ct, err := e.state.GetCollateral(asset)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, ErrCollateralUnknown
	}
	return ct.Clone(), nil
}

// UpdateRateParams replaces the rate curve. Param admin only. The market is
// accrued first so the old curve governs the elapsed slice.
func (e *Engine) UpdateRateParams(caller string, p RateParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return err
	}
	if err := requireRole(caller, m.ParamAdmin); err != nil {
		return err
	}
	if err := validateRateParams(p); err != nil {
		return err
	}
	if err := e.accrueMarket(m); err != nil {
		return err
	}
	m.Rate = p
	if err := refreshRate(m); err != nil {
		return err
	}
	if err := e.state.PutMarket(m); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeParamsUpdated).attr("scope", "rate"))
	return nil
}

// UpdateRiskParams replaces the risk limits. Param admin only.
func (e *Engine) UpdateRiskParams(caller string, p RiskParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return err
	}
	if err := requireRole(caller, m.ParamAdmin); err != nil {
		return err
	}
	if err := validateRiskParams(p); err != nil {
		return err
	}
	if err := e.accrueMarket(m); err != nil {
		return err
	}
	m.Risk = p
	if err := refreshRate(m); err != nil {
		return err
	}
	if err := e.state.PutMarket(m); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeParamsUpdated).attr("scope", "risk"))
	return nil
}

// SetActive flips the market gate. Param admin only.
func (e *Engine) SetActive(caller string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return err
	}
	if err := requireRole(caller, m.ParamAdmin); err != nil {
		return err
	}
	m.Active = active
	return e.state.PutMarket(m)
}

// WithdrawFees pays accumulated protocol fees out of the vault. Fee admin
// only. Bounded by both the fee pool counter and the vault's cash on hand.
func (e *Engine) WithdrawFees(caller, recipient string, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	m, err := e.loadMarket()
	if err != nil {
		return 0, err
	}
	if err := requireRole(caller, m.FeeAdmin); err != nil {
		return 0, err
	}
	if err := e.accrueMarket(m); err != nil {
		return 0, err
	}
	if amount > m.FeePool {
		return 0, ErrInsufficientLiquidity
	}
	cash, err := e.poolCash(m)
	if err != nil {
		return 0, err
	}
	if cash < amount {
		return 0, ErrInsufficientLiquidity
	}
	if err := e.transfer(e.vaultAccount, recipient, m.BaseAsset, amount); err != nil {
		return 0, err
	}
	m.FeePool -= amount
	if err := refreshRate(m); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return 0, err
	}
	e.emit(newEvent(EventTypeFeesWithdrawn).
		attr("recipient", recipient).
		amount("amount", amount))
	return amount, nil
}

// WithdrawPremiumFees pays the accumulated protocol half of buyout premiums
// out of the vault, in the premium asset. Fee admin only. Bounded by the
// premium fee counter and the vault's premium balance.
func (e *Engine) WithdrawPremiumFees(caller, recipient string, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	m, err := e.loadMarket()
	if err != nil {
		return 0, err
	}
	if err := requireRole(caller, m.FeeAdmin); err != nil {
		return 0, err
	}
	if amount > m.PremiumFeePool {
		return 0, ErrInsufficientLiquidity
	}
	held, err := e.state.GetBalance(e.vaultAccount, m.PremiumAsset)
	if err != nil {
		return 0, err
	}
	if held < amount {
		return 0, ErrInsufficientLiquidity
	}
	if err := e.transfer(e.vaultAccount, recipient, m.PremiumAsset, amount); err != nil {
		return 0, err
	}
	m.PremiumFeePool -= amount
	if err := e.state.PutMarket(m); err != nil {
		return 0, err
	}
	e.emit(newEvent(EventTypeFeesWithdrawn).
		attr("recipient", recipient).
		attr("asset", m.PremiumAsset).
		amount("amount", amount))
	return amount, nil
}
