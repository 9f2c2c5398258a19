package market

// PriceQuote carries an oracle observation for a single asset. Prices are
// micro-USD per whole token unit.
type PriceQuote struct {
	PriceMicroUSD uint64
	LastUpdated   uint64
}

// PriceOracle resolves the USD price for an asset. Implementations must be
// read-only: a lookup never calls back into the engine.
type PriceOracle interface {
	GetPrice(asset string) (PriceQuote, error)
}

// PeerView exposes the exchange-rate inputs of a pool-share token's minting
// market. The engine implements the same pair so its own share token can be
// pledged elsewhere.
type PeerView interface {
	GetCirculatingShares() uint64
	GetTotalDeposits() uint64
}

// PeerSource resolves the peer market backing a registered collateral type.
type PeerSource interface {
	Peer(marketID string) (PeerView, bool)
}

// TierSource reports the reputation tier used to discount origination fees.
// A nil source means tier 0 for everyone.
type TierSource interface {
	GetTier(account string) uint8
}

// toUSD converts base units into micro-USD at the quoted price.
func toUSD(amount, priceMicroUSD uint64, decimals uint32) (uint64, error) {
	unit, err := pow10(decimals)
	if err != nil {
		return 0, err
	}
	return mulDiv(amount, priceMicroUSD, unit)
}

// fromUSD converts micro-USD back into base units at the quoted price.
func fromUSD(usdMicro, priceMicroUSD uint64, decimals uint32) (uint64, error) {
	if priceMicroUSD == 0 {
		return 0, ErrZeroOraclePrice
	}
	unit, err := pow10(decimals)
	if err != nil {
		return 0, err
	}
	return mulDiv(usdMicro, unit, priceMicroUSD)
}

// peerExchange resolves the peer view for a collateral type.
func (e *Engine) peerExchange(ct *CollateralType) (PeerView, error) {
	if e.peers == nil {
		return nil, ErrPeerUnavailable
	}
	view, ok := e.peers.Peer(ct.PeerMarket)
	if !ok || view == nil {
		return nil, ErrPeerUnavailable
	}
	return view, nil
}

// collateralValueUSD prices pledged collateral over two hops: share units to
// the peer market's base units via its exchange rate, then to micro-USD via
// the oracle. Collateral is itself a pool-share token, never the priced asset.
func (e *Engine) collateralValueUSD(ct *CollateralType, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, nil
	}
	view, err := e.peerExchange(ct)
	if err != nil {
		return 0, err
	}
	shares := view.GetCirculatingShares()
	if shares == 0 {
		return 0, nil
	}
	underlying, err := mulDiv(amount, view.GetTotalDeposits(), shares)
	if err != nil {
		return 0, err
	}
	quote, err := e.oracle.GetPrice(ct.UnderlyingAsset)
	if err != nil {
		return 0, err
	}
	return toUSD(underlying, quote.PriceMicroUSD, ct.UnderlyingDecimals)
}

// collateralFromUSD inverts the two-hop conversion: micro-USD to the peer
// market's base units, then into share units at the peer exchange rate.
func (e *Engine) collateralFromUSD(ct *CollateralType, usdMicro uint64) (uint64, error) {
	if usdMicro == 0 {
		return 0, nil
	}
	view, err := e.peerExchange(ct)
	if err != nil {
		return 0, err
	}
	deposits := view.GetTotalDeposits()
	if deposits == 0 {
		return 0, nil
	}
	quote, err := e.oracle.GetPrice(ct.UnderlyingAsset)
	if err != nil {
		return 0, err
	}
	underlying, err := fromUSD(usdMicro, quote.PriceMicroUSD, ct.UnderlyingDecimals)
	if err != nil {
		return 0, err
	}
	return mulDiv(underlying, view.GetCirculatingShares(), deposits)
}

// baseValueUSD prices base units of this market's own asset.
func (e *Engine) baseValueUSD(m *Market, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, nil
	}
	quote, err := e.oracle.GetPrice(m.BaseAsset)
	if err != nil {
		return 0, err
	}
	return toUSD(amount, quote.PriceMicroUSD, m.BaseDecimals)
}

// baseFromUSD converts micro-USD into base units of this market's asset.
func (e *Engine) baseFromUSD(m *Market, usdMicro uint64) (uint64, error) {
	if usdMicro == 0 {
		return 0, nil
	}
	quote, err := e.oracle.GetPrice(m.BaseAsset)
	if err != nil {
		return 0, err
	}
	return fromUSD(usdMicro, quote.PriceMicroUSD, m.BaseDecimals)
}
