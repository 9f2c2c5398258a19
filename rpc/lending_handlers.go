package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"lendex/market"
)

type accountParams struct {
	Account string `json:"account"`
}

type balanceParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

type assetParams struct {
	Asset string `json:"asset"`
}

type amountParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type borrowParams struct {
	Borrower         string `json:"borrower"`
	CollateralAsset  string `json:"collateralAsset"`
	CollateralAmount string `json:"collateralAmount"`
	Amount           string `json:"amount"`
}

type liquidateParams struct {
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
	Amount     string `json:"amount"`
}

type buyoutParams struct {
	Buyer        string `json:"buyer"`
	Borrower     string `json:"borrower"`
	PremiumOffer string `json:"premiumOffer"`
	RepayOffer   string `json:"repayOffer"`
}

type registerCollateralParams struct {
	Caller             string `json:"caller"`
	Asset              string `json:"asset"`
	UnderlyingAsset    string `json:"underlyingAsset"`
	UnderlyingDecimals uint32 `json:"underlyingDecimals"`
	PeerMarket         string `json:"peerMarket"`
}

type deregisterCollateralParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

type rateParamsParams struct {
	Caller     string `json:"caller"`
	BaseBps    uint64 `json:"baseBps"`
	UtilCapBps uint64 `json:"utilCapBps"`
	KinkBps    uint64 `json:"kinkBps"`
	Slope1Bps  uint64 `json:"slope1Bps"`
	Slope2Bps  uint64 `json:"slope2Bps"`
	MaxAprBps  uint64 `json:"maxAprBps"`
}

type riskParamsParams struct {
	Caller            string `json:"caller"`
	LTVBps            uint64 `json:"ltvBps"`
	LiqThresholdBps   uint64 `json:"liqThresholdBps"`
	LiqBonusBps       uint64 `json:"liqBonusBps"`
	OriginationFeeBps uint64 `json:"originationFeeBps"`
	ProtocolShareBps  uint64 `json:"protocolShareBps"`
}

type setActiveParams struct {
	Caller string `json:"caller"`
	Active bool   `json:"active"`
}

type withdrawFeesParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type snapshotParams struct {
	Caller string `json:"caller"`
}

type restoreParams struct {
	Caller  string `json:"caller"`
	Payload string `json:"payload"`
}

type setPriceParams struct {
	Asset         string `json:"asset"`
	PriceMicroUSD string `json:"priceMicroUsd"`
}

type setTierParams struct {
	Account string `json:"account"`
	Tier    uint8  `json:"tier"`
}

type rateResult struct {
	BaseBps    uint64 `json:"baseBps"`
	UtilCapBps uint64 `json:"utilCapBps"`
	KinkBps    uint64 `json:"kinkBps"`
	Slope1Bps  uint64 `json:"slope1Bps"`
	Slope2Bps  uint64 `json:"slope2Bps"`
	MaxAprBps  uint64 `json:"maxAprBps"`
}

type riskResult struct {
	LTVBps            uint64 `json:"ltvBps"`
	LiqThresholdBps   uint64 `json:"liqThresholdBps"`
	LiqBonusBps       uint64 `json:"liqBonusBps"`
	OriginationFeeBps uint64 `json:"originationFeeBps"`
	ProtocolShareBps  uint64 `json:"protocolShareBps"`
}

type marketResult struct {
	BaseAsset         string     `json:"baseAsset"`
	BaseDecimals      uint32     `json:"baseDecimals"`
	ShareAsset        string     `json:"shareAsset"`
	PremiumAsset      string     `json:"premiumAsset"`
	PremiumDecimals   uint32     `json:"premiumDecimals"`
	CirculatingShares string     `json:"circulatingShares"`
	TotalDeposits     string     `json:"totalDeposits"`
	TotalBorrows      string     `json:"totalBorrows"`
	FeePool           string     `json:"feePool"`
	PremiumFeePool    string     `json:"premiumFeePool"`
	BorrowIndex       string     `json:"borrowIndex"`
	LastAccrualTime   uint64     `json:"lastAccrualTime"`
	LastAprBps        uint64     `json:"lastAprBps"`
	ActiveLoanCount   uint64     `json:"activeLoanCount"`
	Active            bool       `json:"active"`
	Rate              rateResult `json:"rate"`
	Risk              riskResult `json:"risk"`
}

type loanResult struct {
	Borrower         string `json:"borrower"`
	CollateralAsset  string `json:"collateralAsset"`
	CollateralAmount string `json:"collateralAmount"`
	Principal        string `json:"principal"`
	UserIndex        string `json:"userIndex"`
	LiveDebt         string `json:"liveDebt"`
	LastChangeType   uint8  `json:"lastChangeType"`
	LastChangeTime   uint64 `json:"lastChangeTime"`
}

type depositResult struct {
	Depositor   string `json:"depositor"`
	Principal   string `json:"principal"`
	LastUpdated uint64 `json:"lastUpdated"`
}

type collateralResult struct {
	Asset              string `json:"asset"`
	UnderlyingAsset    string `json:"underlyingAsset"`
	UnderlyingDecimals uint32 `json:"underlyingDecimals"`
	TotalPledged       string `json:"totalPledged"`
	PeerMarket         string `json:"peerMarket"`
}

func newMarketResult(m *market.Market) marketResult {
	return marketResult{
		BaseAsset:         m.BaseAsset,
		BaseDecimals:      m.BaseDecimals,
		ShareAsset:        m.ShareAsset,
		PremiumAsset:      m.PremiumAsset,
		PremiumDecimals:   m.PremiumDecimals,
		CirculatingShares: u64s(m.CirculatingShares),
		TotalDeposits:     u64s(m.TotalDeposits),
		TotalBorrows:      u64s(m.TotalBorrows),
		FeePool:           u64s(m.FeePool),
		PremiumFeePool:    u64s(m.PremiumFeePool),
		BorrowIndex:       u64s(m.BorrowIndex),
		LastAccrualTime:   m.LastAccrualTime,
		LastAprBps:        m.LastAprBps,
		ActiveLoanCount:   m.ActiveLoanCount,
		Active:            m.Active,
		Rate: rateResult{
			BaseBps:    m.Rate.BaseBps,
			UtilCapBps: m.Rate.UtilCapBps,
			KinkBps:    m.Rate.KinkBps,
			Slope1Bps:  m.Rate.Slope1Bps,
			Slope2Bps:  m.Rate.Slope2Bps,
			MaxAprBps:  m.Rate.MaxAprBps,
		},
		Risk: riskResult{
			LTVBps:            m.Risk.LTVBps,
			LiqThresholdBps:   m.Risk.LiqThresholdBps,
			LiqBonusBps:       m.Risk.LiqBonusBps,
			OriginationFeeBps: m.Risk.OriginationFeeBps,
			ProtocolShareBps:  m.Risk.ProtocolShareBps,
		},
	}
}

func (s *Server) handleGetMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	if len(req.Params) != 0 {
		return s.writeInvalidParams(w, req, "no parameters expected", nil)
	}
	m, err := s.engine.MarketView()
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, newMarketResult(m))
	return nil
}

func (s *Server) handleGetLoan(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params struct {
		Borrower string `json:"borrower"`
	}
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	loan, debt, err := s.engine.LoanView(strings.TrimSpace(params.Borrower))
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, loanResult{
		Borrower:         loan.Borrower,
		CollateralAsset:  loan.CollateralAsset,
		CollateralAmount: u64s(loan.CollateralAmount),
		Principal:        u64s(loan.Principal),
		UserIndex:        u64s(loan.UserIndex),
		LiveDebt:         u64s(debt),
		LastChangeType:   loan.LastChangeType,
		LastChangeTime:   loan.LastChangeTime,
	})
	return nil
}

func (s *Server) handleGetDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params struct {
		Depositor string `json:"depositor"`
	}
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	record, err := s.engine.DepositView(strings.TrimSpace(params.Depositor))
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, depositResult{
		Depositor:   record.Depositor,
		Principal:   u64s(record.Principal),
		LastUpdated: record.LastUpdated,
	})
	return nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	balance, err := s.engine.BalanceView(strings.TrimSpace(params.Account), strings.TrimSpace(params.Asset))
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]string{"balance": u64s(balance)})
	return nil
}

func (s *Server) handleGetCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	ct, err := s.engine.CollateralView(strings.TrimSpace(params.Asset))
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, collateralResult{
		Asset:              ct.Asset,
		UnderlyingAsset:    ct.UnderlyingAsset,
		UnderlyingDecimals: ct.UnderlyingDecimals,
		TotalPledged:       u64s(ct.TotalPledged),
		PeerMarket:         ct.PeerMarket,
	})
	return nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	shares, err := s.engine.Deposit(strings.TrimSpace(params.Account), amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"sharesMinted": u64s(shares)})
	return nil
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params struct {
		Account string `json:"account"`
		Shares  string `json:"shares"`
	}
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	shares, err := parseAmount("shares", params.Shares)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := s.engine.Withdraw(strings.TrimSpace(params.Account), shares)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"amountOut": u64s(amount)})
	return nil
}

func (s *Server) handleBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params borrowParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	collateralAmount, err := parseAmount("collateralAmount", params.CollateralAmount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	res, err := s.engine.Borrow(strings.TrimSpace(params.Borrower), strings.TrimSpace(params.CollateralAsset), collateralAmount, amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{
		"disbursed": u64s(res.Disbursed),
		"fee":       u64s(res.Fee),
		"principal": u64s(res.Principal),
		"liveDebt":  u64s(res.LiveDebt),
	})
	return nil
}

func (s *Server) handleRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	repaid, err := s.engine.Repay(strings.TrimSpace(params.Account), amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"repaid": u64s(repaid)})
	return nil
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	if err := s.engine.WithdrawCollateral(strings.TrimSpace(params.Account), amount); err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"released": u64s(amount)})
	return nil
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	res, err := s.engine.Liquidate(strings.TrimSpace(params.Liquidator), strings.TrimSpace(params.Borrower), amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]interface{}{
		"repaid":   u64s(res.Repaid),
		"seized":   u64s(res.Seized),
		"bonusBps": res.BonusBps,
		"closed":   res.Closed,
	})
	return nil
}

func (s *Server) handleBuyout(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params buyoutParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	premiumOffer, err := parseAmount("premiumOffer", params.PremiumOffer)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	repayOffer, err := parseAmount("repayOffer", params.RepayOffer)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	res, err := s.engine.Buyout(strings.TrimSpace(params.Buyer), strings.TrimSpace(params.Borrower), premiumOffer, repayOffer)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]interface{}{
		"premiumPaid":    u64s(res.PremiumPaid),
		"premiumRateBps": res.PremiumRateBps,
		"debtRepaid":     u64s(res.DebtRepaid),
		"collateralOut":  u64s(res.CollateralOut),
	})
	return nil
}

func (s *Server) handleRegisterCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params registerCollateralParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	ct := market.CollateralType{
		Asset:              strings.TrimSpace(params.Asset),
		UnderlyingAsset:    strings.TrimSpace(params.UnderlyingAsset),
		UnderlyingDecimals: params.UnderlyingDecimals,
		PeerMarket:         strings.TrimSpace(params.PeerMarket),
	}
	if err := s.engine.RegisterCollateral(strings.TrimSpace(params.Caller), ct); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]bool{"registered": true})
	return nil
}

func (s *Server) handleDeregisterCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params deregisterCollateralParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	if err := s.engine.DeregisterCollateral(strings.TrimSpace(params.Caller), strings.TrimSpace(params.Asset)); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]bool{"deregistered": true})
	return nil
}

func (s *Server) handleSetRateParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params rateParamsParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	p := market.RateParams{
		BaseBps:    params.BaseBps,
		UtilCapBps: params.UtilCapBps,
		KinkBps:    params.KinkBps,
		Slope1Bps:  params.Slope1Bps,
		Slope2Bps:  params.Slope2Bps,
		MaxAprBps:  params.MaxAprBps,
	}
	if err := s.engine.UpdateRateParams(strings.TrimSpace(params.Caller), p); err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]bool{"updated": true})
	return nil
}

func (s *Server) handleSetRiskParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params riskParamsParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	p := market.RiskParams{
		LTVBps:            params.LTVBps,
		LiqThresholdBps:   params.LiqThresholdBps,
		LiqBonusBps:       params.LiqBonusBps,
		OriginationFeeBps: params.OriginationFeeBps,
		ProtocolShareBps:  params.ProtocolShareBps,
	}
	if err := s.engine.UpdateRiskParams(strings.TrimSpace(params.Caller), p); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
	return nil
}

func (s *Server) handleSetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params setActiveParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	if err := s.engine.SetActive(strings.TrimSpace(params.Caller), params.Active); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]bool{"active": params.Active})
	return nil
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params withdrawFeesParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	withdrawn, err := s.engine.WithdrawFees(strings.TrimSpace(params.Caller), strings.TrimSpace(params.Recipient), amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"withdrawn": u64s(withdrawn)})
	return nil
}

func (s *Server) handleWithdrawPremiumFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params withdrawFeesParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	withdrawn, err := s.engine.WithdrawPremiumFees(strings.TrimSpace(params.Caller), strings.TrimSpace(params.Recipient), amount)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]string{"withdrawn": u64s(withdrawn)})
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params snapshotParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	snap, err := s.engine.Snapshot(strings.TrimSpace(params.Caller))
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	payload, err := snap.Encode()
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]interface{}{
		"payload": hex.EncodeToString(payload),
		"loans":   len(snap.Loans),
	})
	return nil
}

func (s *Server) handleRestore(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params restoreParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	payload, err := hex.DecodeString(strings.TrimSpace(params.Payload))
	if err != nil {
		return s.writeInvalidParams(w, req, "payload must be hex encoded", err.Error())
	}
	snap, err := market.DecodeSnapshot(payload)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	if err := s.engine.Restore(strings.TrimSpace(params.Caller), snap); err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.syncGauges()
	writeResult(w, req.ID, map[string]bool{"restored": true})
	return nil
}

func (s *Server) handleSetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params setPriceParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	price, err := parseAmount("priceMicroUsd", params.PriceMicroUSD)
	if err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	if s.oracle == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "oracle not configured", nil)
		return errNoOracle
	}
	if err := s.oracle.SetPrice(strings.TrimSpace(params.Asset), price); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, map[string]bool{"posted": true})
	return nil
}

func (s *Server) handleSetTier(w http.ResponseWriter, _ *http.Request, req *RPCRequest) error {
	var params setTierParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeInvalidParams(w, req, err.Error(), nil)
	}
	if s.tiers == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "tier table not configured", nil)
		return errNoTiers
	}
	account := strings.TrimSpace(params.Account)
	if account == "" {
		return s.writeInvalidParams(w, req, "account required", nil)
	}
	s.tiers.SetTier(account, params.Tier)
	writeResult(w, req.ID, map[string]interface{}{"account": account, "tier": params.Tier})
	return nil
}
