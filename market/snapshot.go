package market

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// Snapshot is the migration payload pulled from a market instance and
// replayed into a successor. Replaying reproduces identical aggregate
// counters and, per loan, the same (CollateralAmount, Principal, UserIndex)
// triple.
type Snapshot struct {
	Market      Market
	Collaterals []CollateralType
	Loans       []LoanRecord
	Deposits    []DepositRecord
}

// Encode serializes the snapshot with RLP.
func (s *Snapshot) Encode() ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidSnapshot
	}
	return rlp.EncodeToBytes(s)
}

// DecodeSnapshot parses an RLP snapshot payload.
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	if len(payload) == 0 {
		return nil, ErrInvalidSnapshot
	}
	snap := new(Snapshot)
	if err := rlp.DecodeBytes(payload, snap); err != nil {
		return nil, ErrInvalidSnapshot
	}
	return snap, nil
}

// Snapshot captures the full ledger state. Migration admin only. The market
// is accrued first so the snapshot carries interest up to the present.
func (e *Engine) Snapshot(caller string) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if err := requireRole(caller, m.MigrationAdmin); err != nil {
		return nil, err
	}
	if err := e.accrueMarket(m); err != nil {
		return nil, err
	}
	if err := refreshRate(m); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(m); err != nil {
		return nil, err
	}

	snap := &Snapshot{Market: *m}
	collaterals, err := e.state.Collaterals()
	if err != nil {
		return nil, err
	}
	for _, ct := range collaterals {
		snap.Collaterals = append(snap.Collaterals, *ct)
	}
	loans, err := e.state.Loans()
	if err != nil {
		return nil, err
	}
	for _, loan := range loans {
		snap.Loans = append(snap.Loans, *loan)
	}
	deposits, err := e.state.Deposits()
	if err != nil {
		return nil, err
	}
	for _, dep := range deposits {
		snap.Deposits = append(snap.Deposits, *dep)
	}
	return snap, nil
}

// Restore replays a snapshot into this instance. Migration admin of the
// snapshot being restored must match the caller, and the instance must not
// already hold a market.
func (e *Engine) Restore(caller string, snap *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if snap == nil {
		return ErrInvalidSnapshot
	}
	if err := requireRole(caller, snap.Market.MigrationAdmin); err != nil {
		return err
	}
	existing, err := e.state.GetMarket()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrMarketExists
	}

	m := snap.Market
	if m.BorrowIndex == 0 {
		return ErrInvalidSnapshot
	}
	if err := e.state.PutMarket(&m); err != nil {
		return err
	}
	for i := range snap.Collaterals {
		ct := snap.Collaterals[i]
		if err := e.state.PutCollateral(&ct); err != nil {
			return err
		}
	}
	for i := range snap.Loans {
		loan := snap.Loans[i]
		if err := e.state.PutLoan(&loan); err != nil {
			return err
		}
	}
	for i := range snap.Deposits {
		dep := snap.Deposits[i]
		if err := e.state.PutDeposit(&dep); err != nil {
			return err
		}
	}
	return nil
}
