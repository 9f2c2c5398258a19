// Package marketstore binds the lending engine's state interface to a
// key-value database, with RLP-encoded values under prefixed keys.
package marketstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"lendex/market"
	"lendex/storage"
)

var (
	marketKey        = []byte("lending/market")
	loanPrefix       = "lending/loan/"
	depositPrefix    = "lending/deposit/"
	collateralPrefix = "lending/collateral/"
	balancePrefix    = "lending/balance/"

	loanIndexKey       = []byte("lending/index/loans")
	depositIndexKey    = []byte("lending/index/deposits")
	collateralIndexKey = []byte("lending/index/collaterals")
)

// Store persists engine state in a storage.Database.
type Store struct {
	db storage.Database
}

// New constructs a store over the supplied database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

func loanKey(borrower string) []byte {
	return []byte(loanPrefix + borrower)
}

func depositKey(depositor string) []byte {
	return []byte(depositPrefix + depositor)
}

func collateralKey(asset string) []byte {
	return []byte(collateralPrefix + asset)
}

func balanceKey(account, asset string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", balancePrefix, account, asset))
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("marketstore: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("marketstore: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func (s *Store) index(key []byte) ([]string, error) {
	var entries []string
	if _, err := s.get(key, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) indexAdd(key []byte, entry string) error {
	entries, err := s.index(key)
	if err != nil {
		return err
	}
	for _, existing := range entries {
		if existing == entry {
			return nil
		}
	}
	entries = append(entries, entry)
	sort.Strings(entries)
	return s.put(key, entries)
}

func (s *Store) indexRemove(key []byte, entry string) error {
	entries, err := s.index(key)
	if err != nil {
		return err
	}
	filtered := entries[:0]
	for _, existing := range entries {
		if existing != entry {
			filtered = append(filtered, existing)
		}
	}
	return s.put(key, filtered)
}

// GetMarket resolves the singleton market record, nil when absent.
func (s *Store) GetMarket() (*market.Market, error) {
	m := new(market.Market)
	ok, err := s.get(marketKey, m)
	if err != nil || !ok {
		return nil, err
	}
	return m, nil
}

// PutMarket stores the market record.
func (s *Store) PutMarket(m *market.Market) error {
	if m == nil {
		return fmt.Errorf("marketstore: nil market")
	}
	return s.put(marketKey, m)
}

// GetLoan resolves a loan record, nil when absent.
func (s *Store) GetLoan(borrower string) (*market.LoanRecord, error) {
	loan := new(market.LoanRecord)
	ok, err := s.get(loanKey(borrower), loan)
	if err != nil || !ok {
		return nil, err
	}
	return loan, nil
}

// PutLoan stores a loan record and keeps the iteration index current.
func (s *Store) PutLoan(loan *market.LoanRecord) error {
	if loan == nil {
		return fmt.Errorf("marketstore: nil loan")
	}
	if err := s.put(loanKey(loan.Borrower), loan); err != nil {
		return err
	}
	return s.indexAdd(loanIndexKey, loan.Borrower)
}

// DeleteLoan removes a loan record and its index entry.
func (s *Store) DeleteLoan(borrower string) error {
	if err := s.db.Delete(loanKey(borrower)); err != nil {
		return err
	}
	return s.indexRemove(loanIndexKey, borrower)
}

// Loans lists every loan record in borrower order.
func (s *Store) Loans() ([]*market.LoanRecord, error) {
	borrowers, err := s.index(loanIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*market.LoanRecord, 0, len(borrowers))
	for _, borrower := range borrowers {
		loan, err := s.GetLoan(borrower)
		if err != nil {
			return nil, err
		}
		if loan != nil {
			out = append(out, loan)
		}
	}
	return out, nil
}

// GetDeposit resolves a deposit record, nil when absent.
func (s *Store) GetDeposit(depositor string) (*market.DepositRecord, error) {
	record := new(market.DepositRecord)
	ok, err := s.get(depositKey(depositor), record)
	if err != nil || !ok {
		return nil, err
	}
	return record, nil
}

// PutDeposit stores a deposit record and keeps the iteration index current.
func (s *Store) PutDeposit(record *market.DepositRecord) error {
	if record == nil {
		return fmt.Errorf("marketstore: nil deposit record")
	}
	if err := s.put(depositKey(record.Depositor), record); err != nil {
		return err
	}
	return s.indexAdd(depositIndexKey, record.Depositor)
}

// Deposits lists every deposit record in depositor order.
func (s *Store) Deposits() ([]*market.DepositRecord, error) {
	depositors, err := s.index(depositIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*market.DepositRecord, 0, len(depositors))
	for _, depositor := range depositors {
		record, err := s.GetDeposit(depositor)
		if err != nil {
			return nil, err
		}
		if record != nil {
			out = append(out, record)
		}
	}
	return out, nil
}

// GetCollateral resolves a collateral registration, nil when absent.
func (s *Store) GetCollateral(asset string) (*market.CollateralType, error) {
	ct := new(market.CollateralType)
	ok, err := s.get(collateralKey(asset), ct)
	if err != nil || !ok {
		return nil, err
	}
	return ct, nil
}

// PutCollateral stores a collateral registration.
func (s *Store) PutCollateral(ct *market.CollateralType) error {
	if ct == nil {
		return fmt.Errorf("marketstore: nil collateral type")
	}
	if err := s.put(collateralKey(ct.Asset), ct); err != nil {
		return err
	}
	return s.indexAdd(collateralIndexKey, ct.Asset)
}

// DeleteCollateral removes a collateral registration.
func (s *Store) DeleteCollateral(asset string) error {
	if err := s.db.Delete(collateralKey(asset)); err != nil {
		return err
	}
	return s.indexRemove(collateralIndexKey, asset)
}

// Collaterals lists every collateral registration in asset order.
func (s *Store) Collaterals() ([]*market.CollateralType, error) {
	assets, err := s.index(collateralIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*market.CollateralType, 0, len(assets))
	for _, asset := range assets {
		ct, err := s.GetCollateral(asset)
		if err != nil {
			return nil, err
		}
		if ct != nil {
			out = append(out, ct)
		}
	}
	return out, nil
}

// GetBalance reads an account's asset balance, zero when absent.
func (s *Store) GetBalance(account, asset string) (uint64, error) {
	var balance uint64
	if _, err := s.get(balanceKey(account, asset), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// SetBalance writes an account's asset balance.
func (s *Store) SetBalance(account, asset string, amount uint64) error {
	return s.put(balanceKey(account, asset), amount)
}
