package market

// State abstracts the persistence layer backing the engine. Lookups return
// (nil, nil) when the record does not exist; writes replace the record
// wholesale. Implementations do not need to be safe for concurrent use: the
// engine serializes every operation.
type State interface {
	GetMarket() (*Market, error)
	PutMarket(*Market) error

	GetLoan(borrower string) (*LoanRecord, error)
	PutLoan(*LoanRecord) error
	DeleteLoan(borrower string) error
	Loans() ([]*LoanRecord, error)

	GetDeposit(depositor string) (*DepositRecord, error)
	PutDeposit(*DepositRecord) error
	Deposits() ([]*DepositRecord, error)

	GetCollateral(asset string) (*CollateralType, error)
	PutCollateral(*CollateralType) error
	DeleteCollateral(asset string) error
	Collaterals() ([]*CollateralType, error)

	GetBalance(account, asset string) (uint64, error)
	SetBalance(account, asset string, amount uint64) error
}
