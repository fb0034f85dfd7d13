package model

// AccountType classifies upstream accounts.
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeOther      AccountType = "other"
)

// Account is a financial account exposed under a Link. The ID is issued by
// the upstream provider and is distinct from ledger account paths.
type Account struct {
	ID     string
	ItemID string // owning link
	Name   string
	Type   AccountType
}

// NormalBalance reports whether an account type carries a credit-normal
// balance (liabilities) rather than a debit-normal one (assets).
func (t AccountType) NormalBalance() string {
	switch t {
	case AccountTypeCredit, AccountTypeLoan:
		return "CREDIT_NORMAL"
	default:
		return "DEBIT_NORMAL"
	}
}
