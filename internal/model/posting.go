package model

import "github.com/shopspring/decimal"

// Posting is one signed-amount leg of a double-entry ledger record. Account
// is a ledger account path ("Expenses:Food:Restaurant"), not an upstream
// account id.
type Posting struct {
	ID       string
	TxnID    string
	Account  string
	Amount   decimal.Decimal
	Currency string
	Status   TransactionStatus // mirrored from the owning transaction
}

// Directive is a categorization instruction produced by the rules script for
// a single transaction.
type Directive struct {
	Account string   // target ledger account path
	Alias   string   // optional narration override
	Tags    []string // free-form labels
}
