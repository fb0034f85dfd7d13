// Package ledger turns canonical transactions into balanced double-entry
// posting sets and renders them as ledger records.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/allancalix/clerk/internal/model"
)

// UnknownAccount is the sentinel target for uncategorized transactions.
const UnknownAccount = "Unknown"

// Generate expands a transaction and its directives into a two-leg balanced
// posting set. The first directive wins; with none, the target leg is pinned
// to the Unknown sentinel so the set still balances by construction.
func Generate(txn model.Transaction, directives []model.Directive, origin string) []model.Posting {
	target := UnknownAccount
	if len(directives) > 0 {
		target = directives[0].Account
	}

	return []model.Posting{
		{
			TxnID:    txn.ID,
			Account:  target,
			Amount:   txn.Amount.Neg(),
			Currency: txn.Currency,
			Status:   txn.Status,
		},
		{
			TxnID:    txn.ID,
			Account:  origin,
			Amount:   txn.Amount,
			Currency: txn.Currency,
			Status:   txn.Status,
		},
	}
}

// Validate checks that postings sum to zero per currency. Postings for
// several transactions may be validated together; sums are grouped by
// transaction id.
func Validate(postings []model.Posting) error {
	type key struct {
		txnID    string
		currency string
	}
	sums := make(map[key]decimal.Decimal)
	for _, p := range postings {
		k := key{p.TxnID, p.Currency}
		sums[k] = sums[k].Add(p.Amount)
	}

	for k, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("transaction %s is unbalanced: %s %s", k.txnID, sum.StringFixed(2), k.currency)
		}
	}
	return nil
}
