package ledger

import (
	"fmt"
	"io"
	"strings"

	"github.com/allancalix/clerk/internal/model"
)

// Render writes one transaction as a ledger record:
//
//	2021-09-16 * "KFC" "Dinner" #food
//	  Expenses:Food:Restaurant    50.00 USD
//	  Liabilities:Chase Freedom  -50.00 USD
func Render(w io.Writer, txn model.Transaction, postings []model.Posting, tags []string) error {
	marker := "*"
	if txn.Status == model.StatusPending {
		marker = "!"
	}

	header := fmt.Sprintf("%s %s", txn.Date.Format("2006-01-02"), marker)
	if txn.Payee != "" {
		header += fmt.Sprintf(" %q", txn.Payee)
	}
	header += fmt.Sprintf(" %q", txn.Narration)
	for _, tag := range tags {
		header += " #" + strings.ReplaceAll(tag, " ", "-")
	}

	if _, err := fmt.Fprintln(w, header); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}

	width := 0
	for _, p := range postings {
		if len(p.Account) > width {
			width = len(p.Account)
		}
	}
	for _, p := range postings {
		_, err := fmt.Fprintf(w, "  %-*s  %s %s\n", width, p.Account, p.Amount.StringFixed(2), p.Currency)
		if err != nil {
			return fmt.Errorf("writing posting: %w", err)
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
