package upstream

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allancalix/clerk/internal/model"
)

const dateFormat = "2006-01-02"

// Normalize maps a provider record into the canonical Transaction. Missing
// optional fields (merchant, currency) are tolerated; the verbatim payload is
// kept on Source so categorization can be replayed without re-fetching.
func Normalize(raw RawTransaction) (model.Transaction, error) {
	if raw.TransactionID == "" {
		return model.Transaction{}, fmt.Errorf("record has no transaction id")
	}

	date, err := time.Parse(dateFormat, raw.Date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date for %s: %w", raw.TransactionID, err)
	}

	txn := model.Transaction{
		ID:         uuid.NewString(),
		UpstreamID: raw.TransactionID,
		AccountID:  raw.AccountID,
		Date:       date,
		Narration:  raw.Name,
		Amount:     raw.Amount,
		Currency:   "USD",
		Source:     string(raw.Raw),
		Status:     model.StatusPosted,
	}
	if raw.Pending {
		txn.Status = model.StatusPending
	}
	if raw.MerchantName != nil {
		txn.Payee = *raw.MerchantName
	}
	if raw.ISOCurrencyCode != nil {
		txn.Currency = *raw.ISOCurrencyCode
	} else if raw.UnofficialCurrencyCode != nil {
		txn.Currency = *raw.UnofficialCurrencyCode
	}

	return txn, nil
}
