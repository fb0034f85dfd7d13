// Package upstream talks to the account-aggregation service and converts its
// records into canonical transactions.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/shopspring/decimal"

	"github.com/allancalix/clerk/internal/model"
)

// Sentinel errors classifying upstream failures. Concrete errors wrap these
// so callers can branch with errors.Is without knowing provider codes.
var (
	// ErrCredentialInvalid means the link's access credential is stale or
	// revoked; the link needs re-verification before syncing again.
	ErrCredentialInvalid = errors.New("upstream: credential invalid")

	// ErrTransient marks rate limits and other retryable provider failures.
	ErrTransient = errors.New("upstream: transient failure")
)

// RawTransaction is a provider transaction record. Raw holds the verbatim
// payload bytes it was decoded from.
type RawTransaction struct {
	TransactionID          string          `json:"transaction_id"`
	AccountID              string          `json:"account_id"`
	Name                   string          `json:"name"`
	MerchantName           *string         `json:"merchant_name"`
	Amount                 decimal.Decimal `json:"amount"`
	ISOCurrencyCode        *string         `json:"iso_currency_code"`
	UnofficialCurrencyCode *string         `json:"unofficial_currency_code"`
	Date                   string          `json:"date"`
	Pending                bool            `json:"pending"`
	PendingTransactionID   *string         `json:"pending_transaction_id"`
	PaymentChannel         string          `json:"payment_channel"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the record and retains the original bytes.
func (t *RawTransaction) UnmarshalJSON(b []byte) error {
	type alias RawTransaction
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = RawTransaction(a)
	t.Raw = append([]byte(nil), b...)
	return nil
}

// Delta is one page of transaction changes since a cursor.
type Delta struct {
	Added      []RawTransaction
	Modified   []RawTransaction
	Removed    []string // upstream transaction ids
	NextCursor string
	HasMore    bool
}

// TransactionSource fetches transaction deltas for one link. An empty cursor
// requests the full history.
type TransactionSource interface {
	FetchDelta(ctx context.Context, cursor string) (*Delta, error)
}

// AccountSource fetches account metadata and balances for one link.
type AccountSource interface {
	Accounts(ctx context.Context) ([]model.Account, error)
	Balances(ctx context.Context) ([]AccountBalance, error)
}

// AccountBalance is a point-in-time balance snapshot for one account.
type AccountBalance struct {
	Account   model.Account
	Available decimal.Decimal
	Current   decimal.Decimal
	Currency  string
}

// IsCredential reports whether err means the link's credential is invalid.
func IsCredential(err error) bool {
	return errors.Is(err, ErrCredentialInvalid)
}

// IsTransient reports whether err is worth retrying: a provider rate limit,
// a server-side failure, or a network error.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
