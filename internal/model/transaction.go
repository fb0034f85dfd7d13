package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the settlement state of a transaction.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusPosted  TransactionStatus = "POSTED"
)

// Transaction is the canonical financial event used everywhere downstream of
// the upstream client.
type Transaction struct {
	ID         string // locally-issued row id
	UpstreamID string // provider-issued id, globally unique
	AccountID  string // upstream account that produced the transaction
	Date       time.Time
	Narration  string
	Payee      string // empty when the provider reports no merchant
	Amount     decimal.Decimal
	Currency   string
	Source     string // verbatim raw payload, retained for audit/replay
	Status     TransactionStatus
}
