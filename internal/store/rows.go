package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Row types mirror the persisted schema. Conversion to and from the model
// types happens at the store boundary so nothing else depends on gorm tags.

type linkRow struct {
	ID          string  `gorm:"column:id;primaryKey"`
	Alias       string  `gorm:"column:alias"`
	AccessToken string  `gorm:"column:access_token"`
	LinkState   string  `gorm:"column:link_state"`
	SyncCursor  *string `gorm:"column:sync_cursor"`
	Institution *string `gorm:"column:institution"`
}

func (linkRow) TableName() string { return "plaid_links" }

type accountRow struct {
	ID     string `gorm:"column:id;primaryKey"`
	ItemID string `gorm:"column:item_id;index"`
	Name   string `gorm:"column:name"`
	Type   string `gorm:"column:type"`
}

func (accountRow) TableName() string { return "accounts" }

type transactionRow struct {
	ID        string          `gorm:"column:id;primaryKey"`
	AccountID string          `gorm:"column:account_id;index"`
	Date      time.Time       `gorm:"column:date;index"`
	Narration string          `gorm:"column:narration"`
	Payee     *string         `gorm:"column:payee"`
	Amount    decimal.Decimal `gorm:"column:amount;type:text"`
	Currency  string          `gorm:"column:currency"`
	Source    string          `gorm:"column:source"`
	Status    string          `gorm:"column:status"`
}

func (transactionRow) TableName() string { return "transactions" }

type postingRow struct {
	ID       string          `gorm:"column:id;primaryKey"`
	TxnID    string          `gorm:"column:txn_id;index"`
	Seq      int             `gorm:"column:seq"`
	Account  string          `gorm:"column:account"`
	Amount   decimal.Decimal `gorm:"column:amount;type:text"`
	Currency string          `gorm:"column:currency"`
	Status   string          `gorm:"column:status"`
}

func (postingRow) TableName() string { return "postings" }

type tagRow struct {
	ID    string `gorm:"column:id;primaryKey"`
	TxnID string `gorm:"column:txn_id;index"`
	Value string `gorm:"column:value"`
}

func (tagRow) TableName() string { return "tags" }

// transactionLinkRow associates an upstream transaction id with the local
// transaction row that holds it, keyed per link. It is what makes upserts
// idempotent and delete-by-link possible without destroying transactions.
type transactionLinkRow struct {
	UpstreamID string `gorm:"column:upstream_id;primaryKey"`
	ItemID     string `gorm:"column:item_id;index"`
	TxnID      string `gorm:"column:txn_id"`
}

func (transactionLinkRow) TableName() string { return "transaction_links" }
