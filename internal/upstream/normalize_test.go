package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allancalix/clerk/internal/model"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func rawTxn(t *testing.T, payload string) RawTransaction {
	t.Helper()
	var raw RawTransaction
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return raw
}

func TestNormalize(t *testing.T) {
	payload := `{
		"transaction_id": "t1",
		"account_id": "acct-1",
		"name": "KFC",
		"merchant_name": "KFC",
		"amount": -50.00,
		"iso_currency_code": "USD",
		"date": "2021-09-16",
		"pending": false
	}`

	txn, err := Normalize(rawTxn(t, payload))
	require.NoError(t, err)

	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, "t1", txn.UpstreamID)
	assert.Equal(t, "acct-1", txn.AccountID)
	assert.Equal(t, time.Date(2021, time.September, 16, 0, 0, 0, 0, time.UTC), txn.Date)
	assert.Equal(t, "KFC", txn.Narration)
	assert.Equal(t, "KFC", txn.Payee)
	assert.True(t, txn.Amount.Equal(decimalFromString(t, "-50")))
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, model.StatusPosted, txn.Status)
	assert.JSONEq(t, payload, txn.Source, "verbatim payload retained")
}

func TestNormalize_MissingOptionalFields(t *testing.T) {
	payload := `{
		"transaction_id": "t2",
		"account_id": "acct-1",
		"name": "TRANSFER",
		"amount": 12.34,
		"date": "2021-09-17",
		"pending": true
	}`

	txn, err := Normalize(rawTxn(t, payload))
	require.NoError(t, err)

	assert.Empty(t, txn.Payee)
	assert.Equal(t, "USD", txn.Currency, "defaults when provider reports none")
	assert.Equal(t, model.StatusPending, txn.Status)
}

func TestNormalize_UnofficialCurrency(t *testing.T) {
	payload := `{
		"transaction_id": "t3",
		"account_id": "acct-1",
		"name": "COFFEE",
		"amount": 3.50,
		"unofficial_currency_code": "BTC",
		"date": "2021-09-18",
		"pending": false
	}`

	txn, err := Normalize(rawTxn(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "BTC", txn.Currency)
}

func TestNormalize_BadDate(t *testing.T) {
	payload := `{
		"transaction_id": "t4",
		"account_id": "acct-1",
		"name": "BAD",
		"amount": 1.00,
		"date": "09/16/2021",
		"pending": false
	}`

	_, err := Normalize(rawTxn(t, payload))
	assert.Error(t, err)
}

func TestNormalize_MissingID(t *testing.T) {
	_, err := Normalize(rawTxn(t, `{"name": "NO ID", "date": "2021-09-16"}`))
	assert.Error(t, err)
}
