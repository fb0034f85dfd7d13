package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/allancalix/clerk/internal/model"
)

// pageSize is the number of transactions requested per sync page.
const pageSize = 500

// Environment base URLs for the Plaid API.
var environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Client is a Plaid API client scoped to one set of API credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// NewClient builds a Client for the named environment.
func NewClient(clientID, secret, environment string) (*Client, error) {
	base, ok := environments[environment]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q", environment)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    base,
		clientID:   clientID,
		secret:     secret,
	}, nil
}

// APIError is a structured error response from the provider.
type APIError struct {
	ErrorType  string `json:"error_type"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"error_message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid: %s (%s): %s", e.ErrorType, e.ErrorCode, e.Message)
}

// Unwrap maps provider codes onto the package's error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.ErrorCode {
	case "ITEM_LOGIN_REQUIRED", "INVALID_CREDENTIALS", "INVALID_ACCESS_TOKEN":
		return ErrCredentialInvalid
	}
	if e.ErrorType == "RATE_LIMIT_EXCEEDED" || e.StatusCode >= 500 {
		return ErrTransient
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("%s returned status %d: %w", path, resp.StatusCode, ErrTransient)
		}
		return fmt.Errorf("calling %s: %w", path, apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Source is the per-link view of the provider API.
type Source struct {
	client      *Client
	accessToken string
}

// NewSource scopes client to one link's access token.
func NewSource(client *Client, accessToken string) *Source {
	return &Source{client: client, accessToken: accessToken}
}

type syncRequest struct {
	ClientID    string      `json:"client_id"`
	Secret      string      `json:"secret"`
	AccessToken string      `json:"access_token"`
	Cursor      string      `json:"cursor,omitempty"`
	Count       int         `json:"count"`
	Options     syncOptions `json:"options"`
}

type syncOptions struct {
	IncludePersonalFinanceCategory bool `json:"include_personal_finance_category"`
	IncludeOriginalDescription     bool `json:"include_original_description"`
}

type syncResponse struct {
	Added      []RawTransaction `json:"added"`
	Modified   []RawTransaction `json:"modified"`
	Removed    []removedRecord  `json:"removed"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

type removedRecord struct {
	TransactionID string `json:"transaction_id"`
}

// FetchDelta requests one page of transaction changes since cursor.
func (s *Source) FetchDelta(ctx context.Context, cursor string) (*Delta, error) {
	var resp syncResponse
	err := s.client.post(ctx, "/transactions/sync", syncRequest{
		ClientID:    s.client.clientID,
		Secret:      s.client.secret,
		AccessToken: s.accessToken,
		Cursor:      cursor,
		Count:       pageSize,
		Options: syncOptions{
			IncludePersonalFinanceCategory: true,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(resp.Removed))
	for _, r := range resp.Removed {
		removed = append(removed, r.TransactionID)
	}

	return &Delta{
		Added:      resp.Added,
		Modified:   resp.Modified,
		Removed:    removed,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}, nil
}

type accountsRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts []struct {
		AccountID string `json:"account_id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Balances  struct {
			Available       *decimal.Decimal `json:"available"`
			Current         *decimal.Decimal `json:"current"`
			ISOCurrencyCode *string          `json:"iso_currency_code"`
		} `json:"balances"`
	} `json:"accounts"`
	Item struct {
		ItemID string `json:"item_id"`
	} `json:"item"`
}

// Accounts fetches account metadata for the link.
func (s *Source) Accounts(ctx context.Context) ([]model.Account, error) {
	resp, err := s.accountsGet(ctx, "/accounts/get")
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, model.Account{
			ID:     a.AccountID,
			ItemID: resp.Item.ItemID,
			Name:   a.Name,
			Type:   accountType(a.Type),
		})
	}
	return accounts, nil
}

// Balances fetches live balance snapshots for the link's accounts.
func (s *Source) Balances(ctx context.Context) ([]AccountBalance, error) {
	resp, err := s.accountsGet(ctx, "/accounts/balance/get")
	if err != nil {
		return nil, err
	}

	balances := make([]AccountBalance, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		b := AccountBalance{
			Account: model.Account{
				ID:     a.AccountID,
				ItemID: resp.Item.ItemID,
				Name:   a.Name,
				Type:   accountType(a.Type),
			},
			Currency: "USD",
		}
		if a.Balances.Available != nil {
			b.Available = *a.Balances.Available
		}
		if a.Balances.Current != nil {
			b.Current = *a.Balances.Current
		}
		if a.Balances.ISOCurrencyCode != nil {
			b.Currency = *a.Balances.ISOCurrencyCode
		}
		balances = append(balances, b)
	}
	return balances, nil
}

func (s *Source) accountsGet(ctx context.Context, path string) (*accountsResponse, error) {
	var resp accountsResponse
	err := s.client.post(ctx, path, accountsRequest{
		ClientID:    s.client.clientID,
		Secret:      s.client.secret,
		AccessToken: s.accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func accountType(s string) model.AccountType {
	switch s {
	case "depository":
		return model.AccountTypeDepository
	case "credit":
		return model.AccountTypeCredit
	case "loan":
		return model.AccountTypeLoan
	case "investment", "brokerage":
		return model.AccountTypeInvestment
	default:
		return model.AccountTypeOther
	}
}
