package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allancalix/clerk/internal/model"
	"github.com/allancalix/clerk/internal/rules"
	"github.com/allancalix/clerk/internal/store"
	"github.com/allancalix/clerk/internal/upstream"
)

// fakeSource plays back queued errors, then queued pages, recording the
// cursor of every successful fetch.
type fakeSource struct {
	errs    []error
	pages   []*upstream.Delta
	cursors []string
	fetched int
}

func (f *fakeSource) FetchDelta(_ context.Context, cursor string) (*upstream.Delta, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if f.fetched >= len(f.pages) {
		return nil, fmt.Errorf("unexpected fetch with cursor %q", cursor)
	}
	f.cursors = append(f.cursors, cursor)
	page := f.pages[f.fetched]
	f.fetched++
	return page, nil
}

type fakeAccounts struct {
	accounts []model.Account
	err      error
}

func (f *fakeAccounts) Accounts(context.Context) ([]model.Account, error) {
	return f.accounts, f.err
}

func (f *fakeAccounts) Balances(context.Context) ([]upstream.AccountBalance, error) {
	return nil, nil
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "clerk.db"))
	require.NoError(t, err)
	return st
}

func testLink(t *testing.T, st *store.Store) model.Link {
	t.Helper()
	link := model.Link{
		ItemID:      "item-1",
		Alias:       "test_link",
		AccessToken: "access-token-1234",
		State:       model.LinkActive,
	}
	require.NoError(t, st.UpsertLink(link))
	require.NoError(t, st.UpsertAccount(model.Account{
		ID:     "acct-1",
		ItemID: "item-1",
		Name:   "Chase Checking",
		Type:   model.AccountTypeDepository,
	}))
	return link
}

func rawTxn(t *testing.T, id, name, amount, date string) upstream.RawTransaction {
	t.Helper()
	payload := fmt.Sprintf(`{
		"transaction_id": %q,
		"account_id": "acct-1",
		"name": %q,
		"amount": %s,
		"iso_currency_code": "USD",
		"date": %q,
		"pending": false
	}`, id, name, amount, date)

	var raw upstream.RawTransaction
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return raw
}

func page(next string, more bool) *upstream.Delta {
	return &upstream.Delta{NextCursor: next, HasMore: more}
}

func evaluator(t *testing.T, src string) *rules.Evaluator {
	t.Helper()
	e, err := rules.New("transform.rules", []byte(src), 0)
	require.NoError(t, err)
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSync_FirstSyncUncategorized(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	p.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	src := &fakeSource{pages: []*upstream.Delta{p}}

	report, err := New(st, src, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Pages)
	assert.Zero(t, report.Failures)

	entry, err := st.GetTransactionByUpstreamID("t1")
	require.NoError(t, err)
	require.Len(t, entry.Postings, 2)
	assert.Equal(t, "Unknown", entry.Postings[0].Account)
	assert.True(t, entry.Postings[0].Amount.Equal(dec("50.00")), "got %s", entry.Postings[0].Amount)
	assert.Equal(t, "Assets:Chase Checking", entry.Postings[1].Account)
	assert.True(t, entry.Postings[1].Amount.Equal(dec("-50.00")))

	cursor, err := st.GetCursor(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", cursor)
}

func TestSync_WithScript(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	p.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	src := &fakeSource{pages: []*upstream.Delta{p}}

	ev := evaluator(t, `
def categorize(txn):
    if "KFC" in txn.narration:
        return {"account": "Expenses:Food:Restaurant", "tags": ["food"]}
    return None
`)

	_, err := New(st, src, ev, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	entry, err := st.GetTransactionByUpstreamID("t1")
	require.NoError(t, err)
	require.Len(t, entry.Postings, 2)
	assert.Equal(t, "Expenses:Food:Restaurant", entry.Postings[0].Account)
	assert.True(t, entry.Postings[0].Amount.Equal(dec("50.00")))
	assert.Equal(t, []string{"food"}, entry.Tags)
}

func TestSync_AliasOverridesNarration(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	p.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC #1234 US", "-50.00", "2021-09-16")}
	src := &fakeSource{pages: []*upstream.Delta{p}}

	ev := evaluator(t, `
def categorize(txn):
    return {"account": "Expenses:Food:Restaurant", "alias": "KFC"}
`)

	_, err := New(st, src, ev, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	entry, err := st.GetTransactionByUpstreamID("t1")
	require.NoError(t, err)
	assert.Equal(t, "KFC", entry.Transaction.Narration)
}

func TestSync_ModifiedReplacesPostings(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p1 := page("cursor-1", false)
	p1.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	src := &fakeSource{pages: []*upstream.Delta{p1}}

	_, err := New(st, src, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	p2 := page("cursor-2", false)
	p2.Modified = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-45.00", "2021-09-16")}
	src2 := &fakeSource{pages: []*upstream.Delta{p2}}

	link, err = st.GetLink(link.ItemID)
	require.NoError(t, err)
	report, err := New(st, src2, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Modified)

	assert.Equal(t, []string{"cursor-1"}, src2.cursors, "second sync resumes from committed cursor")

	entry, err := st.GetTransactionByUpstreamID("t1")
	require.NoError(t, err)
	require.Len(t, entry.Postings, 2, "no duplicate rows")
	for _, p := range entry.Postings {
		assert.True(t, p.Amount.Abs().Equal(dec("45.00")), "got %s", p.Amount)
	}
}

func TestSync_ReapplySamePageIsIdempotent(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	mkSource := func() *fakeSource {
		p := page("cursor-1", false)
		p.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
		return &fakeSource{pages: []*upstream.Delta{p}}
	}

	// The same page applied twice, as after a crash between commit and
	// acknowledgement upstream.
	_, err := New(st, mkSource(), nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)
	_, err = New(st, mkSource(), nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	entry, err := st.GetTransactionByUpstreamID("t1")
	require.NoError(t, err)
	assert.Len(t, entry.Postings, 2)
	assert.Empty(t, entry.Tags)
}

func TestSync_RemovedClearsPostingsAndTags(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p1 := page("cursor-1", false)
	p1.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	_, err := New(st, &fakeSource{pages: []*upstream.Delta{p1}}, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	p2 := page("cursor-2", false)
	p2.Removed = []string{"t1"}
	link, err = st.GetLink(link.ItemID)
	require.NoError(t, err)
	report, err := New(st, &fakeSource{pages: []*upstream.Delta{p2}}, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	_, err = st.GetTransactionByUpstreamID("t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSync_MultiPage(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p1 := page("cursor-1", true)
	p1.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	p2 := page("cursor-2", false)
	p2.Added = []upstream.RawTransaction{rawTxn(t, "t2", "SHELL", "-30.00", "2021-09-17")}
	src := &fakeSource{pages: []*upstream.Delta{p1, p2}}

	report, err := New(st, src, nil, nil).Sync(context.Background(), link)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, []string{"", "cursor-1"}, src.cursors, "page N commits before page N+1 is requested")

	cursor, err := st.GetCursor(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-2", cursor)
}

func TestSync_CredentialErrorDegradesLink(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	src := &fakeSource{errs: []error{fmt.Errorf("fetching page: %w", upstream.ErrCredentialInvalid)}}

	_, err := New(st, src, nil, nil).Sync(context.Background(), link)
	require.Error(t, err)
	assert.True(t, upstream.IsCredential(err))

	got, err := st.GetLink(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkRequiresVerification, got.State)
}

func TestSync_CredentialErrorDuringAccountRefreshDegradesLink(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	src := &fakeSource{pages: []*upstream.Delta{page("cursor-1", false)}}
	accts := &fakeAccounts{err: fmt.Errorf("accounts/get: %w", upstream.ErrCredentialInvalid)}

	_, err := New(st, src, nil, nil, WithAccountSource(accts)).Sync(context.Background(), link)
	require.Error(t, err)
	assert.True(t, upstream.IsCredential(err))
	assert.Zero(t, src.fetched, "no delta fetched with a stale credential")

	got, err := st.GetLink(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkRequiresVerification, got.State)
}

func TestSync_TransientErrorRetries(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	p.Added = []upstream.RawTransaction{rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16")}
	src := &fakeSource{
		errs:  []error{fmt.Errorf("rate limited: %w", upstream.ErrTransient)},
		pages: []*upstream.Delta{p},
	}

	report, err := New(st, src, nil, nil, WithRetryBase(time.Millisecond)).Sync(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
}

func TestSync_TransientErrorExhaustsRetries(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	transient := fmt.Errorf("rate limited: %w", upstream.ErrTransient)
	src := &fakeSource{errs: []error{transient, transient, transient, transient}}

	_, err := New(st, src, nil, nil, WithMaxRetries(3), WithRetryBase(time.Millisecond)).Sync(context.Background(), link)
	require.Error(t, err)
	assert.True(t, upstream.IsTransient(err))

	got, err := st.GetLink(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkActive, got.State, "transient failures do not degrade the link")
}

func TestSync_BadRecordAbortsPageCursorUnchanged(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)
	require.NoError(t, st.SetCursor(link.ItemID, "before"))
	link.SyncCursor = "before"

	p := page("cursor-after", false)
	p.Added = []upstream.RawTransaction{
		rawTxn(t, "t1", "GOOD", "-50.00", "2021-09-16"),
		rawTxn(t, "t2", "BAD DATE", "-10.00", "09/16/2021"),
	}
	src := &fakeSource{pages: []*upstream.Delta{p}}

	_, err := New(st, src, nil, nil).Sync(context.Background(), link)
	require.Error(t, err)

	cursor, err := st.GetCursor(link.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "before", cursor)

	_, err = st.GetTransactionByUpstreamID("t1")
	assert.ErrorIs(t, err, store.ErrNotFound, "none of the page's transactions are visible")
}

func TestSync_CategorizationFailureIsolation(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	p.Added = []upstream.RawTransaction{
		rawTxn(t, "t1", "KFC", "-50.00", "2021-09-16"),
		rawTxn(t, "t2", "BOOM", "-10.00", "2021-09-16"),
		rawTxn(t, "t3", "KFC", "-20.00", "2021-09-16"),
	}
	src := &fakeSource{pages: []*upstream.Delta{p}}

	ev := evaluator(t, `
def categorize(txn):
    if "BOOM" in txn.narration:
        fail("script bug")
    return {"account": "Expenses:Food:Restaurant"}
`)

	report, err := New(st, src, ev, nil).Sync(context.Background(), link)
	require.NoError(t, err, "a script failure on one transaction is not fatal")
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 3, report.Added)

	for id, account := range map[string]string{
		"t1": "Expenses:Food:Restaurant",
		"t2": "Unknown",
		"t3": "Expenses:Food:Restaurant",
	} {
		entry, err := st.GetTransactionByUpstreamID(id)
		require.NoError(t, err)
		require.Len(t, entry.Postings, 2)
		assert.Equal(t, account, entry.Postings[0].Account, "transaction %s", id)
	}
}

func TestSync_RefreshesAccounts(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	p := page("cursor-1", false)
	src := &fakeSource{pages: []*upstream.Delta{p}}
	accts := &fakeAccounts{accounts: []model.Account{
		{ID: "acct-2", ItemID: "item-1", Name: "Savings", Type: model.AccountTypeDepository},
	}}

	_, err := New(st, src, nil, nil, WithAccountSource(accts)).Sync(context.Background(), link)
	require.NoError(t, err)

	stored, err := st.AccountsByLink("item-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSync_CancelledContext(t *testing.T) {
	st := testStore(t)
	link := testLink(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{pages: []*upstream.Delta{page("cursor-1", false)}}
	_, err := New(st, src, nil, nil).Sync(ctx, link)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.fetched, "no page fetched after cancellation")
}
