// Package sync drives incremental synchronization of one link: fetch deltas,
// normalize, categorize, expand into postings, and persist page by page.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"
	"go.uber.org/zap"

	"github.com/allancalix/clerk/internal/accounts"
	"github.com/allancalix/clerk/internal/ledger"
	"github.com/allancalix/clerk/internal/model"
	"github.com/allancalix/clerk/internal/rules"
	"github.com/allancalix/clerk/internal/store"
	"github.com/allancalix/clerk/internal/upstream"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 500 * time.Millisecond
)

// Report summarizes one link's sync.
type Report struct {
	ItemID   string `json:"item_id"`
	Added    int    `json:"added"`
	Modified int    `json:"modified"`
	Removed  int    `json:"removed"`
	Failures int    `json:"failures"` // categorization failures, persisted uncategorized
	Pages    int    `json:"pages"`
}

// Syncer orchestrates the sync loop for links sharing one store and rule set.
// Links have disjoint cursors and transaction ids, so independent Syncers (or
// one Syncer per goroutine with per-link sources) may run concurrently.
type Syncer struct {
	store      *store.Store
	source     upstream.TransactionSource
	accts      upstream.AccountSource
	rules      *rules.Evaluator
	log        *zap.Logger
	maxRetries int
	retryBase  time.Duration
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithAccountSource refreshes account metadata from upstream before syncing
// transactions, so new accounts get ledger paths.
func WithAccountSource(as upstream.AccountSource) Option {
	return func(s *Syncer) { s.accts = as }
}

// WithMaxRetries bounds per-page retries of transient upstream errors.
func WithMaxRetries(n int) Option {
	return func(s *Syncer) { s.maxRetries = n }
}

// WithRetryBase sets the base delay for exponential backoff.
func WithRetryBase(d time.Duration) Option {
	return func(s *Syncer) { s.retryBase = d }
}

// New creates a Syncer. A nil evaluator means every transaction is
// uncategorized; a nil logger is replaced with a no-op one.
func New(st *store.Store, src upstream.TransactionSource, ev *rules.Evaluator, log *zap.Logger, opts ...Option) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Syncer{
		store:      st,
		source:     src,
		rules:      ev,
		log:        log,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pageUpsert is one normalized, categorized transaction ready to persist.
type pageUpsert struct {
	txn      model.Transaction
	postings []model.Posting
	tags     []string
}

// Sync pulls all pending transaction pages for link. Each page commits in its
// own store transaction together with the cursor advance, so a crash or
// cancellation between pages resumes from the last committed cursor and
// re-applying a page is idempotent.
func (s *Syncer) Sync(ctx context.Context, link model.Link) (*Report, error) {
	report := &Report{ItemID: link.ItemID}

	if err := s.refreshAccounts(ctx, link); err != nil {
		return report, s.degradeOnCredential(link, err)
	}

	known, err := s.store.AccountsByLink(link.ItemID)
	if err != nil {
		return report, err
	}
	mapper := accounts.NewMapper(known, s.rules.Aliases())

	cursor := link.SyncCursor
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		delta, err := s.fetchPage(ctx, cursor)
		if err != nil {
			return report, s.degradeOnCredential(link, err)
		}

		upserts, failures, err := s.buildPage(delta, mapper)
		if err != nil {
			return report, err
		}

		err = s.store.Transact(ctx, func(tx *store.Store) error {
			for _, u := range upserts {
				if err := tx.UpsertTransaction(link.ItemID, u.txn, u.postings, u.tags); err != nil {
					return err
				}
			}
			for _, id := range delta.Removed {
				if err := tx.DeleteTransactionByUpstreamID(id); err != nil {
					return err
				}
			}
			return tx.SetCursor(link.ItemID, delta.NextCursor)
		})
		if err != nil {
			return report, fmt.Errorf("applying page: %w", err)
		}

		report.Pages++
		report.Added += len(delta.Added)
		report.Modified += len(delta.Modified)
		report.Removed += len(delta.Removed)
		report.Failures += failures
		cursor = delta.NextCursor

		s.log.Debug("page committed",
			zap.String("item_id", link.ItemID),
			zap.Int("added", len(delta.Added)),
			zap.Int("modified", len(delta.Modified)),
			zap.Int("removed", len(delta.Removed)),
			zap.Bool("has_more", delta.HasMore))

		if !delta.HasMore {
			break
		}
	}

	return report, nil
}

// degradeOnCredential marks the link for re-verification when err means its
// access credential is stale. Account refresh and delta fetches share the
// credential, so either step may surface the condition.
func (s *Syncer) degradeOnCredential(link model.Link, err error) error {
	if !upstream.IsCredential(err) {
		return err
	}
	s.log.Warn("link credential invalid, marking for verification",
		zap.String("item_id", link.ItemID))
	if serr := s.store.SetLinkState(link.ItemID, model.LinkRequiresVerification); serr != nil {
		return fmt.Errorf("degrading link: %w", serr)
	}
	return err
}

func (s *Syncer) refreshAccounts(ctx context.Context, link model.Link) error {
	if s.accts == nil {
		return nil
	}
	fetched, err := s.accts.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("refreshing accounts: %w", err)
	}
	for _, a := range fetched {
		if a.ItemID == "" {
			a.ItemID = link.ItemID
		}
		if err := s.store.UpsertAccount(a); err != nil {
			return err
		}
	}
	return nil
}

// buildPage normalizes, evaluates, and expands a delta page in memory. A
// normalization failure aborts the page; a rule failure only demotes that
// transaction to uncategorized.
func (s *Syncer) buildPage(delta *upstream.Delta, mapper *accounts.Mapper) ([]pageUpsert, int, error) {
	records := make([]upstream.RawTransaction, 0, len(delta.Added)+len(delta.Modified))
	records = append(records, delta.Added...)
	records = append(records, delta.Modified...)

	failures := 0
	upserts := make([]pageUpsert, 0, len(records))
	for _, raw := range records {
		txn, err := upstream.Normalize(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("normalizing record: %w", err)
		}

		directives, err := s.rules.Evaluate(txn)
		if err != nil {
			s.log.Warn("categorization failed",
				zap.String("transaction_id", txn.UpstreamID),
				zap.Error(err))
			failures++
			directives = nil
		}

		var tags []string
		if len(directives) > 0 {
			if alias := directives[0].Alias; alias != "" {
				txn.Narration = alias
			}
			tags = directives[0].Tags
		}

		upserts = append(upserts, pageUpsert{
			txn:      txn,
			postings: ledger.Generate(txn, directives, mapper.Path(txn.AccountID)),
			tags:     tags,
		})
	}
	return upserts, failures, nil
}

// fetchPage retries transient upstream failures with bounded exponential
// backoff; all other errors surface immediately.
func (s *Syncer) fetchPage(ctx context.Context, cursor string) (*upstream.Delta, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff.ExponentialWithJitter(s.retryBase, attempt-1)
			if err := backoff.WaitContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		delta, err := s.source.FetchDelta(ctx, cursor)
		if err == nil {
			return delta, nil
		}
		if !upstream.IsTransient(err) {
			return nil, err
		}

		s.log.Warn("transient upstream error",
			zap.Int("attempt", attempt),
			zap.Error(err))
		lastErr = err
	}
	return nil, fmt.Errorf("fetching page after %d attempts: %w", s.maxRetries+1, lastErr)
}
