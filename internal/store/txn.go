package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/allancalix/clerk/internal/model"
)

// Entry is a stored transaction with its postings and tags.
type Entry struct {
	Transaction model.Transaction
	Postings    []model.Posting
	Tags        []string
}

// UpsertTransaction inserts or replaces a transaction keyed by its upstream
// id, along with all of its postings and tags. Replacement removes the prior
// postings and tags wholesale, so re-syncing a modified transaction never
// leaves duplicate rows behind.
func (s *Store) UpsertTransaction(itemID string, txn model.Transaction, postings []model.Posting, tags []string) error {
	// Reuse the local row id when this upstream transaction was seen before.
	var assoc transactionLinkRow
	err := s.db.First(&assoc, "upstream_id = ?", txn.UpstreamID).Error
	switch {
	case err == nil:
		txn.ID = assoc.TxnID
	case errors.Is(err, gorm.ErrRecordNotFound):
		if txn.ID == "" {
			txn.ID = uuid.NewString()
		}
	default:
		return fmt.Errorf("resolving upstream id %s: %w", txn.UpstreamID, err)
	}

	row := transactionRow{
		ID:        txn.ID,
		AccountID: txn.AccountID,
		Date:      txn.Date,
		Narration: txn.Narration,
		Amount:    txn.Amount,
		Currency:  txn.Currency,
		Source:    txn.Source,
		Status:    string(txn.Status),
	}
	if txn.Payee != "" {
		row.Payee = &txn.Payee
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting transaction %s: %w", txn.UpstreamID, err)
	}

	link := transactionLinkRow{UpstreamID: txn.UpstreamID, ItemID: itemID, TxnID: txn.ID}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upstream_id"}},
		UpdateAll: true,
	}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("upserting transaction link %s: %w", txn.UpstreamID, err)
	}

	if err := s.replacePostings(txn.ID, string(txn.Status), postings); err != nil {
		return err
	}
	return s.replaceTags(txn.ID, tags)
}

func (s *Store) replacePostings(txnID, status string, postings []model.Posting) error {
	if err := s.db.Delete(&postingRow{}, "txn_id = ?", txnID).Error; err != nil {
		return fmt.Errorf("clearing postings for %s: %w", txnID, err)
	}
	for i, p := range postings {
		row := postingRow{
			ID:       p.ID,
			TxnID:    txnID,
			Seq:      i,
			Account:  p.Account,
			Amount:   p.Amount,
			Currency: p.Currency,
			Status:   status,
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if err := s.db.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting posting for %s: %w", txnID, err)
		}
	}
	return nil
}

func (s *Store) replaceTags(txnID string, tags []string) error {
	if err := s.db.Delete(&tagRow{}, "txn_id = ?", txnID).Error; err != nil {
		return fmt.Errorf("clearing tags for %s: %w", txnID, err)
	}
	for _, value := range tags {
		row := tagRow{ID: uuid.NewString(), TxnID: txnID, Value: value}
		if err := s.db.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting tag for %s: %w", txnID, err)
		}
	}
	return nil
}

// DeleteTransactionByUpstreamID removes a transaction reported as removed by
// the upstream, along with its postings, tags, and association row. Account
// and link rows are never touched.
func (s *Store) DeleteTransactionByUpstreamID(upstreamID string) error {
	var assoc transactionLinkRow
	err := s.db.First(&assoc, "upstream_id = ?", upstreamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Never synced locally; nothing to remove.
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving upstream id %s: %w", upstreamID, err)
	}

	if err := s.db.Delete(&postingRow{}, "txn_id = ?", assoc.TxnID).Error; err != nil {
		return fmt.Errorf("deleting postings for %s: %w", upstreamID, err)
	}
	if err := s.db.Delete(&tagRow{}, "txn_id = ?", assoc.TxnID).Error; err != nil {
		return fmt.Errorf("deleting tags for %s: %w", upstreamID, err)
	}
	if err := s.db.Delete(&transactionRow{}, "id = ?", assoc.TxnID).Error; err != nil {
		return fmt.Errorf("deleting transaction %s: %w", upstreamID, err)
	}
	if err := s.db.Delete(&transactionLinkRow{}, "upstream_id = ?", upstreamID).Error; err != nil {
		return fmt.Errorf("deleting transaction link %s: %w", upstreamID, err)
	}
	return nil
}

// GetTransactionByUpstreamID fetches one stored entry by upstream id.
func (s *Store) GetTransactionByUpstreamID(upstreamID string) (Entry, error) {
	var assoc transactionLinkRow
	err := s.db.First(&assoc, "upstream_id = ?", upstreamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, fmt.Errorf("transaction %s: %w", upstreamID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("resolving upstream id %s: %w", upstreamID, err)
	}

	var row transactionRow
	if err := s.db.First(&row, "id = ?", assoc.TxnID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entry{}, fmt.Errorf("transaction %s: %w", upstreamID, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("fetching transaction %s: %w", upstreamID, err)
	}
	return s.buildEntry(row, assoc.UpstreamID)
}

// TransactionsBetween returns stored entries with dates in [start, end],
// ordered by date.
func (s *Store) TransactionsBetween(start, end time.Time) ([]Entry, error) {
	var rows []transactionRow
	err := s.db.Where("date >= ? AND date <= ?", start, end).Order("date, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var assoc transactionLinkRow
		upstreamID := ""
		if err := s.db.First(&assoc, "txn_id = ?", row.ID).Error; err == nil {
			upstreamID = assoc.UpstreamID
		}
		e, err := s.buildEntry(row, upstreamID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) buildEntry(row transactionRow, upstreamID string) (Entry, error) {
	txn := model.Transaction{
		ID:         row.ID,
		UpstreamID: upstreamID,
		AccountID:  row.AccountID,
		Date:       row.Date,
		Narration:  row.Narration,
		Amount:     row.Amount,
		Currency:   row.Currency,
		Source:     row.Source,
		Status:     model.TransactionStatus(row.Status),
	}
	if row.Payee != nil {
		txn.Payee = *row.Payee
	}

	var postingRows []postingRow
	if err := s.db.Where("txn_id = ?", row.ID).Order("seq").Find(&postingRows).Error; err != nil {
		return Entry{}, fmt.Errorf("fetching postings for %s: %w", row.ID, err)
	}
	postings := make([]model.Posting, 0, len(postingRows))
	for _, pr := range postingRows {
		postings = append(postings, model.Posting{
			ID:       pr.ID,
			TxnID:    pr.TxnID,
			Account:  pr.Account,
			Amount:   pr.Amount,
			Currency: pr.Currency,
			Status:   model.TransactionStatus(pr.Status),
		})
	}

	var tagRows []tagRow
	if err := s.db.Where("txn_id = ?", row.ID).Order("value").Find(&tagRows).Error; err != nil {
		return Entry{}, fmt.Errorf("fetching tags for %s: %w", row.ID, err)
	}
	tags := make([]string, 0, len(tagRows))
	for _, tr := range tagRows {
		tags = append(tags, tr.Value)
	}

	return Entry{Transaction: txn, Postings: postings, Tags: tags}, nil
}
