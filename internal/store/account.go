package store

import (
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/allancalix/clerk/internal/model"
)

// UpsertAccount inserts or replaces an upstream account row.
func (s *Store) UpsertAccount(account model.Account) error {
	row := accountRow{
		ID:     account.ID,
		ItemID: account.ItemID,
		Name:   account.Name,
		Type:   string(account.Type),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", account.ID, err)
	}
	return nil
}

// ListAccounts returns all known upstream accounts.
func (s *Store) ListAccounts() ([]model.Account, error) {
	var rows []accountRow
	if err := s.db.Order("item_id, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return fromAccountRows(rows), nil
}

// AccountsByLink returns the accounts owned by one link.
func (s *Store) AccountsByLink(itemID string) ([]model.Account, error) {
	var rows []accountRow
	if err := s.db.Where("item_id = ?", itemID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing accounts for link %s: %w", itemID, err)
	}
	return fromAccountRows(rows), nil
}

func fromAccountRows(rows []accountRow) []model.Account {
	accounts := make([]model.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, model.Account{
			ID:     row.ID,
			ItemID: row.ItemID,
			Name:   row.Name,
			Type:   model.AccountType(row.Type),
		})
	}
	return accounts
}
