package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/allancalix/clerk/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

func toLinkRow(l model.Link) linkRow {
	row := linkRow{
		ID:          l.ItemID,
		Alias:       l.Alias,
		AccessToken: l.AccessToken,
		LinkState:   string(l.State),
	}
	if l.SyncCursor != "" {
		row.SyncCursor = &l.SyncCursor
	}
	if l.InstitutionID != "" {
		row.Institution = &l.InstitutionID
	}
	return row
}

func fromLinkRow(row linkRow) model.Link {
	l := model.Link{
		ItemID:      row.ID,
		Alias:       row.Alias,
		AccessToken: row.AccessToken,
		State:       model.LinkState(row.LinkState),
	}
	if row.SyncCursor != nil {
		l.SyncCursor = *row.SyncCursor
	}
	if row.Institution != nil {
		l.InstitutionID = *row.Institution
	}
	return l
}

// UpsertLink inserts or replaces a link row keyed by item id.
func (s *Store) UpsertLink(link model.Link) error {
	row := toLinkRow(link)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting link %s: %w", link.ItemID, err)
	}
	return nil
}

// GetLink fetches one link by item id.
func (s *Store) GetLink(itemID string) (model.Link, error) {
	var row linkRow
	err := s.db.First(&row, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Link{}, fmt.Errorf("link %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return model.Link{}, fmt.Errorf("fetching link %s: %w", itemID, err)
	}
	return fromLinkRow(row), nil
}

// ListLinks returns all links.
func (s *Store) ListLinks() ([]model.Link, error) {
	var rows []linkRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	links := make([]model.Link, 0, len(rows))
	for _, row := range rows {
		links = append(links, fromLinkRow(row))
	}
	return links, nil
}

// SetLinkState updates only the lifecycle state of a link.
func (s *Store) SetLinkState(itemID string, state model.LinkState) error {
	err := s.db.Model(&linkRow{}).Where("id = ?", itemID).
		Update("link_state", string(state)).Error
	if err != nil {
		return fmt.Errorf("updating link %s state: %w", itemID, err)
	}
	return nil
}

// DeleteLink removes a link, its accounts, and its upstream-id associations.
// Transactions, postings, and tags are retained; their association rows are
// gone, so a later sync of a re-created link starts fresh.
func (s *Store) DeleteLink(itemID string) error {
	if err := s.db.Delete(&accountRow{}, "item_id = ?", itemID).Error; err != nil {
		return fmt.Errorf("deleting accounts for link %s: %w", itemID, err)
	}
	if err := s.db.Delete(&transactionLinkRow{}, "item_id = ?", itemID).Error; err != nil {
		return fmt.Errorf("deleting transaction links for link %s: %w", itemID, err)
	}
	if err := s.db.Delete(&linkRow{}, "id = ?", itemID).Error; err != nil {
		return fmt.Errorf("deleting link %s: %w", itemID, err)
	}
	return nil
}

// GetCursor returns the persisted sync cursor for a link, empty if the link
// has never completed a sync page.
func (s *Store) GetCursor(itemID string) (string, error) {
	link, err := s.GetLink(itemID)
	if err != nil {
		return "", err
	}
	return link.SyncCursor, nil
}

// SetCursor advances the persisted sync cursor for a link. Callers invoke it
// inside Transact alongside the page's writes.
func (s *Store) SetCursor(itemID, cursor string) error {
	err := s.db.Model(&linkRow{}).Where("id = ?", itemID).
		Update("sync_cursor", cursor).Error
	if err != nil {
		return fmt.Errorf("updating cursor for link %s: %w", itemID, err)
	}
	return nil
}
