// Package store owns all persisted state: links, accounts, transactions,
// postings, and tags, in a single sqlite database.
package store

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps a gorm handle over the clerk sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. Sqlite serializes concurrent writers on its own; callers running
// several link syncs in parallel need no extra coordination.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&linkRow{}, &accountRow{}, &transactionRow{}, &postingRow{}, &tagRow{}, &transactionLinkRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Transact runs fn inside one database transaction. All writes made through
// the Store passed to fn commit together or not at all, which is how a sync
// page's mutations and its cursor advance stay atomic.
func (s *Store) Transact(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
