// Package gormkv provides a stash.Backend that stores values in a SQL table
// through gorm. Any gorm dialect works; the CLI uses SQLite.
package gormkv

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoobzio/stash"
)

// Entry maps to the stash_entries table.
type Entry struct {
	Key   string `gorm:"primaryKey"`
	Value []byte
}

// TableName overrides the table name to 'stash_entries'
func (Entry) TableName() string {
	return "stash_entries"
}

// Backend is a gorm-backed key/value store.
type Backend struct {
	db *gorm.DB
}

// New creates a Backend on db. Call Migrate once before use.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Migrate creates or updates the entries table.
func (b *Backend) Migrate(ctx context.Context) error {
	if err := b.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to migrate stash_entries: %w", err)
	}
	return nil
}

// Get returns the value stored for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	// Find rather than First keeps gorm from logging "record not found"
	result := b.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&entry)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, stash.ErrNotFound
	}
	return entry.Value, nil
}

// Set upserts the value for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	entry := Entry{
		Key:   key,
		Value: value,
	}
	result := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&entry)

	if result.Error != nil {
		return fmt.Errorf("failed to write key %s: %w", key, result.Error)
	}
	return nil
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)
