package storage

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// metadataRow and keyRow back the SQL metadata/keys tables. Deployments that
// already run relational infrastructure for everything else can point the
// keys/metadata half of the Store at Postgres by swapping the dialector
// passed to NewSQLMetadataStore for gorm.io/driver/postgres.Open(dsn) — the
// gorm.Dialector interface makes that a one-line change, so this package
// does not hard-code either driver.
type metadataRow struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

type keyRow struct {
	NodeID    string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

// SQLMetadataStore decorates an inner Store, replacing its metadata/keys
// implementation with gorm-backed tables while delegating blocks, headers,
// checkpoints, and schema version to the inner store. This mirrors the
// teacher's habit of mixing a fast embedded KV for hot-path data (blocks)
// with a relational store for the slower-moving bookkeeping tables.
type SQLMetadataStore struct {
	Store
	db *gorm.DB
}

// NewSQLiteMetadataStore opens a local SQLite-backed metadata/keys store via
// the cgo-free glebarez/sqlite driver, decorating inner for everything else.
func NewSQLiteMetadataStore(inner Store, path string) (*SQLMetadataStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return newSQLMetadataStore(inner, db)
}

// NewSQLMetadataStore builds a metadata/keys store over an arbitrary gorm
// dialector (e.g. gorm.io/driver/postgres.Open(dsn) in production).
func NewSQLMetadataStore(inner Store, dialector gorm.Dialector) (*SQLMetadataStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return newSQLMetadataStore(inner, db)
}

func newSQLMetadataStore(inner Store, db *gorm.DB) (*SQLMetadataStore, error) {
	if err := db.AutoMigrate(&metadataRow{}, &keyRow{}); err != nil {
		return nil, err
	}
	return &SQLMetadataStore{Store: inner, db: db}, nil
}

func (s *SQLMetadataStore) PutKey(_ context.Context, nodeID string, wrappedKeyJSON []byte) error {
	row := keyRow{NodeID: nodeID, Value: wrappedKeyJSON, UpdatedAt: time.Now().UTC()}
	return s.db.Save(&row).Error
}

func (s *SQLMetadataStore) GetKey(_ context.Context, nodeID string) ([]byte, error) {
	var row keyRow
	if err := s.db.First(&row, "node_id = ?", nodeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.Value, nil
}

func (s *SQLMetadataStore) PutMetadata(_ context.Context, key string, value []byte) error {
	row := metadataRow{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.Save(&row).Error
}

func (s *SQLMetadataStore) GetMetadata(_ context.Context, key string) ([]byte, error) {
	var row metadataRow
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.Value, nil
}

func (s *SQLMetadataStore) PutMetadataBatch(_ context.Context, items []KeyValue) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, kv := range items {
			row := metadataRow{Key: kv.Key, Value: kv.Value, UpdatedAt: now}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLMetadataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err == nil {
		sqlDB.Close()
	}
	return s.Store.Close()
}

var _ Store = (*SQLMetadataStore)(nil)
