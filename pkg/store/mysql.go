package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vncconn/pkg/db"
)

// GormStore keeps keys in the kv_records table through gorm.
type GormStore struct {
	gdb *gorm.DB
}

// MySQLOpener connects once per operation using cfg.
func MySQLOpener(cfg db.MySQLConfig) Opener {
	return func() (Store, error) {
		gdb, err := db.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("mysql open: %w", err)
		}
		return NewGormStore(gdb), nil
	}
}

// NewGormStore wraps an already migrated gorm handle.
func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{gdb: gdb}
}

func (s *GormStore) Children(path string) ([]string, error) {
	lo, hi := treeBounds(path)
	var keys []string
	err := s.gdb.Model(&db.KVRecord{}).
		Where("`key` >= ? AND `key` < ?", lo, hi).
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("mysql list %s: %w", path, err)
	}
	return childNames(path, keys), nil
}

func (s *GormStore) Get(key string) ([]byte, bool, error) {
	var rec db.KVRecord
	err := s.gdb.Where("`key` = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mysql get %s: %w", key, err)
	}
	return rec.Value, true, nil
}

func (s *GormStore) Put(key string, value []byte) error {
	rec := db.KVRecord{Key: key, Value: value}
	err := s.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("mysql put %s: %w", key, err)
	}
	return nil
}

func (s *GormStore) DeleteTree(path string) error {
	lo, hi := treeBounds(path)
	err := s.gdb.
		Where("`key` = ? OR (`key` >= ? AND `key` < ?)", strings.TrimSuffix(path, "/"), lo, hi).
		Delete(&db.KVRecord{}).Error
	if err != nil {
		return fmt.Errorf("mysql delete %s: %w", path, err)
	}
	return nil
}

// Flush is a no-op: gorm commits each statement.
func (s *GormStore) Flush() error { return nil }

func (s *GormStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
