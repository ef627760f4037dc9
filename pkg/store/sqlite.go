package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteTimeout = 3 * time.Second

// SQLiteStore keeps keys in a single kv table of a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteOpener returns an Opener that opens the database at path for each
// operation, creating the file and schema on first use.
func SQLiteOpener(path string) Opener {
	return func() (Store, error) {
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// OpenSQLite opens (or creates) the sqlite file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv(key TEXT PRIMARY KEY, value BLOB NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// treeBounds returns [lo, hi) covering every key strictly below path.
// '0' is the byte after '/', so hi excludes siblings such as "path0".
func treeBounds(path string) (string, string) {
	p := strings.TrimSuffix(path, "/")
	return p + "/", p + "0"
}

func (s *SQLiteStore) Children(path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	lo, hi := treeBounds(path)
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE key >= ? AND key < ?`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite list %s: %w", path, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list %s: %w", path, err)
	}
	return childNames(path, keys), nil
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Put(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTree(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	lo, hi := treeBounds(path)
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? OR (key >= ? AND key < ?)`, strings.TrimSuffix(path, "/"), lo, hi)
	if err != nil {
		return fmt.Errorf("sqlite delete %s: %w", path, err)
	}
	return nil
}

// Flush is a no-op: every statement commits on its own.
func (s *SQLiteStore) Flush() error { return nil }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
