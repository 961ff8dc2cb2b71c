package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteKV keeps session keys in a SQLite file so that a new process sees what the
// previous one stored, the way browser local storage outlives a page reload.
type SQLiteKV struct {
	db *sql.DB
}

var _ KV = &SQLiteKV{}

// SQLiteDSNForFile returns a DSN for an on-disk session file.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite token store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteKV(dsn string) (*SQLiteKV, error) {
	if dsn == "" {
		return nil, errors.New("sqlite token store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	s := &SQLiteKV{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteKV) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_ms INTEGER NOT NULL
		)`)
	return errors.Wrap(err, "sqlite token store: migrate")
}

func (s *SQLiteKV) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteKV) Get(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("sqlite token store: db is nil")
	}
	var value string
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "sqlite token store: get %s", key)
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite token store: db is nil")
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO session_kv (key, value, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ms = excluded.updated_ms`,
		key, value, time.Now().UnixMilli())
	return errors.Wrapf(err, "sqlite token store: set %s", key)
}

func (s *SQLiteKV) Delete(keys ...string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite token store: db is nil")
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return errors.Wrap(err, "sqlite token store: begin")
	}
	for _, k := range keys {
		if _, err := tx.Exec(`DELETE FROM session_kv WHERE key = ?`, k); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "sqlite token store: delete %s", k)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite token store: commit")
}
