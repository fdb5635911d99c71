package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (hashes, sets, zsets)
// 1 - Added score index on zsets for range reads
const currentSchemaVersion = 1

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite stores hashes, sets and sorted sets in a SQLite database.
type SQLite struct {
	db *sql.DB // nil for views bound to a transaction
	q  querier
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// Pass ":memory:" for a private in-memory database.
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// lives and dies with its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, q: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the (key, score, member) index used by ZRangeByScore.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_zsets_score
		ON zsets(key, score, member)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// inTx runs fn in a transaction unless s is already bound to one.
func (s *SQLite) inTx(ctx context.Context, fn func(q querier) error) error {
	if s.db == nil {
		return fn(s.q)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Atomically runs fn inside a single transaction. SQLite serializes
// writers, so the watch list needs no separate handling.
func (s *SQLite) Atomically(ctx context.Context, _ []string, fn func(Store) error) error {
	if s.db == nil {
		return wrap("BEGIN", "", ErrNotAtomic)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("BEGIN", "", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&SQLite{q: tx}); err != nil {
		return err
	}
	return wrap("COMMIT", "", tx.Commit())
}

// HGetAll implements Store.
func (s *SQLite) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT field, value FROM hashes WHERE key = ?`, key)
	if err != nil {
		return nil, wrap("HGETALL", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, wrap("HGETALL", key, err)
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("HGETALL", key, err)
	}
	return out, nil
}

// HSet implements Store. All fields are written in one transaction.
func (s *SQLite) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(q querier) error {
		for field, value := range fields {
			_, err := q.ExecContext(ctx, `
				INSERT INTO hashes (key, field, value) VALUES (?, ?, ?)
				ON CONFLICT(key, field) DO UPDATE SET value = excluded.value
			`, key, field, value)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("HSET", key, err)
}

// SAdd implements Store.
func (s *SQLite) SAdd(ctx context.Context, key, member string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sets (key, member) VALUES (?, ?)
		ON CONFLICT(key, member) DO NOTHING
	`, key, member)
	return wrap("SADD", key, err)
}

// SRem implements Store.
func (s *SQLite) SRem(ctx context.Context, key, member string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM sets WHERE key = ? AND member = ?`, key, member)
	return wrap("SREM", key, err)
}

// SCard implements Store.
func (s *SQLite) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sets WHERE key = ?`, key).Scan(&n)
	return n, wrap("SCARD", key, err)
}

// SIsMember implements Store.
func (s *SQLite) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var ok bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sets WHERE key = ? AND member = ?)`, key, member).Scan(&ok)
	return ok, wrap("SISMEMBER", key, err)
}

// SMembers implements Store.
func (s *SQLite) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.queryStrings(ctx,
		`SELECT member FROM sets WHERE key = ? ORDER BY member COLLATE BINARY ASC`, key)
	return members, wrap("SMEMBERS", key, err)
}

// ZAdd implements Store.
func (s *SQLite) ZAdd(ctx context.Context, key, member string, score float64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score
	`, key, member, score)
	return wrap("ZADD", key, err)
}

// ZRem implements Store.
func (s *SQLite) ZRem(ctx context.Context, key, member string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM zsets WHERE key = ? AND member = ?`, key, member)
	return wrap("ZREM", key, err)
}

// ZCard implements Store.
func (s *SQLite) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM zsets WHERE key = ?`, key).Scan(&n)
	return n, wrap("ZCARD", key, err)
}

// ZScore implements Store.
func (s *SQLite) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var score float64
	err := s.q.QueryRowContext(ctx,
		`SELECT score FROM zsets WHERE key = ? AND member = ?`, key, member).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("ZSCORE", key, err)
	}
	return score, true, nil
}

// ZRangeByScore implements Store.
func (s *SQLite) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := s.queryStrings(ctx, `
		SELECT member FROM zsets
		WHERE key = ? AND score >= ? AND score <= ?
		ORDER BY score ASC, member COLLATE BINARY ASC
	`, key, min, max)
	return members, wrap("ZRANGEBYSCORE", key, err)
}

// Keys implements Store using SQLite GLOB matching.
func (s *SQLite) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.queryStrings(ctx, `
		SELECT key FROM hashes WHERE key GLOB ?1
		UNION SELECT key FROM sets WHERE key GLOB ?1
		UNION SELECT key FROM zsets WHERE key GLOB ?1
	`, pattern)
	if err != nil {
		return nil, wrap("KEYS", pattern, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Type implements Store.
func (s *SQLite) Type(ctx context.Context, key string) (KeyType, error) {
	var t string
	err := s.q.QueryRowContext(ctx, `
		SELECT CASE
			WHEN EXISTS(SELECT 1 FROM hashes WHERE key = ?1) THEN 'hash'
			WHEN EXISTS(SELECT 1 FROM sets WHERE key = ?1) THEN 'set'
			WHEN EXISTS(SELECT 1 FROM zsets WHERE key = ?1) THEN 'zset'
			ELSE 'none'
		END
	`, key).Scan(&t)
	if err != nil {
		return TypeNone, wrap("TYPE", key, err)
	}
	return KeyType(t), nil
}

// Exists implements Store.
func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	t, err := s.Type(ctx, key)
	if err != nil {
		return false, wrap("EXISTS", key, err)
	}
	return t != TypeNone, nil
}

// Del implements Store.
func (s *SQLite) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(q querier) error {
		for _, key := range keys {
			for _, table := range []string{"hashes", "sets", "zsets"} {
				if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE key = ?", key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return wrap("DEL", keys[0], err)
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
