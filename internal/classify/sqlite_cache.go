package classify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteCache keeps the most recent classification in the service database,
// so it survives restarts without a redis instance.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteCache creates a cache whose entries expire after ttl (0 = never).
func NewSQLiteCache(db *sql.DB, ttl time.Duration) *SQLiteCache {
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}
}

func (c *SQLiteCache) Put(ctx context.Context, key string, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	now := c.now().UTC()
	var expiresAt *int64
	if c.ttl > 0 {
		exp := now.Add(c.ttl).UnixMilli()
		expiresAt = &exp
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO classification_cache (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, string(data), expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("store classification: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Take(ctx context.Context, key string) (*Result, bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("take classification: %w", err)
	}
	defer tx.Rollback()

	var value string
	var expiresAt sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM classification_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take classification: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM classification_cache WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("take classification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("take classification: %w", err)
	}

	if expiresAt.Valid && c.now().UTC().UnixMilli() > expiresAt.Int64 {
		return nil, false, nil
	}
	var r Result
	if err := json.Unmarshal([]byte(value), &r); err != nil {
		return nil, false, fmt.Errorf("decode classification: %w", err)
	}
	return &r, true, nil
}

// DeleteExpired removes expired entries.
func (c *SQLiteCache) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM classification_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		c.now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired classifications: %w", err)
	}
	return res.RowsAffected()
}
