package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/rules"
)

// SQLiteRemote persists each rule as a JSON document keyed by (user_id, rule_id).
type SQLiteRemote struct {
	db *sql.DB
}

// NewSQLiteRemote creates a remote on an open database with the schedule_rules table.
func NewSQLiteRemote(db *sql.DB) *SQLiteRemote {
	return &SQLiteRemote{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteRemote) Load(ctx context.Context, userID string) ([]rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, payload FROM schedule_rules
		WHERE user_id = ?
		ORDER BY position, rule_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var r rules.Rule
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			log.Warn().Err(err).Str("rule", id).Msg("Skipping undecodable rule document")
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteRemote) Add(ctx context.Context, userID string, r rules.Rule) error {
	return s.insert(ctx, s.db, userID, r, -1)
}

func (s *SQLiteRemote) AddAll(ctx context.Context, userID string, rs []rules.Rule) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rs {
			if err := s.insert(ctx, tx, userID, r, -1); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteRemote) Remove(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_rules WHERE user_id = ? AND rule_id = ?`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *SQLiteRemote) Update(ctx context.Context, userID string, r rules.Rule) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedule_rules SET payload = ?, updated_at = ?
		WHERE user_id = ? AND rule_id = ?
	`, string(payload), time.Now().UTC().Unix(), userID, r.ID)
	if err != nil {
		return err
	}
	return requireRow(res, r.ID)
}

func (s *SQLiteRemote) ReplaceAll(ctx context.Context, userID string, rs []rules.Rule) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_rules WHERE user_id = ?`, userID); err != nil {
			return err
		}
		for i, r := range rs {
			if err := s.insert(ctx, tx, userID, r, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// insert appends r after the user's last rule when position < 0.
func (s *SQLiteRemote) insert(ctx context.Context, ex execer, userID string, r rules.Rule, position int) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}
	now := time.Now().UTC().Unix()

	if position < 0 {
		_, err = ex.ExecContext(ctx, `
			INSERT INTO schedule_rules (user_id, rule_id, payload, position, updated_at)
			VALUES (?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM schedule_rules WHERE user_id = ?), ?)
		`, userID, r.ID, string(payload), userID, now)
	} else {
		_, err = ex.ExecContext(ctx, `
			INSERT INTO schedule_rules (user_id, rule_id, payload, position, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, userID, r.ID, string(payload), position, now)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return err
}

func (s *SQLiteRemote) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
