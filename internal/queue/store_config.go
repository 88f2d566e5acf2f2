package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetConfig returns a persisted override and whether it exists.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig upserts an override.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if _, err := s.exec(ctx,
		`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.timestamp(),
	); err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// AllConfig returns every persisted override.
func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
