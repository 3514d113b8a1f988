package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetPreference returns the raw string value stored under key. ok is false
// if no row exists.
func (s *Store) GetPreference(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: reading preference %s: %w", key, err)
	}
	return value, true, nil
}

// SetPreference upserts a single preference value.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: setting preference %s: %w", key, err)
	}
	return nil
}

// AllPreferences returns every stored preference as a map, for the
// data-stats / export surface.
func (s *Store) AllPreferences(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return nil, fmt.Errorf("store: listing preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scanning preference: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
