package store

import (
	"context"
	"database/sql"
	"fmt"
)

// userDirectoryStaleAfterMS bounds how long a cached Slack display name is
// trusted before the sync worker refreshes the directory via users.list.
const userDirectoryStaleAfterMS = 24 * 60 * 60 * 1000

// SlackUser is a cached directory entry, filled in bulk from users.list by
// the sync worker. An id missing from the cache is not looked up on its own.
type SlackUser struct {
	UserID      string
	TeamID      sql.NullString
	Username    sql.NullString
	RealName    sql.NullString
	DisplayName sql.NullString
	UpdatedAt   int64
}

// UpsertSlackUser records or refreshes a directory entry.
func (s *Store) UpsertSlackUser(ctx context.Context, u SlackUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slack_users (user_id, team_id, username, real_name, display_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			team_id = excluded.team_id,
			username = excluded.username,
			real_name = excluded.real_name,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, u.UserID, u.TeamID, u.Username, u.RealName, u.DisplayName, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upserting slack user %s: %w", u.UserID, err)
	}
	return nil
}

// SlackUser fetches a directory entry. fresh is false when the row is
// missing or older than userDirectoryStaleAfterMS relative to nowMS — the
// sync worker treats stale the same as missing and re-resolves from Slack.
func (s *Store) SlackUser(ctx context.Context, userID string, nowMS int64) (u SlackUser, fresh bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT user_id, team_id, username, real_name, display_name, updated_at FROM slack_users WHERE user_id = ?
	`, userID).Scan(&u.UserID, &u.TeamID, &u.Username, &u.RealName, &u.DisplayName, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return SlackUser{}, false, nil
	}
	if err != nil {
		return SlackUser{}, false, fmt.Errorf("store: reading slack user %s: %w", userID, err)
	}
	fresh = nowMS-u.UpdatedAt < userDirectoryStaleAfterMS
	return u, fresh, nil
}
