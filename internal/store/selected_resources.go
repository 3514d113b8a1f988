package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SlackChannel is a channel or DM the user has chosen to sync, or that was
// discovered during a channel-list refresh and is pending selection.
type SlackChannel struct {
	ChannelID   string
	ChannelName string
	TeamID      sql.NullString
	IsPrivate   bool
	IsIM        bool
	IsMPIM      bool
	MemberCount sql.NullInt64
	Purpose     sql.NullString
	Enabled     bool
}

// UpsertSlackChannel inserts or refreshes channel metadata without touching
// the caller's enabled flag unless explicitly set via SetSlackChannelEnabled.
func (s *Store) UpsertSlackChannel(ctx context.Context, c SlackChannel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slack_selected_channels
			(channel_id, channel_name, team_id, is_private, is_im, is_mpim, member_count, purpose, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			team_id = excluded.team_id,
			is_private = excluded.is_private,
			is_im = excluded.is_im,
			is_mpim = excluded.is_mpim,
			member_count = excluded.member_count,
			purpose = excluded.purpose
	`, c.ChannelID, c.ChannelName, c.TeamID, c.IsPrivate, c.IsIM, c.IsMPIM, c.MemberCount, c.Purpose, c.Enabled)
	if err != nil {
		return fmt.Errorf("store: upserting slack channel %s: %w", c.ChannelID, err)
	}
	return nil
}

// SetSlackChannelEnabled flips whether a channel is actively synced.
func (s *Store) SetSlackChannelEnabled(ctx context.Context, channelID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE slack_selected_channels SET enabled = ? WHERE channel_id = ?`, enabled, channelID)
	if err != nil {
		return fmt.Errorf("store: setting slack channel %s enabled=%v: %w", channelID, enabled, err)
	}
	return nil
}

// EnabledSlackChannels returns every channel the user has opted into syncing.
func (s *Store) EnabledSlackChannels(ctx context.Context) ([]SlackChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, channel_name, team_id, is_private, is_im, is_mpim, member_count, purpose, enabled
		FROM slack_selected_channels WHERE enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("store: listing enabled slack channels: %w", err)
	}
	defer rows.Close()

	var out []SlackChannel
	for rows.Next() {
		var c SlackChannel
		if err := rows.Scan(&c.ChannelID, &c.ChannelName, &c.TeamID, &c.IsPrivate, &c.IsIM, &c.IsMPIM, &c.MemberCount, &c.Purpose, &c.Enabled); err != nil {
			return nil, fmt.Errorf("store: scanning slack channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllSlackChannels returns every known channel regardless of enabled state,
// for the channel-picker UI.
func (s *Store) AllSlackChannels(ctx context.Context) ([]SlackChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, channel_name, team_id, is_private, is_im, is_mpim, member_count, purpose, enabled
		FROM slack_selected_channels ORDER BY channel_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: listing slack channels: %w", err)
	}
	defer rows.Close()

	var out []SlackChannel
	for rows.Next() {
		var c SlackChannel
		if err := rows.Scan(&c.ChannelID, &c.ChannelName, &c.TeamID, &c.IsPrivate, &c.IsIM, &c.IsMPIM, &c.MemberCount, &c.Purpose, &c.Enabled); err != nil {
			return nil, fmt.Errorf("store: scanning slack channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
