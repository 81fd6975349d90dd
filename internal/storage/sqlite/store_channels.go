package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// PutChannel upserts one channel definition.
func (s *Store) PutChannel(ctx context.Context, record storage.ChannelRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(record.ID)
	name := strings.TrimSpace(record.Name)
	if id == "" {
		return fmt.Errorf("channel id is required")
	}
	if name == "" {
		return fmt.Errorf("channel name is required")
	}

	enabled := 0
	if record.Enabled {
		enabled = 1
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO channels (id, name, kind, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   kind = excluded.kind,
		   enabled = excluded.enabled`,
		id,
		name,
		record.Kind,
		enabled,
	)
	if err != nil {
		return fmt.Errorf("put channel: %w", err)
	}
	return nil
}

// GetChannelByName returns one channel definition by name.
func (s *Store) GetChannelByName(ctx context.Context, name string) (storage.ChannelRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChannelRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChannelRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, kind, enabled FROM channels WHERE name = ?`,
		name,
	)
	var record storage.ChannelRecord
	var enabled int
	if err := row.Scan(&record.ID, &record.Name, &record.Kind, &enabled); err != nil {
		if isNoRows(err) {
			return storage.ChannelRecord{}, storage.ErrNotFound
		}
		return storage.ChannelRecord{}, fmt.Errorf("get channel: %w", err)
	}
	record.Enabled = enabled != 0
	return record, nil
}

// ListChannels returns all channel definitions ordered by name.
func (s *Store) ListChannels(ctx context.Context) ([]storage.ChannelRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, name, kind, enabled FROM channels ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var records []storage.ChannelRecord
	for rows.Next() {
		var record storage.ChannelRecord
		var enabled int
		if err := rows.Scan(&record.ID, &record.Name, &record.Kind, &enabled); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		record.Enabled = enabled != 0
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return records, nil
}

// PutMembership records one channel membership pair, idempotently.
func (s *Store) PutMembership(ctx context.Context, channelID string, participantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO channel_members (channel_id, participant_id) VALUES (?, ?)`,
		channelID,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("put membership: %w", err)
	}
	return nil
}

// DeleteMembership removes one channel membership pair.
func (s *Store) DeleteMembership(ctx context.Context, channelID string, participantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM channel_members WHERE channel_id = ? AND participant_id = ?`,
		channelID,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// DeleteMemberships removes all of a participant's membership pairs.
func (s *Store) DeleteMemberships(ctx context.Context, participantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM channel_members WHERE participant_id = ?`,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	return nil
}

// ListMemberships returns the channel ids a participant belongs to.
func (s *Store) ListMemberships(ctx context.Context, participantID uuid.UUID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT channel_id FROM channel_members WHERE participant_id = ? ORDER BY channel_id`,
		participantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var channelIDs []string
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		channelIDs = append(channelIDs, channelID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return channelIDs, nil
}

var _ storage.ChannelStore = (*Store)(nil)
