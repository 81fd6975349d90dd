package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// PutChannel upserts one channel definition.
func (s *Store) PutChannel(ctx context.Context, record storage.ChannelRecord) error {
	if s == nil || s.pool == nil {
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

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO channels (id, name, kind, enabled) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   kind = EXCLUDED.kind,
		   enabled = EXCLUDED.enabled`,
		id,
		name,
		record.Kind,
		record.Enabled,
	)
	if err != nil {
		return fmt.Errorf("put channel: %w", err)
	}
	return nil
}

// GetChannelByName returns one channel definition by name.
func (s *Store) GetChannelByName(ctx context.Context, name string) (storage.ChannelRecord, error) {
	if s == nil || s.pool == nil {
		return storage.ChannelRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.pool.QueryRow(
		ctx,
		`SELECT id, name, kind, enabled FROM channels WHERE name = $1`,
		name,
	)
	var record storage.ChannelRecord
	if err := row.Scan(&record.ID, &record.Name, &record.Kind, &record.Enabled); err != nil {
		if isNoRows(err) {
			return storage.ChannelRecord{}, storage.ErrNotFound
		}
		return storage.ChannelRecord{}, fmt.Errorf("get channel: %w", err)
	}
	return record, nil
}

// ListChannels returns all channel definitions ordered by name.
func (s *Store) ListChannels(ctx context.Context) ([]storage.ChannelRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.pool.Query(
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
		if err := rows.Scan(&record.ID, &record.Name, &record.Kind, &record.Enabled); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return records, nil
}

// PutMembership records one channel membership pair, idempotently.
func (s *Store) PutMembership(ctx context.Context, channelID string, participantID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO channel_members (channel_id, participant_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		channelID,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("put membership: %w", err)
	}
	return nil
}

// DeleteMembership removes one channel membership pair.
func (s *Store) DeleteMembership(ctx context.Context, channelID string, participantID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND participant_id = $2`,
		channelID,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// DeleteMemberships removes all of a participant's membership pairs.
func (s *Store) DeleteMemberships(ctx context.Context, participantID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`DELETE FROM channel_members WHERE participant_id = $1`,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	return nil
}

// ListMemberships returns the channel ids a participant belongs to.
func (s *Store) ListMemberships(ctx context.Context, participantID uuid.UUID) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT channel_id FROM channel_members WHERE participant_id = $1 ORDER BY channel_id`,
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
