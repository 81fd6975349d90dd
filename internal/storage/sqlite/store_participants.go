package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// PutParticipant upserts one participant record.
func (s *Store) PutParticipant(ctx context.Context, record storage.ParticipantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if record.ID == uuid.Nil {
		return fmt.Errorf("participant id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO participants (id, display_name, nickname, joined_at, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = excluded.display_name,
		   nickname = excluded.nickname,
		   last_seen = excluded.last_seen`,
		record.ID.String(),
		record.DisplayName,
		record.Nickname,
		toMillis(record.JoinedAt),
		toMillis(record.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("put participant: %w", err)
	}
	return nil
}

// GetParticipant returns one participant record by id.
func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (storage.ParticipantRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ParticipantRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ParticipantRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, display_name, nickname, joined_at, last_seen
		   FROM participants
		  WHERE id = ?`,
		id.String(),
	)

	var record storage.ParticipantRecord
	var rawID string
	var joinedAt, lastSeen int64
	if err := row.Scan(&rawID, &record.DisplayName, &record.Nickname, &joinedAt, &lastSeen); err != nil {
		if isNoRows(err) {
			return storage.ParticipantRecord{}, storage.ErrNotFound
		}
		return storage.ParticipantRecord{}, fmt.Errorf("get participant: %w", err)
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return storage.ParticipantRecord{}, fmt.Errorf("parse participant id %q: %w", rawID, err)
	}
	record.ID = parsed
	record.JoinedAt = fromMillis(joinedAt)
	record.LastSeen = fromMillis(lastSeen)
	return record, nil
}

// PutMute upserts a participant's mute expiry.
func (s *Store) PutMute(ctx context.Context, record storage.MuteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO mutes (participant_id, until) VALUES (?, ?)
		 ON CONFLICT (participant_id) DO UPDATE SET until = excluded.until`,
		record.ParticipantID.String(),
		toMillis(record.Until),
	)
	if err != nil {
		return fmt.Errorf("put mute: %w", err)
	}
	return nil
}

// GetMute returns a participant's mute record.
func (s *Store) GetMute(ctx context.Context, participantID uuid.UUID) (storage.MuteRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MuteRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MuteRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT until FROM mutes WHERE participant_id = ?`,
		participantID.String(),
	)
	var until int64
	if err := row.Scan(&until); err != nil {
		if isNoRows(err) {
			return storage.MuteRecord{}, storage.ErrNotFound
		}
		return storage.MuteRecord{}, fmt.Errorf("get mute: %w", err)
	}
	return storage.MuteRecord{ParticipantID: participantID, Until: fromMillis(until)}, nil
}

// DeleteMute clears a participant's mute record.
func (s *Store) DeleteMute(ctx context.Context, participantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM mutes WHERE participant_id = ?`,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	return nil
}

// PutIgnore records one directed ignore pair, idempotently.
func (s *Store) PutIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO ignores (owner_id, ignored_id) VALUES (?, ?)`,
		ownerID.String(),
		ignoredID.String(),
	); err != nil {
		return fmt.Errorf("put ignore: %w", err)
	}
	return nil
}

// DeleteIgnore removes one directed ignore pair.
func (s *Store) DeleteIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM ignores WHERE owner_id = ? AND ignored_id = ?`,
		ownerID.String(),
		ignoredID.String(),
	); err != nil {
		return fmt.Errorf("delete ignore: %w", err)
	}
	return nil
}

// ListIgnores returns the ids a participant ignores.
func (s *Store) ListIgnores(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT ignored_id FROM ignores WHERE owner_id = ? ORDER BY ignored_id`,
		ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list ignores: %w", err)
	}
	defer rows.Close()

	var ignored []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan ignore: %w", err)
		}
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse ignored id %q: %w", raw, err)
		}
		ignored = append(ignored, parsed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ignores: %w", err)
	}
	return ignored, nil
}

var _ storage.ParticipantStore = (*Store)(nil)
