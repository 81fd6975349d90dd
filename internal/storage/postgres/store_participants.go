package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// PutParticipant upserts one participant record.
func (s *Store) PutParticipant(ctx context.Context, record storage.ParticipantRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	if record.ID == uuid.Nil {
		return fmt.Errorf("participant id is required")
	}

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO participants (id, display_name, nickname, joined_at, last_seen)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   nickname = EXCLUDED.nickname,
		   last_seen = EXCLUDED.last_seen`,
		record.ID.String(),
		record.DisplayName,
		record.Nickname,
		record.JoinedAt.UTC(),
		record.LastSeen.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put participant: %w", err)
	}
	return nil
}

// GetParticipant returns one participant record by id.
func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (storage.ParticipantRecord, error) {
	if s == nil || s.pool == nil {
		return storage.ParticipantRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.pool.QueryRow(
		ctx,
		`SELECT id, display_name, nickname, joined_at, last_seen
		   FROM participants
		  WHERE id = $1`,
		id.String(),
	)
	var record storage.ParticipantRecord
	if err := row.Scan(&record.ID, &record.DisplayName, &record.Nickname, &record.JoinedAt, &record.LastSeen); err != nil {
		if isNoRows(err) {
			return storage.ParticipantRecord{}, storage.ErrNotFound
		}
		return storage.ParticipantRecord{}, fmt.Errorf("get participant: %w", err)
	}
	record.JoinedAt = record.JoinedAt.UTC()
	record.LastSeen = record.LastSeen.UTC()
	return record, nil
}

// PutMute upserts a participant's mute expiry.
func (s *Store) PutMute(ctx context.Context, record storage.MuteRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO mutes (participant_id, until) VALUES ($1, $2)
		 ON CONFLICT (participant_id) DO UPDATE SET until = EXCLUDED.until`,
		record.ParticipantID.String(),
		record.Until.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put mute: %w", err)
	}
	return nil
}

// GetMute returns a participant's mute record.
func (s *Store) GetMute(ctx context.Context, participantID uuid.UUID) (storage.MuteRecord, error) {
	if s == nil || s.pool == nil {
		return storage.MuteRecord{}, fmt.Errorf("storage is not configured")
	}

	record := storage.MuteRecord{ParticipantID: participantID}
	row := s.pool.QueryRow(
		ctx,
		`SELECT until FROM mutes WHERE participant_id = $1`,
		participantID.String(),
	)
	if err := row.Scan(&record.Until); err != nil {
		if isNoRows(err) {
			return storage.MuteRecord{}, storage.ErrNotFound
		}
		return storage.MuteRecord{}, fmt.Errorf("get mute: %w", err)
	}
	record.Until = record.Until.UTC()
	return record, nil
}

// DeleteMute clears a participant's mute record.
func (s *Store) DeleteMute(ctx context.Context, participantID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`DELETE FROM mutes WHERE participant_id = $1`,
		participantID.String(),
	); err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	return nil
}

// PutIgnore records one directed ignore pair, idempotently.
func (s *Store) PutIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO ignores (owner_id, ignored_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		ownerID.String(),
		ignoredID.String(),
	); err != nil {
		return fmt.Errorf("put ignore: %w", err)
	}
	return nil
}

// DeleteIgnore removes one directed ignore pair.
func (s *Store) DeleteIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.pool.Exec(
		ctx,
		`DELETE FROM ignores WHERE owner_id = $1 AND ignored_id = $2`,
		ownerID.String(),
		ignoredID.String(),
	); err != nil {
		return fmt.Errorf("delete ignore: %w", err)
	}
	return nil
}

// ListIgnores returns the ids a participant ignores.
func (s *Store) ListIgnores(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT ignored_id FROM ignores WHERE owner_id = $1 ORDER BY ignored_id`,
		ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list ignores: %w", err)
	}
	defer rows.Close()

	var ignored []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ignore: %w", err)
		}
		ignored = append(ignored, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ignores: %w", err)
	}
	return ignored, nil
}

var _ storage.ParticipantStore = (*Store)(nil)
