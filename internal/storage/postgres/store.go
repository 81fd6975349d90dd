// Package postgres provides a PostgreSQL-backed chat storage implementation
// over pgx. It mirrors the SQLite store's contracts with the dialect's
// native types: timestamptz instants and uuid ids bound as text.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwild/chat/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
    channel_name TEXT NOT NULL,
    sender_id UUID,
    content TEXT NOT NULL,
    sent_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_sent_at
    ON messages (channel_name, sent_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender_sent_at
    ON messages (sender_id, sent_at);
CREATE TABLE IF NOT EXISTS participants (
    id UUID PRIMARY KEY,
    display_name TEXT NOT NULL,
    nickname TEXT NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL,
    last_seen TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS mutes (
    participant_id UUID PRIMARY KEY,
    until TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS ignores (
    owner_id UUID NOT NULL,
    ignored_id UUID NOT NULL,
    PRIMARY KEY (owner_id, ignored_id)
);
CREATE TABLE IF NOT EXISTS channels (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS channel_members (
    channel_id TEXT NOT NULL,
    participant_id UUID NOT NULL,
    PRIMARY KEY (channel_id, participant_id)
);
CREATE INDEX IF NOT EXISTS idx_channel_members_participant
    ON channel_members (participant_id);
`

// Store persists chat state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a PostgreSQL chat store and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// SaveMessage inserts one delivered-message row.
func (s *Store) SaveMessage(ctx context.Context, record storage.MessageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	channelName := strings.TrimSpace(record.ChannelName)
	if channelName == "" {
		return fmt.Errorf("channel name is required")
	}

	var senderID any
	if record.SenderID.Valid {
		senderID = record.SenderID.UUID.String()
	}
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO messages (channel_name, sender_id, content, sent_at)
		 VALUES ($1, $2, $3, $4)`,
		channelName,
		senderID,
		record.Content,
		record.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// DeleteMessage removes rows matching the record's full identity.
func (s *Store) DeleteMessage(ctx context.Context, record storage.MessageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}

	var (
		tag pgconn.CommandTag
		err error
	)
	if record.SenderID.Valid {
		tag, err = s.pool.Exec(
			ctx,
			`DELETE FROM messages
			  WHERE channel_name = $1 AND sender_id = $2 AND content = $3 AND sent_at = $4`,
			record.ChannelName,
			record.SenderID.UUID.String(),
			record.Content,
			record.SentAt.UTC(),
		)
	} else {
		tag, err = s.pool.Exec(
			ctx,
			`DELETE FROM messages
			  WHERE channel_name = $1 AND sender_id IS NULL AND content = $2 AND sent_at = $3`,
			record.ChannelName,
			record.Content,
			record.SentAt.UTC(),
		)
	}
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MessagesByChannel returns a channel's rows in [from, to], newest first.
func (s *Store) MessagesByChannel(ctx context.Context, channelName string, from, to time.Time) ([]storage.MessageRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT channel_name, sender_id, content, sent_at
		   FROM messages
		  WHERE channel_name = $1 AND sent_at >= $2 AND sent_at <= $3
		  ORDER BY sent_at DESC`,
		channelName,
		from.UTC(),
		to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesByParticipant returns a participant's rows in [from, to], newest first.
func (s *Store) MessagesByParticipant(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]storage.MessageRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT channel_name, sender_id, content, sent_at
		   FROM messages
		  WHERE sender_id = $1 AND sent_at >= $2 AND sent_at <= $3
		  ORDER BY sent_at DESC`,
		participantID.String(),
		from.UTC(),
		to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list participant messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]storage.MessageRecord, error) {
	var records []storage.MessageRecord
	for rows.Next() {
		var record storage.MessageRecord
		var senderID *uuid.UUID
		var sentAt time.Time
		if err := rows.Scan(&record.ChannelName, &senderID, &record.Content, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if senderID != nil {
			record.SenderID = uuid.NullUUID{UUID: *senderID, Valid: true}
		}
		record.SentAt = sentAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return records, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ storage.MessageStore = (*Store)(nil)
