// Package sqlite provides a SQLite-backed chat storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	sqlitemigrate "github.com/riftwild/chat/internal/platform/storage/sqlitemigrate"
	"github.com/riftwild/chat/internal/storage"
	"github.com/riftwild/chat/internal/storage/sqlite/migrations"
)

// Store persists chat state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite chat store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMessage inserts one delivered-message row.
func (s *Store) SaveMessage(ctx context.Context, record storage.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
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
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (channel_name, sender_id, content, sent_at)
		 VALUES (?, ?, ?, ?)`,
		channelName,
		senderID,
		record.Content,
		toMillis(record.SentAt),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// DeleteMessage removes rows matching the record's full identity.
func (s *Store) DeleteMessage(ctx context.Context, record storage.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	var (
		result sql.Result
		err    error
	)
	if record.SenderID.Valid {
		result, err = s.sqlDB.ExecContext(
			ctx,
			`DELETE FROM messages
			  WHERE channel_name = ? AND sender_id = ? AND content = ? AND sent_at = ?`,
			record.ChannelName,
			record.SenderID.UUID.String(),
			record.Content,
			toMillis(record.SentAt),
		)
	} else {
		result, err = s.sqlDB.ExecContext(
			ctx,
			`DELETE FROM messages
			  WHERE channel_name = ? AND sender_id IS NULL AND content = ? AND sent_at = ?`,
			record.ChannelName,
			record.Content,
			toMillis(record.SentAt),
		)
	}
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MessagesByChannel returns a channel's rows in [from, to], newest first.
func (s *Store) MessagesByChannel(ctx context.Context, channelName string, from, to time.Time) ([]storage.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT channel_name, sender_id, content, sent_at
		   FROM messages
		  WHERE channel_name = ? AND sent_at >= ? AND sent_at <= ?
		  ORDER BY sent_at DESC`,
		channelName,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesByParticipant returns a participant's rows in [from, to], newest first.
func (s *Store) MessagesByParticipant(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]storage.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT channel_name, sender_id, content, sent_at
		   FROM messages
		  WHERE sender_id = ? AND sent_at >= ? AND sent_at <= ?
		  ORDER BY sent_at DESC`,
		participantID.String(),
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list participant messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]storage.MessageRecord, error) {
	var records []storage.MessageRecord
	for rows.Next() {
		var record storage.MessageRecord
		var senderID sql.NullString
		var sentAt int64
		if err := rows.Scan(&record.ChannelName, &senderID, &record.Content, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if senderID.Valid {
			parsed, err := uuid.Parse(senderID.String)
			if err != nil {
				return nil, fmt.Errorf("parse sender id %q: %w", senderID.String, err)
			}
			record.SenderID = uuid.NullUUID{UUID: parsed, Valid: true}
		}
		record.SentAt = fromMillis(sentAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return records, nil
}

var _ storage.MessageStore = (*Store)(nil)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
