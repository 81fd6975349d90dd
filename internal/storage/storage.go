// Package storage defines persistence contracts for chat service state.
//
// The chat core treats timestamps as UTC instants and participant ids as
// 128-bit identifiers; each backend owns its own serialization of both.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
var ErrAlreadyExists = errors.New("record already exists")

// MessageRecord stores one delivered-and-logged chat message.
//
// SenderID is invalid for system broadcasts, which carry no author.
type MessageRecord struct {
	ChannelName string
	SenderID    uuid.NullUUID
	Content     string
	SentAt      time.Time
}

// ParticipantRecord stores durable per-participant chat state.
type ParticipantRecord struct {
	ID          uuid.UUID
	DisplayName string
	Nickname    string
	JoinedAt    time.Time
	LastSeen    time.Time
}

// MuteRecord stores an active mute for a participant.
type MuteRecord struct {
	ParticipantID uuid.UUID
	Until         time.Time
}

// ChannelRecord stores a persisted channel definition.
type ChannelRecord struct {
	ID      string
	Name    string
	Kind    string
	Enabled bool
}

// MessageStore persists delivered messages and serves historical queries.
//
// Range queries return rows most-recent-first.
type MessageStore interface {
	SaveMessage(ctx context.Context, record MessageRecord) error
	DeleteMessage(ctx context.Context, record MessageRecord) error
	MessagesByChannel(ctx context.Context, channelName string, from, to time.Time) ([]MessageRecord, error)
	MessagesByParticipant(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]MessageRecord, error)
}

// ParticipantStore persists participant records and their companion state.
type ParticipantStore interface {
	PutParticipant(ctx context.Context, record ParticipantRecord) error
	GetParticipant(ctx context.Context, id uuid.UUID) (ParticipantRecord, error)

	PutMute(ctx context.Context, record MuteRecord) error
	GetMute(ctx context.Context, participantID uuid.UUID) (MuteRecord, error)
	DeleteMute(ctx context.Context, participantID uuid.UUID) error

	PutIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error
	DeleteIgnore(ctx context.Context, ownerID, ignoredID uuid.UUID) error
	ListIgnores(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
}

// ChannelStore persists channel definitions and membership pairs.
type ChannelStore interface {
	PutChannel(ctx context.Context, record ChannelRecord) error
	GetChannelByName(ctx context.Context, name string) (ChannelRecord, error)
	ListChannels(ctx context.Context) ([]ChannelRecord, error)

	PutMembership(ctx context.Context, channelID string, participantID uuid.UUID) error
	DeleteMembership(ctx context.Context, channelID string, participantID uuid.UUID) error
	DeleteMemberships(ctx context.Context, participantID uuid.UUID) error
	ListMemberships(ctx context.Context, participantID uuid.UUID) ([]string, error)
}
