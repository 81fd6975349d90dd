package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// Scheduler splits execution between the delivery context and the
// background pool. Sync runs the task now on the delivery goroutine; Async
// hands it to the background pool, detached from the caller.
type Scheduler interface {
	Sync(task func())
	Async(task func())
}

// syncScheduler runs everything inline. It is the default for wiring where
// no background pool exists, such as tests.
type syncScheduler struct{}

func (syncScheduler) Sync(task func())  { task() }
func (syncScheduler) Async(task func()) { task() }

// Recorder persists delivered messages on the background path and serves
// historical queries.
//
// Save and delete failures are logged and swallowed: delivery has already
// happened and a lost log row never fails or retries it. Query failures
// propagate, since the caller explicitly asked for data.
type Recorder struct {
	messages     storage.MessageStore
	participants storage.ParticipantStore
	directory    *Directory
	scheduler    Scheduler
	clock        func() time.Time
}

// NewRecorder creates a recorder over the message and participant stores.
func NewRecorder(messages storage.MessageStore, participants storage.ParticipantStore, directory *Directory, scheduler Scheduler, clock func() time.Time) *Recorder {
	if scheduler == nil {
		scheduler = syncScheduler{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		messages:     messages,
		participants: participants,
		directory:    directory,
		scheduler:    scheduler,
		clock:        clock,
	}
}

// Record persists one delivered message, fire-and-forget.
func (r *Recorder) Record(message Message) {
	if r == nil || r.messages == nil {
		return
	}
	record := messageToRecord(message)
	r.scheduler.Async(func() {
		if err := r.messages.SaveMessage(context.Background(), record); err != nil {
			log.Printf("chat: save message log channel=%q: %v", record.ChannelName, err)
		}
	})
}

// Discard removes one logged message, fire-and-forget.
func (r *Recorder) Discard(message Message) {
	if r == nil || r.messages == nil {
		return
	}
	record := messageToRecord(message)
	r.scheduler.Async(func() {
		if err := r.messages.DeleteMessage(context.Background(), record); err != nil {
			log.Printf("chat: delete message log channel=%q: %v", record.ChannelName, err)
		}
	})
}

// ChannelLogs returns a channel's logged messages in [from, to],
// most-recent-first, with senders rehydrated.
func (r *Recorder) ChannelLogs(ctx context.Context, channelName string, from, to time.Time) ([]Message, error) {
	if r == nil || r.messages == nil {
		return nil, errors.New("message store is not configured")
	}
	records, err := r.messages.MessagesByChannel(ctx, channelName, from, to)
	if err != nil {
		return nil, fmt.Errorf("query channel logs: %w", err)
	}
	return r.recordsToMessages(ctx, records), nil
}

// ParticipantLogs returns a participant's logged messages in [from, to],
// most-recent-first, with senders rehydrated.
func (r *Recorder) ParticipantLogs(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]Message, error) {
	if r == nil || r.messages == nil {
		return nil, errors.New("message store is not configured")
	}
	records, err := r.messages.MessagesByParticipant(ctx, participantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query participant logs: %w", err)
	}
	return r.recordsToMessages(ctx, records), nil
}

func (r *Recorder) recordsToMessages(ctx context.Context, records []storage.MessageRecord) []Message {
	messages := make([]Message, 0, len(records))
	for _, record := range records {
		message := Message{
			ChannelName: record.ChannelName,
			Content:     record.Content,
			SentAt:      record.SentAt,
		}
		if record.SenderID.Valid {
			message.SenderID = record.SenderID.UUID
			message.Sender = r.rehydrateSender(ctx, record.SenderID.UUID)
		}
		messages = append(messages, message)
	}
	return messages
}

// rehydrateSender resolves a sender for historical display. A live
// participant is reused; otherwise a transient entity is built from storage,
// or a minimal stand-in when no record exists. Transient entities are never
// registered in the live directory.
func (r *Recorder) rehydrateSender(ctx context.Context, id uuid.UUID) *Participant {
	if r.directory != nil {
		if live, ok := r.directory.Get(id); ok {
			return live
		}
	}
	if r.participants == nil {
		return NewParticipant(id, id.String(), nil, nil, r.clock)
	}
	record, err := r.participants.GetParticipant(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("chat: hydrate participant %s: %v", id, err)
		}
		return NewParticipant(id, id.String(), nil, nil, r.clock)
	}
	transient := NewParticipant(id, record.DisplayName, nil, nil, r.clock)
	transient.SetNickname(record.Nickname)
	transient.SetLastSeen(record.LastSeen)
	transient.SetJoinedAt(record.JoinedAt)
	return transient
}

func messageToRecord(message Message) storage.MessageRecord {
	record := storage.MessageRecord{
		ChannelName: message.ChannelName,
		Content:     message.Content,
		SentAt:      message.SentAt,
	}
	if !message.System() {
		record.SenderID = uuid.NullUUID{UUID: message.SenderID, Valid: true}
	}
	return record
}
