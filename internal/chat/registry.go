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

// Registry is the composition root for channels and participants: channel
// lookup by name and id, plus participant connect/disconnect with durable
// state hydration and persistence.
type Registry struct {
	directory    *Directory
	recorder     *Recorder
	participants storage.ParticipantStore
	channels     storage.ChannelStore
	clock        func() time.Time

	byName  map[string]Channel
	byID    map[string]Channel
	ordered []Channel
	global  Channel
}

// RegistryConfig wires the registry's collaborators. Stores may be nil for
// a purely in-memory registry.
type RegistryConfig struct {
	Directory    *Directory
	Recorder     *Recorder
	Participants storage.ParticipantStore
	Channels     storage.ChannelStore
	Clock        func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		directory:    cfg.Directory,
		recorder:     cfg.Recorder,
		participants: cfg.Participants,
		channels:     cfg.Channels,
		clock:        clock,
		byName:       make(map[string]Channel),
		byID:         make(map[string]Channel),
	}, nil
}

// Directory returns the live participant directory.
func (r *Registry) Directory() *Directory {
	return r.directory
}

// Recorder returns the message recorder, which may be nil.
func (r *Registry) Recorder() *Recorder {
	return r.recorder
}

// AddChannel registers a channel for lookup by name and id.
func (r *Registry) AddChannel(channel Channel) error {
	if channel == nil {
		return errors.New("channel is required")
	}
	if _, ok := r.byName[channel.Name()]; ok {
		return fmt.Errorf("channel name %q already registered", channel.Name())
	}
	if _, ok := r.byID[channel.ID()]; ok {
		return fmt.Errorf("channel id %q already registered", channel.ID())
	}
	r.byName[channel.Name()] = channel
	r.byID[channel.ID()] = channel
	r.ordered = append(r.ordered, channel)
	return nil
}

// SetGlobal registers a channel and marks it as the implicit channel every
// participant joins on connect.
func (r *Registry) SetGlobal(channel Channel) error {
	if err := r.AddChannel(channel); err != nil {
		return err
	}
	r.global = channel
	return nil
}

// Global returns the implicit global channel, if one is set.
func (r *Registry) Global() Channel {
	return r.global
}

// Channel looks a channel up by name.
func (r *Registry) Channel(name string) (Channel, bool) {
	channel, ok := r.byName[name]
	return channel, ok
}

// ChannelByID looks a channel up by its stable id.
func (r *Registry) ChannelByID(id string) (Channel, bool) {
	channel, ok := r.byID[id]
	return channel, ok
}

// Channels returns all registered channels in registration order.
func (r *Registry) Channels() []Channel {
	return r.ordered
}

// PersistedState carries one participant's durable chat state between
// storage goroutines and the delivery loop. Load fills it on connect;
// Disconnect snapshots it for Persist.
type PersistedState struct {
	Record      *storage.ParticipantRecord
	Mute        *storage.MuteRecord
	Ignores     []uuid.UUID
	Memberships []string
}

// Load reads a participant's persisted chat state. It performs storage I/O
// and belongs on the caller's goroutine, never the delivery loop. Reads are
// best-effort: failures are logged and leave the field empty, so the
// participant starts fresh rather than being refused.
func (r *Registry) Load(ctx context.Context, id uuid.UUID) PersistedState {
	var state PersistedState

	if r.participants != nil {
		record, err := r.participants.GetParticipant(ctx, id)
		switch {
		case err == nil:
			state.Record = &record
		case !errors.Is(err, storage.ErrNotFound):
			log.Printf("chat: hydrate participant %s: %v", id, err)
		}

		mute, err := r.participants.GetMute(ctx, id)
		switch {
		case err == nil:
			state.Mute = &mute
		case !errors.Is(err, storage.ErrNotFound):
			log.Printf("chat: hydrate mute %s: %v", id, err)
		}

		ignores, err := r.participants.ListIgnores(ctx, id)
		if err != nil {
			log.Printf("chat: hydrate ignores %s: %v", id, err)
		}
		state.Ignores = ignores
	}

	if r.channels != nil {
		memberships, err := r.channels.ListMemberships(ctx, id)
		if err != nil {
			log.Printf("chat: hydrate memberships %s: %v", id, err)
		}
		state.Memberships = memberships
	}
	return state
}

// Connect registers a live participant and applies previously loaded state:
// nickname, timestamps, mute, ignore list, and channel memberships. It only
// mutates in-memory state and must run on the delivery loop.
func (r *Registry) Connect(id uuid.UUID, displayName string, state PersistedState) *Participant {
	participant := r.directory.Register(id, displayName)

	if state.Record != nil {
		participant.SetNickname(state.Record.Nickname)
		participant.SetJoinedAt(state.Record.JoinedAt)
		participant.SetLastSeen(state.Record.LastSeen)
	}
	if state.Mute != nil && r.clock().Before(state.Mute.Until) {
		participant.SetMuteUntil(state.Mute.Until)
	}
	for _, ignored := range state.Ignores {
		participant.Ignore(ignored)
	}
	for _, channelID := range state.Memberships {
		if channel, ok := r.byID[channelID]; ok {
			participant.AddChannel(channel)
		}
	}

	if r.global != nil {
		participant.AddChannel(r.global)
		if participant.ActiveChannel() == nil {
			participant.SetActiveChannel(r.global)
		}
	}
	return participant
}

// Disconnect snapshots the participant's chat state and evicts it from the
// live directory. It only touches in-memory state and must run on the
// delivery loop; hand the snapshot to Persist afterwards. The second return
// is false when the id has no live participant.
func (r *Registry) Disconnect(id uuid.UUID) (PersistedState, bool) {
	participant, ok := r.directory.Get(id)
	if !ok {
		return PersistedState{}, false
	}
	r.directory.Evict(id)
	return r.snapshot(participant), true
}

// DisconnectAll snapshots and evicts every live participant, keyed by id.
// Used on shutdown to sweep connections whose handlers never unwound.
func (r *Registry) DisconnectAll() map[uuid.UUID]PersistedState {
	states := make(map[uuid.UUID]PersistedState)
	for _, id := range r.directory.IDs() {
		if state, ok := r.Disconnect(id); ok {
			states[id] = state
		}
	}
	return states
}

func (r *Registry) snapshot(participant *Participant) PersistedState {
	state := PersistedState{
		Record: &storage.ParticipantRecord{
			ID:          participant.ID(),
			DisplayName: participant.DisplayName(),
			Nickname:    participant.Nickname(),
			JoinedAt:    participant.JoinedAt(),
			LastSeen:    participant.LastSeen(),
		},
		Ignores: participant.Ignores(),
	}
	if participant.Muted() {
		state.Mute = &storage.MuteRecord{ParticipantID: participant.ID(), Until: participant.MuteUntil()}
	}
	for _, channel := range participant.Channels() {
		if channel == r.global {
			continue
		}
		state.Memberships = append(state.Memberships, channel.ID())
	}
	return state
}

// Persist writes a disconnect snapshot. It performs storage I/O and belongs
// off the delivery loop. Persistence is best-effort: failures are logged and
// swallowed.
func (r *Registry) Persist(ctx context.Context, id uuid.UUID, state PersistedState) {
	if r.participants != nil {
		if state.Record != nil {
			if err := r.participants.PutParticipant(ctx, *state.Record); err != nil {
				log.Printf("chat: persist participant %s: %v", id, err)
			}
		}

		if state.Mute != nil {
			if err := r.participants.PutMute(ctx, *state.Mute); err != nil {
				log.Printf("chat: persist mute %s: %v", id, err)
			}
		} else if err := r.participants.DeleteMute(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("chat: clear mute %s: %v", id, err)
		}

		r.persistIgnores(ctx, id, state.Ignores)
	}

	if r.channels != nil {
		if err := r.channels.DeleteMemberships(ctx, id); err != nil {
			log.Printf("chat: clear memberships %s: %v", id, err)
		}
		for _, channelID := range state.Memberships {
			if err := r.channels.PutMembership(ctx, channelID, id); err != nil {
				log.Printf("chat: persist membership %s channel=%q: %v", id, channelID, err)
			}
		}
	}
}

func (r *Registry) persistIgnores(ctx context.Context, id uuid.UUID, current []uuid.UUID) {
	stored, err := r.participants.ListIgnores(ctx, id)
	if err != nil {
		log.Printf("chat: list stored ignores %s: %v", id, err)
		stored = nil
	}
	storedSet := make(map[uuid.UUID]struct{}, len(stored))
	for _, ignored := range stored {
		storedSet[ignored] = struct{}{}
	}
	for _, ignored := range current {
		if _, ok := storedSet[ignored]; ok {
			delete(storedSet, ignored)
			continue
		}
		if err := r.participants.PutIgnore(ctx, id, ignored); err != nil {
			log.Printf("chat: persist ignore %s -> %s: %v", id, ignored, err)
		}
	}
	for removed := range storedSet {
		if err := r.participants.DeleteIgnore(ctx, id, removed); err != nil {
			log.Printf("chat: remove ignore %s -> %s: %v", id, removed, err)
		}
	}
}
