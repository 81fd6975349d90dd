package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/storage"
)

// testClock is a manually advanced clock shared by entities under test.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeSession collects delivered lines for assertions.
type fakeSession struct {
	lines []string
}

func (s *fakeSession) Deliver(text string) {
	s.lines = append(s.lines, text)
}

// fakeHub is an in-memory presence and permission service.
type fakeHub struct {
	sessions map[uuid.UUID]*fakeSession
	order    []uuid.UUID
	perms    map[uuid.UUID]map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		sessions: make(map[uuid.UUID]*fakeSession),
		perms:    make(map[uuid.UUID]map[string]bool),
	}
}

func (h *fakeHub) connect(id uuid.UUID) *fakeSession {
	if session, ok := h.sessions[id]; ok {
		return session
	}
	session := &fakeSession{}
	h.sessions[id] = session
	h.order = append(h.order, id)
	return session
}

func (h *fakeHub) disconnect(id uuid.UUID) {
	delete(h.sessions, id)
	for i, existing := range h.order {
		if existing == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

func (h *fakeHub) grant(id uuid.UUID, node string) {
	if h.perms[id] == nil {
		h.perms[id] = make(map[string]bool)
	}
	h.perms[id][node] = true
}

func (h *fakeHub) revoke(id uuid.UUID, node string) {
	delete(h.perms[id], node)
}

func (h *fakeHub) IsOnline(id uuid.UUID) bool {
	_, ok := h.sessions[id]
	return ok
}

func (h *fakeHub) Get(id uuid.UUID) (Session, bool) {
	session, ok := h.sessions[id]
	return session, ok
}

func (h *fakeHub) ForEach(fn func(id uuid.UUID, session Session)) {
	for _, id := range h.order {
		fn(id, h.sessions[id])
	}
}

func (h *fakeHub) HasPermission(id uuid.UUID, node string) bool {
	return h.perms[id][node]
}

var (
	_ Presence    = (*fakeHub)(nil)
	_ Permissions = (*fakeHub)(nil)
)

// fakeMessageStore is an in-memory storage.MessageStore.
type fakeMessageStore struct {
	saved   []storage.MessageRecord
	deleted []storage.MessageRecord

	saveErr   error
	deleteErr error
	queryErr  error
}

func (s *fakeMessageStore) SaveMessage(_ context.Context, record storage.MessageRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, record)
	return nil
}

func (s *fakeMessageStore) DeleteMessage(_ context.Context, record storage.MessageRecord) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, record)
	return nil
}

func (s *fakeMessageStore) MessagesByChannel(_ context.Context, channelName string, from, to time.Time) ([]storage.MessageRecord, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var records []storage.MessageRecord
	for _, record := range s.saved {
		if record.ChannelName != channelName {
			continue
		}
		if record.SentAt.Before(from) || record.SentAt.After(to) {
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.After(records[j].SentAt)
	})
	return records, nil
}

func (s *fakeMessageStore) MessagesByParticipant(_ context.Context, participantID uuid.UUID, from, to time.Time) ([]storage.MessageRecord, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var records []storage.MessageRecord
	for _, record := range s.saved {
		if !record.SenderID.Valid || record.SenderID.UUID != participantID {
			continue
		}
		if record.SentAt.Before(from) || record.SentAt.After(to) {
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.After(records[j].SentAt)
	})
	return records, nil
}

var _ storage.MessageStore = (*fakeMessageStore)(nil)

// fakeParticipantStore is an in-memory storage.ParticipantStore.
type fakeParticipantStore struct {
	participants map[uuid.UUID]storage.ParticipantRecord
	mutes        map[uuid.UUID]storage.MuteRecord
	ignores      map[uuid.UUID]map[uuid.UUID]struct{}

	err error
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{
		participants: make(map[uuid.UUID]storage.ParticipantRecord),
		mutes:        make(map[uuid.UUID]storage.MuteRecord),
		ignores:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (s *fakeParticipantStore) PutParticipant(_ context.Context, record storage.ParticipantRecord) error {
	if s.err != nil {
		return s.err
	}
	s.participants[record.ID] = record
	return nil
}

func (s *fakeParticipantStore) GetParticipant(_ context.Context, id uuid.UUID) (storage.ParticipantRecord, error) {
	if s.err != nil {
		return storage.ParticipantRecord{}, s.err
	}
	record, ok := s.participants[id]
	if !ok {
		return storage.ParticipantRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeParticipantStore) PutMute(_ context.Context, record storage.MuteRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mutes[record.ParticipantID] = record
	return nil
}

func (s *fakeParticipantStore) GetMute(_ context.Context, participantID uuid.UUID) (storage.MuteRecord, error) {
	if s.err != nil {
		return storage.MuteRecord{}, s.err
	}
	record, ok := s.mutes[participantID]
	if !ok {
		return storage.MuteRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeParticipantStore) DeleteMute(_ context.Context, participantID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	delete(s.mutes, participantID)
	return nil
}

func (s *fakeParticipantStore) PutIgnore(_ context.Context, ownerID, ignoredID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	if s.ignores[ownerID] == nil {
		s.ignores[ownerID] = make(map[uuid.UUID]struct{})
	}
	s.ignores[ownerID][ignoredID] = struct{}{}
	return nil
}

func (s *fakeParticipantStore) DeleteIgnore(_ context.Context, ownerID, ignoredID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	delete(s.ignores[ownerID], ignoredID)
	return nil
}

func (s *fakeParticipantStore) ListIgnores(_ context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	if s.err != nil {
		return nil, s.err
	}
	var ignored []uuid.UUID
	for id := range s.ignores[ownerID] {
		ignored = append(ignored, id)
	}
	return ignored, nil
}

var _ storage.ParticipantStore = (*fakeParticipantStore)(nil)

// fakeChannelStore is an in-memory storage.ChannelStore.
type fakeChannelStore struct {
	channels map[string]storage.ChannelRecord
	members  map[uuid.UUID]map[string]struct{}

	err error
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{
		channels: make(map[string]storage.ChannelRecord),
		members:  make(map[uuid.UUID]map[string]struct{}),
	}
}

func (s *fakeChannelStore) PutChannel(_ context.Context, record storage.ChannelRecord) error {
	if s.err != nil {
		return s.err
	}
	s.channels[record.ID] = record
	return nil
}

func (s *fakeChannelStore) GetChannelByName(_ context.Context, name string) (storage.ChannelRecord, error) {
	if s.err != nil {
		return storage.ChannelRecord{}, s.err
	}
	for _, record := range s.channels {
		if record.Name == name {
			return record, nil
		}
	}
	return storage.ChannelRecord{}, storage.ErrNotFound
}

func (s *fakeChannelStore) ListChannels(_ context.Context) ([]storage.ChannelRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var records []storage.ChannelRecord
	for _, record := range s.channels {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (s *fakeChannelStore) PutMembership(_ context.Context, channelID string, participantID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	if s.members[participantID] == nil {
		s.members[participantID] = make(map[string]struct{})
	}
	s.members[participantID][channelID] = struct{}{}
	return nil
}

func (s *fakeChannelStore) DeleteMembership(_ context.Context, channelID string, participantID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	delete(s.members[participantID], channelID)
	return nil
}

func (s *fakeChannelStore) DeleteMemberships(_ context.Context, participantID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	delete(s.members, participantID)
	return nil
}

func (s *fakeChannelStore) ListMemberships(_ context.Context, participantID uuid.UUID) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var channelIDs []string
	for channelID := range s.members[participantID] {
		channelIDs = append(channelIDs, channelID)
	}
	sort.Strings(channelIDs)
	return channelIDs, nil
}

var _ storage.ChannelStore = (*fakeChannelStore)(nil)

// captureScheduler queues tasks for explicit draining in tests.
type captureScheduler struct {
	async []func()
}

func (s *captureScheduler) Sync(task func()) {
	task()
}

func (s *captureScheduler) Async(task func()) {
	s.async = append(s.async, task)
}

func (s *captureScheduler) drain() {
	tasks := s.async
	s.async = nil
	for _, task := range tasks {
		task()
	}
}

var _ Scheduler = (*captureScheduler)(nil)
