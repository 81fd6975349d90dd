package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a live connection handle supplied by the game runtime.
type Session interface {
	// Deliver pushes one formatted line to the connection. Implementations
	// must not block the delivery goroutine.
	Deliver(text string)
}

// Presence reports which participants are currently connected.
type Presence interface {
	IsOnline(id uuid.UUID) bool
	Get(id uuid.UUID) (Session, bool)
	ForEach(fn func(id uuid.UUID, session Session))
}

// Permissions answers permission-node checks for connected participants.
type Permissions interface {
	HasPermission(id uuid.UUID, node string) bool
}

// Directory owns the single authoritative live Participant per online user.
//
// Channels hold only participant references resolved through the directory,
// so membership changes are visible to every holder without copies. Online
// state is always a read-through query against the presence service, never
// cached across calls.
//
// Mutation happens on the delivery goroutine, but historical queries look up
// live senders from whatever goroutine runs them, so the map carries its own
// lock.
type Directory struct {
	presence Presence
	perms    Permissions
	clock    func() time.Time

	mu   sync.RWMutex
	live map[uuid.UUID]*Participant
}

// NewDirectory creates a directory backed by the given presence and
// permission services.
func NewDirectory(presence Presence, perms Permissions, clock func() time.Time) *Directory {
	if clock == nil {
		clock = time.Now
	}
	return &Directory{
		presence: presence,
		perms:    perms,
		clock:    clock,
		live:     make(map[uuid.UUID]*Participant),
	}
}

// Register creates and stores a live participant for a connected user.
// Registering an id that is already live returns the existing entity.
func (d *Directory) Register(id uuid.UUID, displayName string) *Participant {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.live[id]; ok {
		return existing
	}
	participant := NewParticipant(id, displayName, d.presence, d.perms, d.clock)
	d.live[id] = participant
	return participant
}

// Get returns the live participant for id, if one is registered.
func (d *Directory) Get(id uuid.UUID) (*Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	participant, ok := d.live[id]
	return participant, ok
}

// Evict removes the live participant for id. The entity itself stays valid
// for historical rendering; it simply stops being the authoritative copy.
func (d *Directory) Evict(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, id)
}

// IDs returns the id of every registered live participant.
func (d *Directory) IDs() []uuid.UUID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(d.live))
	for id := range d.live {
		ids = append(ids, id)
	}
	return ids
}

// Online returns the live participants that the presence service reports as
// connected right now. The snapshot is taken fresh on every call.
func (d *Directory) Online() []*Participant {
	if d.presence == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var online []*Participant
	d.presence.ForEach(func(id uuid.UUID, _ Session) {
		if participant, ok := d.live[id]; ok {
			online = append(online, participant)
		}
	})
	return online
}
