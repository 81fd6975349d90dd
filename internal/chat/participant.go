package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Participant is one user's chat state, live or rehydrated.
//
// A live participant is backed by presence and permission services; a
// rehydrated one carries nil services and therefore reads as offline, which
// makes every operation degrade gracefully: sends are dropped and permission
// checks return false while the entity stays usable for historical display.
type Participant struct {
	id          uuid.UUID
	displayName string
	nickname    string
	muteUntil   time.Time
	ignored     map[uuid.UUID]struct{}
	channels    []Channel
	active      Channel
	lastSeen    time.Time
	lastMsgBy   uuid.UUID
	joinedAt    time.Time

	presence Presence
	perms    Permissions
	clock    func() time.Time
}

// NewParticipant creates a participant entity. Presence and perms may be nil
// for transient historical entities.
func NewParticipant(id uuid.UUID, displayName string, presence Presence, perms Permissions, clock func() time.Time) *Participant {
	if clock == nil {
		clock = time.Now
	}
	displayName = strings.TrimSpace(displayName)
	now := clock().UTC()
	return &Participant{
		id:          id,
		displayName: displayName,
		ignored:     make(map[uuid.UUID]struct{}),
		lastSeen:    now,
		joinedAt:    now,
		presence:    presence,
		perms:       perms,
		clock:       clock,
	}
}

// ID returns the participant's identifier.
func (p *Participant) ID() uuid.UUID {
	return p.id
}

// DisplayName returns the participant's immutable display name.
func (p *Participant) DisplayName() string {
	return p.displayName
}

// Nickname returns the participant's nickname, falling back to the display
// name so the result is never empty.
func (p *Participant) Nickname() string {
	if p.nickname == "" {
		return p.displayName
	}
	return p.nickname
}

// SetNickname updates the nickname. A blank nickname resets the fallback to
// the display name.
func (p *Participant) SetNickname(nickname string) {
	p.nickname = strings.TrimSpace(nickname)
}

// Online reports whether the participant is currently connected.
func (p *Participant) Online() bool {
	return p.presence != nil && p.presence.IsOnline(p.id)
}

// HasPermission reports whether the participant holds the permission node.
// Offline participants hold no permissions.
func (p *Participant) HasPermission(node string) bool {
	if !p.Online() || p.perms == nil {
		return false
	}
	return p.perms.HasPermission(p.id, node)
}

// Deliver pushes one formatted message line to the participant's session.
// Offline participants drop the message.
func (p *Participant) Deliver(text string) {
	if p.presence == nil {
		return
	}
	session, ok := p.presence.Get(p.id)
	if !ok {
		return
	}
	session.Deliver(text)
}

// Muted reports whether a mute is currently active. Expiry is lazy: the
// result is a pure function of the stored mute-until instant and the clock,
// so no timer or separately mutated flag exists to desynchronize.
func (p *Participant) Muted() bool {
	return !p.muteUntil.IsZero() && p.clock().Before(p.muteUntil)
}

// Mute silences the participant for the given duration.
func (p *Participant) Mute(d time.Duration) {
	p.muteUntil = p.clock().Add(d)
}

// Unmute clears any active mute.
func (p *Participant) Unmute() {
	p.muteUntil = time.Time{}
}

// MuteUntil returns the stored mute expiry instant, zero when unmuted.
func (p *Participant) MuteUntil() time.Time {
	return p.muteUntil
}

// SetMuteUntil restores a persisted mute expiry during hydration.
func (p *Participant) SetMuteUntil(until time.Time) {
	p.muteUntil = until
}

// Ignore adds id to the ignore set and reports whether the set changed.
func (p *Participant) Ignore(id uuid.UUID) bool {
	if _, ok := p.ignored[id]; ok {
		return false
	}
	p.ignored[id] = struct{}{}
	return true
}

// Unignore removes id from the ignore set and reports whether the set changed.
func (p *Participant) Unignore(id uuid.UUID) bool {
	if _, ok := p.ignored[id]; !ok {
		return false
	}
	delete(p.ignored, id)
	return true
}

// Ignoring reports whether the participant ignores id.
func (p *Participant) Ignoring(id uuid.UUID) bool {
	_, ok := p.ignored[id]
	return ok
}

// Ignores returns the ignore set for persistence.
func (p *Participant) Ignores() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.ignored))
	for id := range p.ignored {
		ids = append(ids, id)
	}
	return ids
}

// Channels returns the participant's joined channels in join order.
func (p *Participant) Channels() []Channel {
	return p.channels
}

// AddChannel joins the participant to a channel and reports whether the
// membership changed.
func (p *Participant) AddChannel(channel Channel) bool {
	if channel == nil {
		return false
	}
	for _, existing := range p.channels {
		if existing == channel {
			return false
		}
	}
	p.channels = append(p.channels, channel)
	return true
}

// RemoveChannel leaves a channel and reports whether the membership changed.
// Leaving the active channel clears the active reference.
func (p *Participant) RemoveChannel(channel Channel) bool {
	for i, existing := range p.channels {
		if existing == channel {
			p.channels = append(p.channels[:i], p.channels[i+1:]...)
			if p.active == channel {
				p.active = nil
			}
			return true
		}
	}
	return false
}

// ActiveChannel returns the channel receiving the participant's sends.
func (p *Participant) ActiveChannel() Channel {
	return p.active
}

// SetActiveChannel switches the active channel. The channel must be one of
// the participant's joined channels.
func (p *Participant) SetActiveChannel(channel Channel) bool {
	for _, existing := range p.channels {
		if existing == channel {
			p.active = channel
			return true
		}
	}
	return false
}

// LastSeen returns when the participant was last observed. Reading it while
// the participant is online refreshes the timestamp to now.
func (p *Participant) LastSeen() time.Time {
	if p.Online() {
		p.lastSeen = p.clock().UTC()
	}
	return p.lastSeen
}

// SetLastSeen restores a persisted last-seen instant during hydration.
func (p *Participant) SetLastSeen(at time.Time) {
	p.lastSeen = at
}

// JoinedAt returns when the participant first joined.
func (p *Participant) JoinedAt() time.Time {
	return p.joinedAt
}

// SetJoinedAt restores a persisted join instant during hydration.
func (p *Participant) SetJoinedAt(at time.Time) {
	p.joinedAt = at
}

// LastMessagedBy returns the id of the last private-message correspondent
// and whether one exists.
func (p *Participant) LastMessagedBy() (uuid.UUID, bool) {
	return p.lastMsgBy, p.lastMsgBy != uuid.Nil
}

// SetLastMessagedBy records the last private-message correspondent for
// reply routing.
func (p *Participant) SetLastMessagedBy(id uuid.UUID) {
	p.lastMsgBy = id
}
