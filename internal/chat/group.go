package chat

import (
	"time"

	"github.com/google/uuid"
)

// MemberSupplier returns the current member ids of a dynamic group, such as
// a party or guild roster.
type MemberSupplier func() []uuid.UUID

// GroupChannel addresses a dynamic group. Membership is computed from the
// supplier on every call and never cached, so roster changes take effect
// immediately without any channel-membership mutation.
type GroupChannel struct {
	channelCore
	directory *Directory
	members   MemberSupplier
}

// NewGroupChannel creates a group channel over a membership supplier.
func NewGroupChannel(id, name string, directory *Directory, members MemberSupplier, settings *Settings, recorder *Recorder, clock func() time.Time) (*GroupChannel, error) {
	core, err := newChannelCore(id, name, settings, recorder, clock)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = func() []uuid.UUID { return nil }
	}
	return &GroupChannel{channelCore: core, directory: directory, members: members}, nil
}

// Recipients resolves the supplier's current roster through the directory.
// Members that cannot be resolved are silently skipped.
func (c *GroupChannel) Recipients() []*Participant {
	var recipients []*Participant
	for _, id := range c.members() {
		participant, ok := c.directory.Get(id)
		if !ok || !participant.Online() {
			continue
		}
		recipients = append(recipients, participant)
	}
	return recipients
}

// HasAccess tests membership against a fresh roster evaluation.
func (c *GroupChannel) HasAccess(participant *Participant) bool {
	if participant == nil {
		return false
	}
	for _, id := range c.members() {
		if id == participant.ID() {
			return true
		}
	}
	return false
}

// Send routes a member-authored message to the current roster.
func (c *GroupChannel) Send(sender *Participant, content string) bool {
	if !c.admit(c, sender, content) {
		return false
	}
	c.fanOut(sender, content, c.Recipients())
	return true
}

// Broadcast fans a system message out to the current roster.
func (c *GroupChannel) Broadcast(content string) {
	if !c.enabled {
		return
	}
	c.fanOut(nil, content, c.Recipients())
}

var _ Channel = (*GroupChannel)(nil)
