package chat

import "time"

// GlobalChannel addresses every online participant and grants access
// unconditionally.
type GlobalChannel struct {
	channelCore
	directory *Directory
}

// NewGlobalChannel creates a global channel. An empty id generates one.
func NewGlobalChannel(id, name string, directory *Directory, settings *Settings, recorder *Recorder, clock func() time.Time) (*GlobalChannel, error) {
	core, err := newChannelCore(id, name, settings, recorder, clock)
	if err != nil {
		return nil, err
	}
	return &GlobalChannel{channelCore: core, directory: directory}, nil
}

// Recipients returns all online participants, queried fresh per call.
func (c *GlobalChannel) Recipients() []*Participant {
	return c.directory.Online()
}

// HasAccess always grants access.
func (c *GlobalChannel) HasAccess(participant *Participant) bool {
	return participant != nil
}

// Send routes a participant-authored message through the moderation
// pipeline and fans it out to every online participant.
func (c *GlobalChannel) Send(sender *Participant, content string) bool {
	if !c.admit(c, sender, content) {
		return false
	}
	c.fanOut(sender, content, c.Recipients())
	return true
}

// Broadcast fans a system message out to every online participant.
func (c *GlobalChannel) Broadcast(content string) {
	if !c.enabled {
		return
	}
	c.fanOut(nil, content, c.Recipients())
}

var _ Channel = (*GlobalChannel)(nil)
