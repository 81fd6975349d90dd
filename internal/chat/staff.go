package chat

import "time"

// StaffChannel addresses every online participant holding a permission
// node. The node is evaluated at send time, never cached, so grants and
// revocations take effect on the next message.
type StaffChannel struct {
	channelCore
	directory *Directory
	node      string
}

// NewStaffChannel creates a permission-gated channel.
func NewStaffChannel(id, name string, directory *Directory, node string, settings *Settings, recorder *Recorder, clock func() time.Time) (*StaffChannel, error) {
	core, err := newChannelCore(id, name, settings, recorder, clock)
	if err != nil {
		return nil, err
	}
	return &StaffChannel{channelCore: core, directory: directory, node: node}, nil
}

// Node returns the permission node gating the channel.
func (c *StaffChannel) Node() string {
	return c.node
}

// Recipients returns the online participants currently holding the node.
func (c *StaffChannel) Recipients() []*Participant {
	var recipients []*Participant
	for _, participant := range c.directory.Online() {
		if participant.HasPermission(c.node) {
			recipients = append(recipients, participant)
		}
	}
	return recipients
}

// HasAccess tests the permission node at call time.
func (c *StaffChannel) HasAccess(participant *Participant) bool {
	return participant != nil && participant.HasPermission(c.node)
}

// Send routes a staff-authored message to all current node holders.
func (c *StaffChannel) Send(sender *Participant, content string) bool {
	if !c.admit(c, sender, content) {
		return false
	}
	c.fanOut(sender, content, c.Recipients())
	return true
}

// Broadcast fans a system message out to all current node holders.
func (c *StaffChannel) Broadcast(content string) {
	if !c.enabled {
		return
	}
	c.fanOut(nil, content, c.Recipients())
}

var _ Channel = (*StaffChannel)(nil)
