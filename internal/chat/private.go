package chat

import "time"

// PrivateChannel carries paired direct messages and bare replies. It has no
// enumerable audience: Recipients, HasAccess, and Broadcast are contract
// violations and panic with ErrUnsupportedOperation.
type PrivateChannel struct {
	channelCore
	directory *Directory
}

// NewPrivateChannel creates the private-message channel.
func NewPrivateChannel(id, name string, directory *Directory, settings *Settings, recorder *Recorder, clock func() time.Time) (*PrivateChannel, error) {
	core, err := newChannelCore(id, name, settings, recorder, clock)
	if err != nil {
		return nil, err
	}
	return &PrivateChannel{channelCore: core, directory: directory}, nil
}

// Recipients is not supported on private channels.
func (c *PrivateChannel) Recipients() []*Participant {
	unsupported("recipients", "private")
	return nil
}

// HasAccess is not supported on private channels.
func (c *PrivateChannel) HasAccess(participant *Participant) bool {
	unsupported("access check", "private")
	return false
}

// Broadcast is not supported on private channels.
func (c *PrivateChannel) Broadcast(content string) {
	unsupported("broadcast", "private")
}

// Send replies to the sender's last private correspondent. It fails soft
// when no prior correspondent exists or the correspondent cannot be
// resolved as a live participant.
func (c *PrivateChannel) Send(sender *Participant, content string) bool {
	if sender == nil {
		return false
	}
	correspondentID, ok := sender.LastMessagedBy()
	if !ok {
		return false
	}
	recipient, ok := c.directory.Get(correspondentID)
	if !ok {
		return false
	}
	return c.SendTo(sender, recipient, content)
}

// SendTo delivers a direct message to one recipient, subject to the full
// moderation pipeline. A delivered message records the sender as the
// recipient's last correspondent, enabling a subsequent bare reply.
func (c *PrivateChannel) SendTo(sender, recipient *Participant, content string) bool {
	if sender == nil || recipient == nil || !c.enabled {
		return false
	}
	if sender.Muted() {
		return false
	}
	if !c.settings.Allows(CapabilitySend, sender) {
		return false
	}
	if !filtersAllow(c, sender, content, c.settings.Filters()) {
		return false
	}
	if !recipient.Online() {
		return false
	}
	if recipient.Ignoring(sender.ID()) {
		return false
	}

	recipient.Deliver(c.settings.Format(c.name, sender, content, c.colors[recipient.ID()]))
	recipient.SetLastMessagedBy(sender.ID())
	c.record(sender, content)
	return true
}

var _ Channel = (*PrivateChannel)(nil)
