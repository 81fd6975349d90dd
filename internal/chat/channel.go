package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedOperation is the panic value wrapped when a channel variant
// is asked for an operation it does not define, such as broadcasting on a
// private channel. This is an integration bug, not a runtime condition.
var ErrUnsupportedOperation = errors.New("chat: operation not supported by channel variant")

// Channel is a named addressable audience with access rules and formatting.
//
// Send runs the full moderation pipeline for a participant-authored message
// and reports whether it was delivered. Broadcast carries a system message:
// it bypasses filters and permissions but never the logging toggle.
type Channel interface {
	ID() string
	Name() string
	Settings() *Settings

	Enabled() bool
	Enable()
	Disable()

	// Recipients enumerates the channel's current audience. Only variants
	// with a bounded, enumerable audience support it.
	Recipients() []*Participant
	// HasAccess reports whether the participant may use the channel.
	HasAccess(participant *Participant) bool

	Send(sender *Participant, content string) bool
	Broadcast(content string)
}

func unsupported(operation, variant string) {
	panic(fmt.Errorf("%w: %s on %s channel", ErrUnsupportedOperation, operation, variant))
}

// channelCore carries the state and pipeline steps shared by every variant.
type channelCore struct {
	id       string
	name     string
	settings *Settings
	enabled  bool
	colors   map[uuid.UUID]string
	recorder *Recorder
	clock    func() time.Time
}

func newChannelCore(id, name string, settings *Settings, recorder *Recorder, clock func() time.Time) (channelCore, error) {
	if name == "" {
		return channelCore{}, errors.New("channel name is required")
	}
	if id == "" {
		generated, err := NewChannelID()
		if err != nil {
			return channelCore{}, fmt.Errorf("generate channel id: %w", err)
		}
		id = generated
	}
	if settings == nil {
		settings = NewSettings()
	}
	if clock == nil {
		clock = time.Now
	}
	return channelCore{
		id:       id,
		name:     name,
		settings: settings,
		enabled:  true,
		colors:   make(map[uuid.UUID]string),
		recorder: recorder,
		clock:    clock,
	}, nil
}

// ID returns the channel's immutable identifier.
func (c *channelCore) ID() string { return c.id }

// Name returns the channel's display name.
func (c *channelCore) Name() string { return c.name }

// Settings returns the channel's configuration.
func (c *channelCore) Settings() *Settings { return c.settings }

// Enabled reports whether the channel accepts messages.
func (c *channelCore) Enabled() bool { return c.enabled }

// Enable opens the channel for messages.
func (c *channelCore) Enable() { c.enabled = true }

// Disable rejects all sends and broadcasts until re-enabled.
func (c *channelCore) Disable() { c.enabled = false }

// SetColor overrides the chat color decoration one participant sees.
func (c *channelCore) SetColor(participantID uuid.UUID, color string) {
	if color == "" {
		delete(c.colors, participantID)
		return
	}
	c.colors[participantID] = color
}

// Color returns the chat color override for a participant, empty if unset.
func (c *channelCore) Color(participantID uuid.UUID) string {
	return c.colors[participantID]
}

// admit runs the send-side moderation pipeline short of fan-out: enabled,
// unmuted sender, channel access, SEND capability, then the filter chain.
func (c *channelCore) admit(channel Channel, sender *Participant, content string) bool {
	if sender == nil || !c.enabled {
		return false
	}
	if sender.Muted() {
		return false
	}
	if !channel.HasAccess(sender) {
		return false
	}
	if !c.settings.Allows(CapabilitySend, sender) {
		return false
	}
	return filtersAllow(channel, sender, content, c.settings.Filters())
}

// fanOut delivers one formatted copy per recipient, skipping recipients who
// ignore the sender, then hands the recipient-independent copy to the
// recorder when logging is enabled.
func (c *channelCore) fanOut(sender *Participant, content string, recipients []*Participant) {
	for _, recipient := range recipients {
		if recipient == nil {
			continue
		}
		if sender != nil && recipient.Ignoring(sender.ID()) {
			continue
		}
		recipient.Deliver(c.settings.Format(c.name, sender, content, c.colors[recipient.ID()]))
	}
	c.record(sender, content)
}

func (c *channelCore) record(sender *Participant, content string) {
	if c.recorder == nil || !c.settings.Logged() {
		return
	}
	message := Message{
		ChannelName: c.name,
		Content:     content,
		SentAt:      c.clock().UTC(),
	}
	if sender != nil {
		message.SenderID = sender.ID()
		message.Sender = sender
	}
	c.recorder.Record(message)
}
