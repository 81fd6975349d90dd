package chat

import "fmt"

// Capability names a channel operation that may be permission-gated.
type Capability int

const (
	// CapabilityJoin gates joining the channel.
	CapabilityJoin Capability = iota
	// CapabilityLeave gates leaving the channel.
	CapabilityLeave
	// CapabilitySend gates participant-authored sends.
	CapabilitySend
)

// FormatFunc renders one message line for a recipient. The color argument is
// the recipient's chat-color override and may be empty.
type FormatFunc func(channelName string, sender *Participant, content, color string) string

// DefaultFormat renders "[channel] nickname: content" with an optional color
// decoration prefix. System messages omit the author.
func DefaultFormat(channelName string, sender *Participant, content, color string) string {
	if sender == nil {
		return fmt.Sprintf("%s[%s] %s", color, channelName, content)
	}
	return fmt.Sprintf("%s[%s] %s: %s", color, channelName, sender.Nickname(), content)
}

// Settings holds per-channel configuration: the capability permission map,
// the ordered filter chain, the logging toggle, and display formatting.
//
// A capability present in the permission map requires its node; an absent
// capability is unconditionally allowed.
type Settings struct {
	permissions map[Capability]string
	filters     []Filter
	logged      bool
	format      FormatFunc
}

// NewSettings creates settings with no gated capabilities, no filters,
// logging disabled, and the default format.
func NewSettings() *Settings {
	return &Settings{
		permissions: make(map[Capability]string),
		format:      DefaultFormat,
	}
}

// RequirePermission gates a capability behind a permission node.
func (s *Settings) RequirePermission(capability Capability, node string) {
	s.permissions[capability] = node
}

// ClearPermission removes the gate on a capability.
func (s *Settings) ClearPermission(capability Capability) {
	delete(s.permissions, capability)
}

// PermissionNode returns the node gating a capability, if any.
func (s *Settings) PermissionNode(capability Capability) (string, bool) {
	node, ok := s.permissions[capability]
	return node, ok
}

// Allows reports whether the participant may exercise the capability.
func (s *Settings) Allows(capability Capability, participant *Participant) bool {
	node, ok := s.permissions[capability]
	if !ok {
		return true
	}
	return participant.HasPermission(node)
}

// AddFilter appends a filter to the moderation chain.
func (s *Settings) AddFilter(filter Filter) {
	if filter == nil {
		return
	}
	s.filters = append(s.filters, filter)
}

// Filters returns the ordered moderation chain.
func (s *Settings) Filters() []Filter {
	return s.filters
}

// Logged reports whether delivered messages are handed to the recorder.
func (s *Settings) Logged() bool {
	return s.logged
}

// SetLogged toggles message logging.
func (s *Settings) SetLogged(logged bool) {
	s.logged = logged
}

// SetFormat replaces the display format. A nil format restores the default.
func (s *Settings) SetFormat(format FormatFunc) {
	if format == nil {
		format = DefaultFormat
	}
	s.format = format
}

// Format renders one message line for a recipient.
func (s *Settings) Format(channelName string, sender *Participant, content, color string) string {
	return s.format(channelName, sender, content, color)
}
