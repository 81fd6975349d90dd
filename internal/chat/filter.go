package chat

// Filter is one moderation predicate over a participant-authored send.
//
// Filters run only for sends, never for system broadcasts, and the chain
// short-circuits on the first deny: no recipient is contacted and no log
// row is written.
type Filter interface {
	Allow(channel Channel, sender *Participant, content string) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(channel Channel, sender *Participant, content string) bool

// Allow implements Filter.
func (f FilterFunc) Allow(channel Channel, sender *Participant, content string) bool {
	return f(channel, sender, content)
}

func filtersAllow(channel Channel, sender *Participant, content string, filters []Filter) bool {
	for _, filter := range filters {
		if !filter.Allow(channel, sender, content) {
			return false
		}
	}
	return true
}
