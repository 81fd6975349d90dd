package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable record of one channel message.
//
// The same value is handed to the recorder for every recipient; per-recipient
// formatting happens at delivery time and never touches the logged copy.
type Message struct {
	ChannelName string
	SenderID    uuid.UUID
	Sender      *Participant
	Content     string
	SentAt      time.Time
}

// System reports whether the message has no participant author.
func (m Message) System() bool {
	return m.SenderID == uuid.Nil
}
