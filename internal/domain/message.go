package domain

import (
	"strings"
	"time"
)

// Message is a persisted direct message. Documents are immutable once stored.
type Message struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Sender       string    `bson:"sender" json:"sender"`
	Receiver     string    `bson:"receiver" json:"receiver"`
	Body         string    `bson:"message" json:"body"`
	Participants []string  `bson:"participants" json:"participants"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
}

// NewMessage builds an unsaved message. Participants hold the normalized
// endpoints so membership queries match regardless of letter case.
func NewMessage(sender, receiver, body string) *Message {
	return &Message{
		Sender:       sender,
		Receiver:     receiver,
		Body:         body,
		Participants: []string{Normalize(sender), Normalize(receiver)},
	}
}

// Key returns the conversation the message belongs to.
func (m *Message) Key() ConversationKey {
	return Key(m.Sender, m.Receiver)
}

// Counterpart returns the other endpoint of m relative to user, in the
// casing stored on the message.
func (m *Message) Counterpart(user string) string {
	if SameIdentity(m.Sender, user) {
		return m.Receiver
	}
	return m.Sender
}

// InboxEntry summarises the latest message exchanged with one counterpart.
type InboxEntry struct {
	Counterpart     string    `json:"counterpart"`
	LastMessageBody string    `json:"lastMessageBody"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

// SortOrder selects the timestamp ordering of a store query.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Validate rejects messages that must never reach the store. maxBody <= 0
// disables the length check.
func (m *Message) Validate(maxBody int) error {
	switch {
	case blank(m.Sender):
		return InvalidPayload("sender is required")
	case blank(m.Receiver):
		return InvalidPayload("receiver is required")
	case blank(m.Body):
		return InvalidPayload("message is required")
	case maxBody > 0 && len(m.Body) > maxBody:
		return InvalidPayload("message too long")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
