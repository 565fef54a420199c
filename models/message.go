package models

import (
	"strings"
	"time"
)

// ProvisionalIDPrefix marks ids minted locally for optimistic messages.
const ProvisionalIDPrefix = "temp_"

// MessageState tracks an optimistic message through confirmation.
type MessageState string

const (
	MessageStatePending   MessageState = "pending"
	MessageStateConfirmed MessageState = "confirmed"
	MessageStateFailed    MessageState = "failed"
)

// Message is a chat message. Server records decode as confirmed.
type Message struct {
	ID             string       `json:"_id" validate:"required"`
	ConversationID string       `json:"conversation" validate:"required"`
	Sender         UserRef      `json:"sender"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"createdAt"`
	SeenBy         IDSet        `json:"seenBy,omitempty"`
	DeliveredTo    IDSet        `json:"deliveredTo,omitempty"`
	State          MessageState `json:"-"`
}

// IsPending reports whether the message still awaits its server echo.
func (m Message) IsPending() bool {
	return m.State == MessageStatePending
}

// IsProvisional reports whether id was minted locally.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalIDPrefix)
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	out.SeenBy = append(IDSet(nil), m.SeenBy...)
	out.DeliveredTo = append(IDSet(nil), m.DeliveredTo...)
	return out
}

// Normalize fills the confirmed state for decoded server records.
func (m *Message) Normalize() {
	if m.State == "" {
		m.State = MessageStateConfirmed
	}
}
