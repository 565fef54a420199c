package models

import (
	"strings"
	"time"
)

// DefaultGroupTitle is shown for a group with no other named participant.
const DefaultGroupTitle = "Group Chat"

// Conversation is a one-to-one or group conversation. Messages is only
// populated for the conversation that is currently open.
type Conversation struct {
	ID           string    `json:"_id" validate:"required"`
	Participants []User    `json:"participants"`
	IsGroup      bool      `json:"isGroup"`
	LastMessage  *Message  `json:"lastMessage,omitempty" validate:"-"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Messages     []Message `json:"messages,omitempty"`
	UnreadCount  *int      `json:"unreadCount,omitempty"`
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Participants = append([]User(nil), c.Participants...)
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		out.LastMessage = &last
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	if c.UnreadCount != nil {
		n := *c.UnreadCount
		out.UnreadCount = &n
	}
	return out
}

// Others returns every participant except selfID.
func (c Conversation) Others(selfID string) []User {
	out := make([]User, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID != selfID {
			out = append(out, p)
		}
	}
	return out
}

// Title is the display name from selfID's point of view.
func (c Conversation) Title(selfID string) string {
	others := c.Others(selfID)
	if !c.IsGroup {
		if len(others) > 0 && others[0].Name != "" {
			return others[0].Name
		}
		return "Unknown"
	}

	names := make([]string, 0, len(others))
	for _, p := range others {
		if first := p.FirstName(); first != "" {
			names = append(names, first)
		}
	}
	if len(names) == 0 {
		return DefaultGroupTitle
	}
	return strings.Join(names, ", ")
}

// CountUnread counts inbound messages in msgs that selfID has not seen.
func CountUnread(msgs []Message, selfID string) int {
	n := 0
	for _, m := range msgs {
		if m.Sender.ID != selfID && !m.SeenBy.Contains(selfID) {
			n++
		}
	}
	return n
}

// Notification is a social event surfaced to the user.
type Notification struct {
	Kind         NotificationKind
	FromUserID   string
	Name         string
	Conversation *Conversation
}

// NotificationKind distinguishes likes from matches.
type NotificationKind string

const (
	NotificationLiked NotificationKind = "liked"
	NotificationMatch NotificationKind = "match"
)
