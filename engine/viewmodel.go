package engine

import (
	"time"

	"swipechat/models"
)

// MessageStatus is the display status of one of the current user's messages.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// ViewModel is a point-in-time projection of engine state for rendering.
type ViewModel struct {
	Self          models.User
	Conversations []ConversationView
	Open          *ThreadView
}

// ConversationView is one row of the conversation list.
type ConversationView struct {
	ID           string
	Title        string
	IsGroup      bool
	Participants []models.User
	LastMessage  *models.Message
	UpdatedAt    time.Time
	UnreadCount  int
	TypingText   string
	Online       bool
}

// ThreadView is the open conversation.
type ThreadView struct {
	ConversationID string
	Title          string
	Loaded         bool
	Participants   []models.User
	Messages       []MessageView
	TypingText     string
}

// MessageView pairs a message with how it should be shown.
type MessageView struct {
	models.Message
	Mine   bool
	Status MessageStatus
}

// ViewModel returns the list in display order and the open thread, if any.
// The result shares no memory with the engine.
func (e *Engine) ViewModel() ViewModel {
	e.mu.Lock()
	defer e.mu.Unlock()

	vm := ViewModel{
		Self:          e.self,
		Conversations: make([]ConversationView, 0, len(e.order)),
	}
	for _, st := range e.order {
		conv := st.conv.Clone()
		view := ConversationView{
			ID:           conv.ID,
			Title:        conv.Title(e.self.ID),
			IsGroup:      conv.IsGroup,
			Participants: conv.Participants,
			LastMessage:  conv.LastMessage,
			UpdatedAt:    conv.UpdatedAt,
			UnreadCount:  e.unreadLocked(st),
		}
		view.TypingText, _ = e.typing.DisplayText(conv.ID)
		for _, p := range conv.Others(e.self.ID) {
			if p.Status == models.StatusOnline {
				view.Online = true
				break
			}
		}
		vm.Conversations = append(vm.Conversations, view)

		if st.open && conv.ID == e.openID {
			thread := &ThreadView{
				ConversationID: conv.ID,
				Title:          view.Title,
				Loaded:         st.loaded,
				Participants:   conv.Participants,
				Messages:       make([]MessageView, 0, len(conv.Messages)),
				TypingText:     view.TypingText,
			}
			for _, m := range conv.Messages {
				thread.Messages = append(thread.Messages, e.messageView(conv, m))
			}
			vm.Open = thread
		}
	}
	return vm
}

func (e *Engine) unreadLocked(st *conversationState) int {
	if st.open && st.loaded {
		return models.CountUnread(st.conv.Messages, e.self.ID)
	}
	return st.unread
}

func (e *Engine) messageView(conv models.Conversation, m models.Message) MessageView {
	view := MessageView{Message: m, Mine: m.Sender.ID == e.self.ID}
	if !view.Mine {
		return view
	}
	switch {
	case m.IsPending():
		view.Status = StatusSending
	case seenByPeer(conv, m, e.self.ID):
		view.Status = StatusSeen
	case containsOther(m.DeliveredTo, e.self.ID):
		view.Status = StatusDelivered
	default:
		view.Status = StatusSent
	}
	return view
}

// seenByPeer reports whether any participant other than selfID saw m.
func seenByPeer(conv models.Conversation, m models.Message, selfID string) bool {
	for _, id := range m.SeenBy {
		if id == selfID {
			continue
		}
		if len(conv.Participants) == 0 {
			return true
		}
		for _, p := range conv.Participants {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

func containsOther(ids models.IDSet, selfID string) bool {
	for _, id := range ids {
		if id != selfID {
			return true
		}
	}
	return false
}
