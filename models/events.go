package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"swipechat/errs"
)

// Event names exchanged over the event channel.
const (
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventNewMessage        = "newMessage"
	EventMessageUpdated    = "messageUpdated"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventUserOnline        = "userOnline"
	EventUserOffline       = "userOffline"
	EventLikedYou          = "likedYou"
	EventMatchFound        = "matchFound"
	EventLikeUser          = "likeUser"
	EventMarkMessageSeen   = "markMessageSeen"
	EventMessageSeen       = "messageSeen"
	EventMessageDelivered  = "messageDelivered"

	// EventReconnected is produced locally by the channel after a reconnect.
	EventReconnected = "reconnected"
)

// Event is one named frame on the event channel.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// payloadValidate checks event records against their validate tags. Field
// names in errors are the JSON names seen on the wire.
var payloadValidate = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewEvent marshals payload into an event frame. A nil payload yields no data.
func NewEvent(name string, payload any) (Event, error) {
	if name == "" {
		return Event{}, errors.New("event name is required")
	}
	ev := Event{Name: name}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	ev.Data = raw
	return ev, nil
}

// Decode unmarshals the event data into p, a pointer to a payload record,
// and validates it.
func (e Event) Decode(p any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty data: %w", e.Name, errs.ErrInvalidPayload)
	}
	if err := json.Unmarshal(e.Data, p); err != nil {
		return fmt.Errorf("%s: %v: %w", e.Name, err, errs.ErrInvalidPayload)
	}
	if err := ValidatePayload(p); err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	return nil
}

// ValidatePayload checks a payload record, given by pointer, and normalizes
// it. Failures wrap errs.ErrInvalidPayload.
func ValidatePayload(p any) error {
	if err := payloadValidate.Struct(p); err != nil {
		return fmt.Errorf("%s: %w", describeValidation(err), errs.ErrInvalidPayload)
	}
	if n, ok := p.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	return nil
}

func describeValidation(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err.Error()
	}
	problems := make([]string, 0, len(fields))
	for _, fe := range fields {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "required_without":
			problems = append(problems, fe.Field()+" or "+lowerFirst(fe.Param())+" is required")
		default:
			problems = append(problems, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(problems, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ConversationRef is the payload of joinConversation and leaveConversation.
type ConversationRef struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// SendMessagePayload is the outbound sendMessage record.
type SendMessagePayload struct {
	ConversationID string    `json:"conversationId" validate:"required"`
	Sender         UserRef   `json:"sender"`
	Content        string    `json:"content" validate:"required"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TypingPayload is carried by typing and stopTyping in both directions. Peers
// may identify the typer by id, by name or both.
type TypingPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserName       string `json:"userName" validate:"required_without=UserID"`
	UserID         string `json:"userId,omitempty" validate:"required_without=UserName"`
}

// PresencePayload is carried by userOnline and userOffline.
type PresencePayload struct {
	UserID string `json:"userId" validate:"required"`
}

// LikedPayload is the inbound likedYou record.
type LikedPayload struct {
	FromUserID string `json:"fromUserId" validate:"required"`
	Name       string `json:"name"`
}

// MatchPayload is the inbound matchFound record. The conversation is
// optional; when present it needs an id.
type MatchPayload struct {
	User         User          `json:"user"`
	Conversation *Conversation `json:"convo,omitempty" validate:"omitempty"`
	Name         string        `json:"name"`
}

// LikeUserPayload is the outbound likeUser record.
type LikeUserPayload struct {
	ToUserID string `json:"toUserId" validate:"required"`
}

// ReceiptPayload is carried by markMessageSeen, messageSeen and messageDelivered.
type ReceiptPayload struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId" validate:"required"`
}

// MessagePayload is a full message record as carried by newMessage and messageUpdated.
type MessagePayload struct {
	Message
}

// StatusForEvent maps userOnline/userOffline to a presence status.
func StatusForEvent(name string) (Status, error) {
	var status Status
	switch name {
	case EventUserOnline:
		status = StatusOnline
	case EventUserOffline:
		status = StatusOffline
	}
	if err := validateStatus(status); err != nil {
		return "", err
	}
	return status, nil
}
