package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipechat/errs"
)

func TestMessageDecodesPopulatedAndBareReferences(t *testing.T) {
	raw := `{
		"_id": "m1",
		"conversation": "c1",
		"sender": {"_id": "u2", "name": "Ama Owusu"},
		"content": "hi",
		"createdAt": "2024-05-01T10:00:00.000Z",
		"seenBy": ["u1", {"_id": "u3", "name": "Bo"}, "u1"]
	}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "u2", msg.Sender.ID)
	assert.Equal(t, "Ama Owusu", msg.Sender.Name)
	assert.Equal(t, IDSet{"u1", "u3"}, msg.SeenBy)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msg.CreatedAt.UTC())

	var bare Message
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"m2","conversation":"c1","sender":"u9","content":"x"}`), &bare))
	assert.Equal(t, "u9", bare.Sender.ID)
}

func TestEventDecodeValidatesPayload(t *testing.T) {
	ev, err := NewEvent(EventTyping, TypingPayload{ConversationID: "c1", UserName: "Ama"})
	require.NoError(t, err)

	var typing TypingPayload
	require.NoError(t, ev.Decode(&typing))
	assert.Equal(t, "Ama", typing.UserName)

	bad := Event{Name: EventTyping, Data: json.RawMessage(`{"userName":"Ama"}`)}
	require.ErrorIs(t, bad.Decode(&typing), errs.ErrInvalidPayload)

	empty := Event{Name: EventUserOnline}
	var presence PresencePayload
	require.ErrorIs(t, empty.Decode(&presence), errs.ErrInvalidPayload)

	garbage := Event{Name: EventMessageSeen, Data: json.RawMessage(`[1,2]`)}
	var receipt ReceiptPayload
	require.ErrorIs(t, garbage.Decode(&receipt), errs.ErrInvalidPayload)
}

func TestMessagePayloadNormalizesState(t *testing.T) {
	ev := Event{Name: EventNewMessage, Data: json.RawMessage(`{"_id":"m1","conversation":"c1","sender":{"_id":"u2"},"content":"yo"}`)}

	var p MessagePayload
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, MessageStateConfirmed, p.State)

	missing := Event{Name: EventNewMessage, Data: json.RawMessage(`{"_id":"m1","sender":{"_id":"u2"}}`)}
	require.ErrorIs(t, missing.Decode(&p), errs.ErrInvalidPayload)
}

func TestConversationTitle(t *testing.T) {
	self := User{ID: "me", Name: "Me Myself"}
	direct := Conversation{ID: "c1", Participants: []User{self, {ID: "u2", Name: "Ama Owusu"}}}
	assert.Equal(t, "Ama Owusu", direct.Title("me"))

	group := Conversation{ID: "c2", IsGroup: true, Participants: []User{self, {ID: "u2", Name: "Ama Owusu"}, {ID: "u3", Name: "Bo Li"}}}
	assert.Equal(t, "Ama, Bo", group.Title("me"))

	lonely := Conversation{ID: "c3", IsGroup: true, Participants: []User{self}}
	assert.Equal(t, DefaultGroupTitle, lonely.Title("me"))
}

func TestCountUnreadAndClone(t *testing.T) {
	msgs := []Message{
		{ID: "1", Sender: UserRef{ID: "u2"}},
		{ID: "2", Sender: UserRef{ID: "u2"}, SeenBy: IDSet{"me"}},
		{ID: "3", Sender: UserRef{ID: "me"}},
		{ID: "4", Sender: UserRef{ID: "u3"}},
	}
	assert.Equal(t, 2, CountUnread(msgs, "me"))

	conv := Conversation{ID: "c1", Messages: msgs}
	clone := conv.Clone()
	clone.Messages[1].SeenBy[0] = "other"
	assert.Equal(t, "me", conv.Messages[1].SeenBy[0])
}

func TestStatusForEvent(t *testing.T) {
	status, err := StatusForEvent(EventUserOffline)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status)

	_, err = StatusForEvent(EventTyping)
	require.Error(t, err)
}

func TestValidatePayloadUsesWireNames(t *testing.T) {
	err := ValidatePayload(&ReceiptPayload{UserID: "u2"})
	require.ErrorIs(t, err, errs.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "messageId is required")

	err = ValidatePayload(&TypingPayload{ConversationID: "c1"})
	require.ErrorIs(t, err, errs.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "userName or userID is required")

	require.NoError(t, ValidatePayload(&TypingPayload{ConversationID: "c1", UserID: "u2"}))
	require.NoError(t, ValidatePayload(&LikeUserPayload{ToUserID: "u7"}))
	require.ErrorIs(t, ValidatePayload(&LikeUserPayload{}), errs.ErrInvalidPayload)
}

func TestMatchPayloadConversationIsOptional(t *testing.T) {
	var p MatchPayload
	ev := Event{Name: EventMatchFound, Data: json.RawMessage(`{"user":{"_id":"u7","name":"Chidi"}}`)}
	require.NoError(t, ev.Decode(&p))
	assert.Nil(t, p.Conversation)

	withConvo := Event{Name: EventMatchFound, Data: json.RawMessage(`{"user":{"_id":"u7"},"convo":{"_id":"c9","lastMessage":{"content":"hi"}}}`)}
	require.NoError(t, withConvo.Decode(&p))
	assert.Equal(t, "c9", p.Conversation.ID)

	noID := Event{Name: EventMatchFound, Data: json.RawMessage(`{"user":{"_id":"u7"},"convo":{"isGroup":false}}`)}
	require.ErrorIs(t, noID.Decode(&MatchPayload{}), errs.ErrInvalidPayload)

	noUser := Event{Name: EventMatchFound, Data: json.RawMessage(`{"user":{"name":"Chidi"}}`)}
	require.ErrorIs(t, noUser.Decode(&MatchPayload{}), errs.ErrInvalidPayload)
}
