package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipechat/errs"
	"swipechat/models"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{API: fixtureAPI(), Emitter: &fakeEmitter{}})
	require.Error(t, err)
	_, err = New(Options{Self: me, Emitter: &fakeEmitter{}})
	require.Error(t, err)
	_, err = New(Options{Self: me, API: fixtureAPI()})
	require.Error(t, err)
}

func TestLoadConversationsSortsAndCountsUnread(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)

	vm := e.ViewModel()
	assert.Equal(t, []string{"c1", "c2", "c3"}, order(vm))
	assert.Equal(t, 2, row(t, vm, "c1").UnreadCount)
	assert.Equal(t, 0, row(t, vm, "c2").UnreadCount)
	assert.Equal(t, "Ama Owusu", row(t, vm, "c1").Title)
	assert.Equal(t, "Ama, Bo", row(t, vm, "c3").Title)
	assert.Nil(t, vm.Open)
}

func TestLoadConversationsFailureKeepsState(t *testing.T) {
	api := fixtureAPI()
	e, _ := newTestEngine(t, api, nil)
	before := e.ViewModel()

	api.mu.Lock()
	api.listErr = &errs.FetchError{Op: "list conversations", Status: 500, Err: errors.New("boom")}
	api.mu.Unlock()

	err := e.LoadConversations(context.Background())
	var fe *errs.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, before, e.ViewModel())
}

func TestRemoteMessageIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)

	msg := message("n1", "c2", bo, "yo", t0.Add(3*time.Minute))
	e.ApplyRemoteMessage(msg)
	e.ApplyRemoteMessage(msg)

	vm := e.ViewModel()
	assert.Equal(t, 1, row(t, vm, "c2").UnreadCount)
	assert.Equal(t, "n1", row(t, vm, "c2").LastMessage.ID)

	require.NoError(t, e.OpenConversation(context.Background(), "c1"))
	e.ApplyRemoteMessage(message("m1", "c1", ama, "hey", t0.Add(2*time.Minute)))
	assert.Len(t, e.ViewModel().Open.Messages, 2)
}

func TestRemoteMessageForUnknownConversationIsIgnored(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	before := e.ViewModel()

	e.ApplyRemoteMessage(message("x1", "nope", bo, "lost", t0.Add(time.Hour)))
	assert.Equal(t, before, e.ViewModel())
}

func TestRemoteMessageMovesConversationToFront(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	head := e.ViewModel().Conversations[0].UpdatedAt

	// An older timestamp still moves the conversation to the front.
	e.ApplyRemoteMessage(message("g1", "c3", bo, "late", t0.Add(-time.Hour)))

	vm := e.ViewModel()
	assert.Equal(t, []string{"c3", "c1", "c2"}, order(vm))
	assert.False(t, vm.Conversations[0].UpdatedAt.Before(head))

	e.ApplyRemoteMessage(message("n1", "c2", bo, "yo", t0.Add(10*time.Minute)))
	assert.Equal(t, []string{"c2", "c3", "c1"}, order(e.ViewModel()))
}

func TestOptimisticSendIsReplacedByEcho(t *testing.T) {
	var failures chan *errs.SendFailure
	e, emitter := newTestEngine(t, fixtureAPI(), func(o *Options) { failures = failureSink(o) })
	ctx := context.Background()
	require.NoError(t, e.OpenConversation(ctx, "c1"))

	id, err := e.SendMessage(ctx, "c1", "  hello  ")
	require.NoError(t, err)
	assert.True(t, models.IsProvisional(id))

	vm := e.ViewModel()
	require.Len(t, vm.Open.Messages, 3)
	pending := vm.Open.Messages[2]
	assert.Equal(t, id, pending.ID)
	assert.Equal(t, "hello", pending.Content)
	assert.Equal(t, StatusSending, pending.Status)
	assert.True(t, pending.Mine)
	assert.Equal(t, id, row(t, vm, "c1").LastMessage.ID)

	require.Eventually(t, func() bool { return emitter.count(models.EventSendMessage) == 1 }, 2*time.Second, 5*time.Millisecond)
	payload, _ := emitter.last(models.EventSendMessage)
	assert.Equal(t, "hello", payload.(models.SendMessagePayload).Content)

	e.ApplyRemoteMessage(message("m9", "c1", me, "hello", time.Now()))

	vm = e.ViewModel()
	require.Len(t, vm.Open.Messages, 3)
	assert.Equal(t, "m9", vm.Open.Messages[2].ID)
	assert.Equal(t, StatusSent, vm.Open.Messages[2].Status)
	assert.Equal(t, "m9", row(t, vm, "c1").LastMessage.ID)

	e.Shutdown()
	assert.Empty(t, failures)
}

func TestSendViaRESTConfirmsWithReturnedRecord(t *testing.T) {
	api := fixtureAPI()
	e, _ := newTestEngine(t, api, func(o *Options) { o.SendTransport = SendViaREST })
	ctx := context.Background()
	require.NoError(t, e.OpenConversation(ctx, "c1"))

	_, err := e.SendMessage(ctx, "c1", "over http")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := e.ViewModel().Open.Messages
		return len(msgs) == 3 && msgs[2].ID == "srv-1"
	}, 2*time.Second, 5*time.Millisecond)

	// The socket echo of the same record arrives afterwards.
	e.ApplyRemoteMessage(message("srv-1", "c1", me, "over http", time.Now()))
	assert.Len(t, e.ViewModel().Open.Messages, 3)
}

func TestSendRejectsBlankAndUnknown(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)

	_, err := e.SendMessage(context.Background(), "c1", "   ")
	require.ErrorIs(t, err, errs.ErrEmptyMessage)
	_, err = e.SendMessage(context.Background(), "nope", "hi")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSendFailureRestoresSummaryAndReturnsText(t *testing.T) {
	api := fixtureAPI()
	api.postErr = &errs.FetchError{Op: "post message", Status: 500, Err: errors.New("database down")}
	api.postGate = make(chan struct{})
	var failures chan *errs.SendFailure
	e, _ := newTestEngine(t, api, func(o *Options) {
		o.SendTransport = SendViaREST
		failures = failureSink(o)
	})

	id, err := e.SendMessage(context.Background(), "c2", "keep me")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1", "c3"}, order(e.ViewModel()))
	close(api.postGate)

	select {
	case failure := <-failures:
		assert.Equal(t, "c2", failure.ConversationID)
		assert.Equal(t, id, failure.ProvisionalID)
		assert.Equal(t, "keep me", failure.Text)
		var fe *errs.FetchError
		assert.ErrorAs(t, failure, &fe)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected send failure")
	}

	vm := e.ViewModel()
	assert.Equal(t, []string{"c1", "c2", "c3"}, order(vm))
	assert.Nil(t, row(t, vm, "c2").LastMessage)
	assert.True(t, row(t, vm, "c2").UpdatedAt.Equal(t0.Add(time.Minute)))
}

func TestSendWithoutEchoTimesOut(t *testing.T) {
	var failures chan *errs.SendFailure
	e, _ := newTestEngine(t, fixtureAPI(), func(o *Options) {
		o.SendTimeout = 50 * time.Millisecond
		failures = failureSink(o)
	})
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))

	_, err := e.SendMessage(context.Background(), "c1", "anyone?")
	require.NoError(t, err)

	select {
	case failure := <-failures:
		assert.ErrorIs(t, failure, ErrEchoTimeout)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected echo timeout")
	}
	vm := e.ViewModel()
	assert.Len(t, vm.Open.Messages, 2)
	assert.Equal(t, "m1", row(t, vm, "c1").LastMessage.ID)
}

func TestSendFailsWhenEmitFails(t *testing.T) {
	var failures chan *errs.SendFailure
	e, emitter := newTestEngine(t, fixtureAPI(), func(o *Options) { failures = failureSink(o) })
	offline := errors.New("offline")
	emitter.setErr(offline)

	_, err := e.SendMessage(context.Background(), "c3", "queued?")
	require.NoError(t, err)

	select {
	case failure := <-failures:
		assert.ErrorIs(t, failure, offline)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected send failure")
	}
}

func TestUnreadAccounting(t *testing.T) {
	api := fixtureAPI()
	e, emitter := newTestEngine(t, api, nil)
	ctx := context.Background()

	n1 := message("n1", "c2", bo, "one", t0.Add(3*time.Minute))
	n2 := message("n2", "c2", bo, "two", t0.Add(4*time.Minute))
	n3 := message("n3", "c2", bo, "three", t0.Add(5*time.Minute))
	for _, m := range []models.Message{n1, n2, n3} {
		e.ApplyRemoteMessage(m)
	}
	assert.Equal(t, 3, row(t, e.ViewModel(), "c2").UnreadCount)

	api.setThread(models.Conversation{ID: "c2", Participants: []models.User{me, bo}, Messages: []models.Message{n1, n2, n3}})
	require.NoError(t, e.OpenConversation(ctx, "c2"))
	assert.Equal(t, 3, row(t, e.ViewModel(), "c2").UnreadCount)

	require.NoError(t, e.MarkSeen("c2", "n3"))
	vm := e.ViewModel()
	assert.Equal(t, 0, row(t, vm, "c2").UnreadCount)
	for _, m := range vm.Open.Messages {
		assert.True(t, m.SeenBy.Contains(me.ID), m.ID)
	}

	payload, ok := emitter.last(models.EventMarkMessageSeen)
	require.True(t, ok)
	assert.Equal(t, models.ReceiptPayload{MessageID: "n3", ConversationID: "c2", UserID: me.ID}, payload)

	e.CloseConversation("c2")
	vm = e.ViewModel()
	assert.Nil(t, vm.Open)
	assert.Equal(t, 0, row(t, vm, "c2").UnreadCount)
}

func TestOpenThreadUnreadIsComputed(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	require.NoError(t, e.OpenConversation(context.Background(), "c2"))

	e.ApplyRemoteMessage(message("n1", "c2", bo, "one", t0.Add(3*time.Minute)))
	assert.Equal(t, 1, row(t, e.ViewModel(), "c2").UnreadCount)

	e.CloseConversation("c2")
	assert.Equal(t, 1, row(t, e.ViewModel(), "c2").UnreadCount)
}

func TestMarkSeenPreconditions(t *testing.T) {
	e, emitter := newTestEngine(t, fixtureAPI(), nil)
	ctx := context.Background()

	require.ErrorIs(t, e.MarkSeen("c1", "m1"), errs.ErrNotOpen)
	require.NoError(t, e.OpenConversation(ctx, "c1"))

	require.ErrorIs(t, e.MarkSeen("c2", "m1"), errs.ErrNotOpen)
	require.ErrorIs(t, e.MarkSeen("c1", "missing"), errs.ErrNotFound)
	require.ErrorIs(t, e.MarkSeen("c1", "m0"), errs.ErrNotNewestInbound)

	require.NoError(t, e.MarkSeen("c1", "m1"))
	require.NoError(t, e.MarkSeen("c1", "m1"))
	assert.Equal(t, 1, emitter.count(models.EventMarkMessageSeen))

	e.ApplyRemoteMessage(message("m9", "c1", me, "mine", time.Now()))
	require.ErrorIs(t, e.MarkSeen("c1", "m9"), errs.ErrNotNewestInbound)
}

func TestMarkSeenConsultsReceiptLedger(t *testing.T) {
	ledger := &fakeLedger{seen: map[string]string{}}
	e, emitter := newTestEngine(t, fixtureAPI(), func(o *Options) { o.Receipts = ledger })
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))

	require.NoError(t, e.MarkSeen("c1", "m1"))
	assert.Equal(t, 1, emitter.count(models.EventMarkMessageSeen))
	seen, err := ledger.HasSeenReceipt("m1")
	require.NoError(t, err)
	assert.True(t, seen)

	e.ApplyRemoteMessage(message("m2", "c1", ama, "again", time.Now()))
	require.NoError(t, ledger.InsertSeenReceipt("c1", "m2", 0))
	require.NoError(t, e.MarkSeen("c1", "m2"))
	assert.Equal(t, 1, emitter.count(models.EventMarkMessageSeen))
	assert.Equal(t, 0, row(t, e.ViewModel(), "c1").UnreadCount)
}

func TestAutoMarkSeen(t *testing.T) {
	e, emitter := newTestEngine(t, fixtureAPI(), func(o *Options) { o.AutoMarkSeen = true })
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))
	assert.Equal(t, 1, emitter.count(models.EventMarkMessageSeen))
	assert.Equal(t, 0, row(t, e.ViewModel(), "c1").UnreadCount)

	e.ApplyRemoteMessage(message("m2", "c1", ama, "still there?", time.Now()))
	assert.Equal(t, 2, emitter.count(models.EventMarkMessageSeen))
	assert.Equal(t, 0, row(t, e.ViewModel(), "c1").UnreadCount)
}

func TestStaleOpenIsDiscarded(t *testing.T) {
	api := fixtureAPI()
	e, emitter := newTestEngine(t, api, nil)
	ctx := context.Background()

	gate := api.block("c1")
	done := make(chan error, 1)
	go func() { done <- e.OpenConversation(ctx, "c1") }()
	require.Eventually(t, func() bool { return e.OpenConversationID() == "c1" }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.OpenConversation(ctx, "c2"))
	close(gate)
	require.ErrorIs(t, <-done, ErrSuperseded)

	vm := e.ViewModel()
	require.NotNil(t, vm.Open)
	assert.Equal(t, "c2", vm.Open.ConversationID)
	assert.Equal(t, []string{
		models.EventJoinConversation,
		models.EventLeaveConversation,
		models.EventJoinConversation,
	}, emitter.names())
}

func TestOpenFailureRollsBack(t *testing.T) {
	e, emitter := newTestEngine(t, fixtureAPI(), nil)
	e.ApplyMatch(models.MatchPayload{
		User:         models.User{ID: "u9", Name: "Kofi"},
		Conversation: &models.Conversation{ID: "c9", Participants: []models.User{me, {ID: "u9", Name: "Kofi"}}},
	})

	err := e.OpenConversation(context.Background(), "c9")
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, "", e.OpenConversationID())
	assert.Nil(t, e.ViewModel().Open)
	assert.Equal(t, 1, emitter.count(models.EventLeaveConversation))

	require.ErrorIs(t, e.OpenConversation(context.Background(), "unknown"), errs.ErrNotFound)
}

func TestPendingSurvivesHistoryFetch(t *testing.T) {
	api := fixtureAPI()
	e, _ := newTestEngine(t, api, nil)
	ctx := context.Background()

	gate := api.block("c1")
	done := make(chan error, 1)
	go func() { done <- e.OpenConversation(ctx, "c1") }()
	require.Eventually(t, func() bool { return e.OpenConversationID() == "c1" }, 2*time.Second, 5*time.Millisecond)

	id, err := e.SendMessage(ctx, "c1", "while loading")
	require.NoError(t, err)
	vm := e.ViewModel()
	assert.False(t, vm.Open.Loaded)
	require.Len(t, vm.Open.Messages, 1)

	close(gate)
	require.NoError(t, <-done)

	vm = e.ViewModel()
	assert.True(t, vm.Open.Loaded)
	require.Len(t, vm.Open.Messages, 3)
	assert.Equal(t, "m0", vm.Open.Messages[0].ID)
	assert.Equal(t, id, vm.Open.Messages[2].ID)
	assert.Equal(t, StatusSending, vm.Open.Messages[2].Status)
}

func TestPendingMatchedByFetchedHistory(t *testing.T) {
	api := fixtureAPI()
	var failures chan *errs.SendFailure
	e, _ := newTestEngine(t, api, func(o *Options) { failures = failureSink(o) })
	ctx := context.Background()

	gate := api.block("c1")
	done := make(chan error, 1)
	go func() { done <- e.OpenConversation(ctx, "c1") }()
	require.Eventually(t, func() bool { return e.OpenConversationID() == "c1" }, 2*time.Second, 5*time.Millisecond)

	_, err := e.SendMessage(ctx, "c1", "echoed")
	require.NoError(t, err)

	thread := fixtureAPI().threads["c1"]
	thread.Messages = append(thread.Messages, message("m5", "c1", me, "echoed", time.Now()))
	api.setThread(thread)
	close(gate)
	require.NoError(t, <-done)

	vm := e.ViewModel()
	require.Len(t, vm.Open.Messages, 3)
	assert.Equal(t, "m5", vm.Open.Messages[2].ID)
	assert.Equal(t, StatusSent, vm.Open.Messages[2].Status)

	// The socket echo is now a duplicate.
	e.ApplyRemoteMessage(message("m5", "c1", me, "echoed", time.Now()))
	assert.Len(t, e.ViewModel().Open.Messages, 3)

	e.Shutdown()
	assert.Empty(t, failures)
}

func TestReceiptsDriveMessageStatus(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))
	e.ApplyRemoteMessage(message("m9", "c1", me, "ping", time.Now()))

	status := func() MessageStatus { return e.ViewModel().Open.Messages[2].Status }
	assert.Equal(t, StatusSent, status())

	e.ApplyDelivered(models.ReceiptPayload{MessageID: "m9", ConversationID: "c1", UserID: ama.ID})
	assert.Equal(t, StatusDelivered, status())

	e.ApplySeen(models.ReceiptPayload{MessageID: "m9", UserID: ama.ID})
	assert.Equal(t, StatusSeen, status())

	// Inbound messages carry no status.
	assert.Equal(t, MessageStatus(""), e.ViewModel().Open.Messages[0].Status)
}

func TestSeenFromOtherDeviceClearsUnread(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	require.Equal(t, 2, row(t, e.ViewModel(), "c1").UnreadCount)

	e.ApplySeen(models.ReceiptPayload{MessageID: "m0", ConversationID: "c1", UserID: me.ID})
	assert.Equal(t, 2, row(t, e.ViewModel(), "c1").UnreadCount)

	e.ApplySeen(models.ReceiptPayload{MessageID: "m1", ConversationID: "c1", UserID: me.ID})
	assert.Equal(t, 0, row(t, e.ViewModel(), "c1").UnreadCount)
}

func TestMessageUpdatedKeepsReceipts(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))
	require.NoError(t, e.MarkSeen("c1", "m1"))

	updated := message("m1", "c1", ama, "hey (edited)", t0.Add(2*time.Minute))
	e.ApplyMessageUpdated(updated)

	got := e.ViewModel().Open.Messages[1]
	assert.Equal(t, "hey (edited)", got.Content)
	assert.True(t, got.SeenBy.Contains(me.ID))
}

func TestPresenceOverlaysParticipants(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)

	e.ApplyPresence(ama.ID, models.StatusOnline)
	vm := e.ViewModel()
	assert.True(t, row(t, vm, "c1").Online)
	assert.True(t, row(t, vm, "c3").Online)
	assert.False(t, row(t, vm, "c2").Online)
	assert.Equal(t, []string{"c1", "c2", "c3"}, order(vm))

	// A reload keeps the live status over the snapshot's stale one.
	require.NoError(t, e.LoadConversations(context.Background()))
	assert.True(t, row(t, e.ViewModel(), "c1").Online)

	e.ApplyPresence(ama.ID, models.StatusOffline)
	assert.False(t, row(t, e.ViewModel(), "c1").Online)
}

func TestTypingIndicatorClearedByMessage(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)

	e.ApplyTypingStart("c1", ama.ID, "Ama")
	e.ApplyTypingStart("c1", "", "me myself")
	assert.Equal(t, "Ama is typing…", row(t, e.ViewModel(), "c1").TypingText)

	e.ApplyRemoteMessage(message("m2", "c1", ama, "done typing", time.Now()))
	assert.Equal(t, "", row(t, e.ViewModel(), "c1").TypingText)
}

func TestNotifyTypingSchedulesStop(t *testing.T) {
	e, emitter := newTestEngine(t, fixtureAPI(), func(o *Options) { o.TypingIdle = 40 * time.Millisecond })

	e.NotifyTyping("c1")
	e.NotifyTyping("c1")
	assert.Equal(t, 1, emitter.count(models.EventTyping))
	require.Eventually(t, func() bool { return emitter.count(models.EventStopTyping) == 1 }, 2*time.Second, 5*time.Millisecond)

	e.NotifyTyping("c1")
	assert.Equal(t, 2, emitter.count(models.EventTyping))
	_, err := e.SendMessage(context.Background(), "c1", "sent")
	require.NoError(t, err)
	assert.Equal(t, 2, emitter.count(models.EventStopTyping))
}

func TestShutdownRejectsFurtherSends(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	e.Shutdown()

	_, err := e.SendMessage(context.Background(), "c1", "late")
	require.ErrorIs(t, err, ErrClosed)
}

func TestRecentIDsEvictsOldest(t *testing.T) {
	r := newRecentIDs(2)
	r.Add("a")
	r.Add("b")
	r.Add("a")
	r.Add("c")
	assert.False(t, r.Has("a"))
	assert.True(t, r.Has("b"))
	assert.True(t, r.Has("c"))
}

func TestReloadDoesNotHideLiveMessageFromOpenThread(t *testing.T) {
	api := fixtureAPI()
	e, _ := newTestEngine(t, api, nil)
	ctx := context.Background()
	require.NoError(t, e.OpenConversation(ctx, "c1"))

	// The list snapshot already knows m2; the thread learns it from the event.
	m2 := message("m2", "c1", ama, "still up?", t0.Add(3*time.Minute))
	api.mu.Lock()
	api.conversations[1].LastMessage = &m2
	api.conversations[1].UpdatedAt = m2.CreatedAt
	api.mu.Unlock()
	require.NoError(t, e.LoadConversations(ctx))

	e.ApplyRemoteMessage(m2)
	e.ApplyRemoteMessage(m2)

	ids := make([]string, 0, 3)
	for _, m := range e.ViewModel().Open.Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids)
}

func TestAnnouncePresenceEmitsSelf(t *testing.T) {
	e, emitter := newTestEngine(t, fixtureAPI(), nil)

	require.NoError(t, e.AnnouncePresence(context.Background()))
	payload, ok := emitter.last(models.EventUserOnline)
	require.True(t, ok)
	assert.Equal(t, models.PresencePayload{UserID: me.ID}, payload)

	e.Shutdown()
	require.ErrorIs(t, e.AnnouncePresence(context.Background()), ErrClosed)
	assert.Equal(t, 1, emitter.count(models.EventUserOnline))
}

func TestMessageUpdatedIgnoredAfterShutdown(t *testing.T) {
	e, _ := newTestEngine(t, fixtureAPI(), nil)
	require.NoError(t, e.OpenConversation(context.Background(), "c1"))
	e.Shutdown()

	e.ApplyMessageUpdated(message("m1", "c1", ama, "hey (edited)", t0.Add(2*time.Minute)))
	assert.Equal(t, "hey", e.ViewModel().Open.Messages[1].Content)
}
