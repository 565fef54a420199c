// Package engine reconciles the client-side view of conversations with
// optimistic local sends and remote events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swipechat/errs"
	"swipechat/models"
)

const (
	// SendViaSocket dispatches outgoing messages as sendMessage events and
	// waits for the newMessage echo.
	SendViaSocket = "socket"
	// SendViaREST dispatches outgoing messages with a REST POST.
	SendViaREST = "rest"
	// DefaultSendTimeout bounds dispatch plus echo of one outgoing message.
	DefaultSendTimeout = 30 * time.Second
	// DefaultTypingIdle sends stopTyping after local input goes quiet.
	DefaultTypingIdle = 1500 * time.Millisecond
	// DefaultRecentWindow is how many confirmed ids per conversation are
	// remembered for duplicate detection when its thread is not loaded.
	DefaultRecentWindow = 256

	// pendingMatchSkew bounds how much older than a pending message a fetched
	// confirmed copy may look and still be treated as its echo.
	pendingMatchSkew = time.Minute
)

var (
	// ErrSuperseded is returned by OpenConversation when another open or a
	// close replaced it before the history arrived.
	ErrSuperseded = errors.New("engine: open superseded")
	// ErrEchoTimeout indicates a socket send whose echo never arrived.
	ErrEchoTimeout = errors.New("engine: no confirmation from server")
	// ErrClosed indicates use of the engine after Shutdown.
	ErrClosed = errors.New("engine: closed")
)

// API is the REST call contract the engine consumes.
type API interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	PostMessage(ctx context.Context, conversationID, content string) (*models.Message, error)
}

// Emitter sends outbound events on the event channel.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any) error
}

// ReceiptLedger persists seen receipts so a receipt is emitted once per
// message across restarts.
type ReceiptLedger interface {
	HasSeenReceipt(messageID string) (bool, error)
	InsertSeenReceipt(conversationID, messageID string, seenAt int64) error
}

// Options controls runtime behavior of Engine.
type Options struct {
	Self          models.User
	API           API
	Emitter       Emitter
	Receipts      ReceiptLedger
	Logger        *zap.Logger
	Now           func() time.Time
	TypingTTL     time.Duration
	TypingIdle    time.Duration
	SendTransport string
	SendTimeout   time.Duration
	AutoMarkSeen  bool
	RecentWindow  int
	OnSendFailure func(*errs.SendFailure)
}

// Engine owns the conversation list and the open thread. Every operation
// runs to completion under one lock; network I/O happens outside it.
type Engine struct {
	self          models.User
	api           API
	emitter       Emitter
	receipts      ReceiptLedger
	logger        *zap.Logger
	now           func() time.Time
	typingIdle    time.Duration
	sendTransport string
	sendTimeout   time.Duration
	autoMarkSeen  bool
	recentWindow  int
	onSendFailure func(*errs.SendFailure)

	typing   *TypingAggregator
	presence *PresenceTracker

	mu       sync.Mutex
	order    []*conversationState
	byID     map[string]*conversationState
	openID   string
	openSeq  uint64
	inflight map[string]*inflightSend
	outgoing map[string]*localTyping
	closed   bool

	// emitMu keeps outbound events in the order their mutations committed.
	emitMu sync.Mutex

	changes       chan struct{}
	notifications chan models.Notification
	stop          chan struct{}
	dispatchWG    sync.WaitGroup
	shutdownOnce  sync.Once
}

type conversationState struct {
	conv   models.Conversation
	open   bool
	loaded bool
	unread int
	recent *recentIDs
}

type inflightSend struct {
	provisionalID  string
	conversationID string
	content        string
	createdAt      time.Time
	prevLast       *models.Message
	prevUpdatedAt  time.Time
	confirmed      chan struct{}
}

type localTyping struct {
	timer    *time.Timer
	lastSent time.Time
}

type outbound struct {
	name    string
	payload any
}

// New validates options and returns an engine with an empty list.
func New(options Options) (*Engine, error) {
	if options.Self.ID == "" {
		return nil, errors.New("engine: current user id is required")
	}
	if options.API == nil {
		return nil, errors.New("engine: API is required")
	}
	if options.Emitter == nil {
		return nil, errors.New("engine: emitter is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	typingIdle := options.TypingIdle
	if typingIdle <= 0 {
		typingIdle = DefaultTypingIdle
	}
	sendTimeout := options.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	transport := options.SendTransport
	if transport != SendViaREST {
		transport = SendViaSocket
	}
	window := options.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}

	e := &Engine{
		self:          options.Self,
		api:           options.API,
		emitter:       options.Emitter,
		receipts:      options.Receipts,
		logger:        logger.Named("engine"),
		now:           now,
		typingIdle:    typingIdle,
		sendTransport: transport,
		sendTimeout:   sendTimeout,
		autoMarkSeen:  options.AutoMarkSeen,
		recentWindow:  window,
		onSendFailure: options.OnSendFailure,
		presence:      NewPresenceTracker(),
		byID:          make(map[string]*conversationState),
		inflight:      make(map[string]*inflightSend),
		outgoing:      make(map[string]*localTyping),
		changes:       make(chan struct{}, 1),
		notifications: make(chan models.Notification, 32),
		stop:          make(chan struct{}),
	}
	e.typing = NewTypingAggregator(TypingOptions{
		SelfID:   options.Self.ID,
		SelfName: options.Self.Name,
		TTL:      options.TypingTTL,
		Now:      now,
		OnExpire: func(string) { e.notify() },
	})
	return e, nil
}

// Self returns the current user.
func (e *Engine) Self() models.User {
	return e.self
}

// Changes signals that the view model may have changed. Signals coalesce.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

// Notifications delivers likes and matches. Notifications are dropped when
// the buffer is full.
func (e *Engine) Notifications() <-chan models.Notification {
	return e.notifications
}

// Typing exposes the remote typing aggregator.
func (e *Engine) Typing() *TypingAggregator {
	return e.typing
}

// Presence exposes the presence tracker.
func (e *Engine) Presence() *PresenceTracker {
	return e.presence
}

// LoadConversations replaces the list with a REST snapshot. On failure the
// current list is left untouched.
func (e *Engine) LoadConversations(ctx context.Context) error {
	conversations, err := e.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.replaceListLocked(conversations)
	e.mu.Unlock()

	e.logger.Debug("conversations loaded", zap.Int("count", len(conversations)))
	e.notify()
	return nil
}

func (e *Engine) replaceListLocked(conversations []models.Conversation) {
	next := make([]*conversationState, 0, len(conversations))
	byID := make(map[string]*conversationState, len(conversations))

	for _, conv := range conversations {
		if conv.ID == "" {
			continue
		}
		if _, dup := byID[conv.ID]; dup {
			continue
		}

		st := e.byID[conv.ID]
		if st == nil {
			st = &conversationState{recent: newRecentIDs(e.recentWindow)}
		}

		embedded := conv.Messages
		for _, m := range embedded {
			st.recent.Add(m.ID)
		}
		if conv.LastMessage != nil {
			st.recent.Add(conv.LastMessage.ID)
		}

		switch {
		case conv.UnreadCount != nil:
			st.unread = *conv.UnreadCount
		case len(embedded) > 0:
			st.unread = models.CountUnread(embedded, e.self.ID)
		case !st.open:
			st.unread = 0
		}

		fresh := conv.Clone()
		fresh.Messages = nil
		fresh.UnreadCount = nil
		if st.open {
			fresh.Messages = st.conv.Messages
			if last := lastMessage(st.conv.Messages); last != nil && (fresh.LastMessage == nil || !last.CreatedAt.Before(fresh.LastMessage.CreatedAt)) {
				copyLast := last.Clone()
				fresh.LastMessage = &copyLast
			}
			if fresh.UpdatedAt.Before(st.conv.UpdatedAt) {
				fresh.UpdatedAt = st.conv.UpdatedAt
			}
		}
		st.conv = fresh
		e.applyPresenceLocked(&st.conv)

		next = append(next, st)
		byID[conv.ID] = st
	}

	// Keep the open conversation even if the snapshot no longer lists it.
	if open := e.byID[e.openID]; open != nil && byID[e.openID] == nil {
		next = append(next, open)
		byID[e.openID] = open
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].conv.UpdatedAt.After(next[j].conv.UpdatedAt)
	})
	e.order = next
	e.byID = byID
}

// OpenConversation closes any other open conversation, joins this one and
// loads its history. Messages sent or received while the history was in
// flight are kept on top of it.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	st := e.byID[conversationID]
	if st == nil {
		e.mu.Unlock()
		return fmt.Errorf("open conversation %q: %w", conversationID, errs.ErrNotFound)
	}

	var out []outbound
	if e.openID != "" && e.openID != conversationID {
		out = append(out, e.closeLocked(e.openID)...)
	}
	e.openID = conversationID
	e.openSeq++
	seq := e.openSeq
	st.open = true
	if st.conv.Messages == nil {
		st.conv.Messages = []models.Message{}
	}
	out = append(out, outbound{models.EventJoinConversation, models.ConversationRef{ConversationID: conversationID}})
	e.unlockAndFlush(out)
	e.notify()

	conv, err := e.api.GetConversation(ctx, conversationID)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.openSeq != seq || e.openID != conversationID {
		e.mu.Unlock()
		return fmt.Errorf("open conversation %q: %w", conversationID, ErrSuperseded)
	}
	if err != nil {
		out = e.closeLocked(conversationID)
		e.unlockAndFlush(out)
		e.notify()
		return fmt.Errorf("open conversation %q: %w", conversationID, err)
	}

	e.mergeHistoryLocked(st, conv)
	out = nil
	if e.autoMarkSeen {
		out = e.markLatestSeenLocked(st)
	}
	e.unlockAndFlush(out)
	e.notify()
	return nil
}

func (e *Engine) mergeHistoryLocked(st *conversationState, conv *models.Conversation) {
	fetched := make([]models.Message, 0, len(conv.Messages))
	index := make(map[string]int, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.ID == "" {
			continue
		}
		if _, dup := index[m.ID]; dup {
			continue
		}
		m.Normalize()
		if m.ConversationID == "" {
			m.ConversationID = st.conv.ID
		}
		index[m.ID] = len(fetched)
		fetched = append(fetched, m.Clone())
	}

	used := make(map[int]bool)
	var echoed []string
	for _, m := range st.conv.Messages {
		if m.IsPending() {
			if j := matchPendingInHistory(fetched, used, m); j >= 0 {
				used[j] = true
				echoed = append(echoed, m.ID)
				continue
			}
			fetched = append(fetched, m)
			continue
		}
		if j, ok := index[m.ID]; ok {
			fetched[j].SeenBy = fetched[j].SeenBy.Union(m.SeenBy)
			fetched[j].DeliveredTo = fetched[j].DeliveredTo.Union(m.DeliveredTo)
			continue
		}
		index[m.ID] = len(fetched)
		fetched = append(fetched, m)
	}

	for _, m := range fetched {
		if !m.IsPending() {
			st.recent.Add(m.ID)
		}
	}

	if len(conv.Participants) > 0 {
		st.conv.Participants = append([]models.User(nil), conv.Participants...)
		e.applyPresenceLocked(&st.conv)
	}
	if conv.IsGroup {
		st.conv.IsGroup = true
	}
	st.conv.Messages = fetched
	if last := lastMessage(fetched); last != nil {
		copyLast := last.Clone()
		st.conv.LastMessage = &copyLast
	}
	if st.conv.UpdatedAt.Before(conv.UpdatedAt) {
		st.conv.UpdatedAt = conv.UpdatedAt
	}
	st.loaded = true

	// Inflight sends whose echo is already part of the history are done.
	for _, id := range echoed {
		if send := e.inflight[id]; send != nil {
			delete(e.inflight, id)
			close(send.confirmed)
		}
	}
}

func matchPendingInHistory(fetched []models.Message, used map[int]bool, pending models.Message) int {
	for j, m := range fetched {
		if used[j] || m.IsPending() {
			continue
		}
		if m.Sender.ID == pending.Sender.ID && m.Content == pending.Content &&
			!m.CreatedAt.Before(pending.CreatedAt.Add(-pendingMatchSkew)) {
			return j
		}
	}
	return -1
}

// CloseConversation leaves the open conversation. The thread is dropped and
// its computed unread count becomes the conversation's counter.
func (e *Engine) CloseConversation(conversationID string) {
	e.mu.Lock()
	if e.openID == "" || e.openID != conversationID {
		e.mu.Unlock()
		return
	}
	out := e.closeLocked(conversationID)
	e.unlockAndFlush(out)
	e.notify()
}

func (e *Engine) closeLocked(conversationID string) []outbound {
	st := e.byID[conversationID]
	if st != nil {
		if st.loaded {
			st.unread = models.CountUnread(st.conv.Messages, e.self.ID)
		}
		st.open = false
		st.loaded = false
		st.conv.Messages = nil
	}
	if e.openID == conversationID {
		e.openID = ""
		e.openSeq++
	}
	out := e.stopLocalTypingLocked(conversationID)
	return append(out, outbound{models.EventLeaveConversation, models.ConversationRef{ConversationID: conversationID}})
}

// OpenConversationID returns the id of the open conversation, if any.
func (e *Engine) OpenConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openID
}

// SendMessage appends an optimistic message and dispatches it in the
// background. It returns the provisional id as soon as the optimistic state
// is visible. Dispatch failures are reported through OnSendFailure.
func (e *Engine) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return "", errs.ErrEmptyMessage
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	st := e.byID[conversationID]
	if st == nil {
		e.mu.Unlock()
		return "", fmt.Errorf("send message to %q: %w", conversationID, errs.ErrNotFound)
	}

	now := e.now()
	msg := models.Message{
		ID:             models.ProvisionalIDPrefix + uuid.NewString(),
		ConversationID: conversationID,
		Sender:         models.UserRef{ID: e.self.ID, Name: e.self.Name},
		Content:        content,
		CreatedAt:      now,
		State:          models.MessageStatePending,
	}

	send := &inflightSend{
		provisionalID:  msg.ID,
		conversationID: conversationID,
		content:        content,
		createdAt:      now,
		prevUpdatedAt:  st.conv.UpdatedAt,
		confirmed:      make(chan struct{}),
	}
	if st.conv.LastMessage != nil {
		prev := st.conv.LastMessage.Clone()
		send.prevLast = &prev
	}
	e.inflight[msg.ID] = send

	if st.open {
		st.conv.Messages = append(st.conv.Messages, msg)
	}
	summary := msg.Clone()
	st.conv.LastMessage = &summary
	st.conv.UpdatedAt = e.clampUpdatedAtLocked(st, now)
	e.moveToFrontLocked(st)

	out := e.stopLocalTypingLocked(conversationID)
	e.dispatchWG.Add(1)
	e.unlockAndFlush(out)
	e.notify()

	go e.dispatch(context.WithoutCancel(ctx), send)
	return msg.ID, nil
}

func (e *Engine) dispatch(ctx context.Context, send *inflightSend) {
	defer e.dispatchWG.Done()

	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	var err error
	switch e.sendTransport {
	case SendViaREST:
		var msg *models.Message
		msg, err = e.api.PostMessage(ctx, send.conversationID, send.content)
		if err == nil {
			if msg.ConversationID == "" {
				msg.ConversationID = send.conversationID
			}
			e.applyRemoteMessage(*msg, send.provisionalID)
			return
		}
	default:
		err = e.emitter.Emit(ctx, models.EventSendMessage, models.SendMessagePayload{
			ConversationID: send.conversationID,
			Sender:         models.UserRef{ID: e.self.ID, Name: e.self.Name},
			Content:        send.content,
			CreatedAt:      send.createdAt,
		})
		if err == nil {
			select {
			case <-send.confirmed:
				return
			case <-e.stop:
				return
			case <-ctx.Done():
				err = ErrEchoTimeout
			}
		}
	}

	e.failSend(send, err)
}

func (e *Engine) failSend(send *inflightSend, cause error) {
	e.mu.Lock()
	if e.inflight[send.provisionalID] != send {
		e.mu.Unlock()
		return
	}
	delete(e.inflight, send.provisionalID)

	if st := e.byID[send.conversationID]; st != nil {
		if i := findMessage(st.conv.Messages, send.provisionalID); i >= 0 {
			st.conv.Messages = append(st.conv.Messages[:i], st.conv.Messages[i+1:]...)
		}
		if st.conv.LastMessage != nil && st.conv.LastMessage.ID == send.provisionalID {
			st.conv.LastMessage = send.prevLast
			if last := lastMessage(st.conv.Messages); last != nil && (send.prevLast == nil || !last.CreatedAt.Before(send.prevLast.CreatedAt)) {
				copyLast := last.Clone()
				st.conv.LastMessage = &copyLast
			}
			st.conv.UpdatedAt = send.prevUpdatedAt
			e.repositionLocked(st)
		}
	}
	e.mu.Unlock()

	e.logger.Warn("message dispatch failed",
		zap.String("conversation_id", send.conversationID),
		zap.String("provisional_id", send.provisionalID),
		zap.Error(cause),
	)
	e.notify()

	if e.onSendFailure != nil {
		e.onSendFailure(&errs.SendFailure{
			ConversationID: send.conversationID,
			ProvisionalID:  send.provisionalID,
			Text:           send.content,
			Err:            cause,
		})
	}
}

// ApplyRemoteMessage ingests a server-confirmed message. Redelivery of a
// known id is ignored; an echo of a pending send replaces it in place.
func (e *Engine) ApplyRemoteMessage(msg models.Message) {
	e.applyRemoteMessage(msg, "")
}

func (e *Engine) applyRemoteMessage(msg models.Message, provisionalID string) {
	msg.Normalize()
	if msg.ID == "" || msg.ConversationID == "" || models.IsProvisional(msg.ID) {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	st := e.byID[msg.ConversationID]
	if st == nil {
		e.mu.Unlock()
		e.logger.Debug("message for unknown conversation ignored",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
		)
		return
	}

	send := e.matchInflightLocked(msg, provisionalID)
	if send != nil {
		delete(e.inflight, send.provisionalID)
		close(send.confirmed)
	}

	// An open thread is the authority on what it holds; the recent window
	// also carries snapshot ids that never reached the thread.
	known := findMessage(st.conv.Messages, msg.ID) >= 0
	if !st.open {
		known = known || st.recent.Has(msg.ID)
	}
	if known {
		// A known id still resolves a pending copy sent by us.
		if send != nil {
			if i := findMessage(st.conv.Messages, send.provisionalID); i >= 0 {
				st.conv.Messages = append(st.conv.Messages[:i], st.conv.Messages[i+1:]...)
			}
		}
		e.mu.Unlock()
		e.notify()
		return
	}
	st.recent.Add(msg.ID)

	confirmed := msg.Clone()
	if st.open {
		replaced := false
		if send != nil {
			if i := findMessage(st.conv.Messages, send.provisionalID); i >= 0 {
				st.conv.Messages[i] = confirmed
				replaced = true
			}
		}
		if !replaced {
			if i := findPending(st.conv.Messages, msg.Sender.ID, msg.Content); i >= 0 {
				st.conv.Messages[i] = confirmed
				replaced = true
			}
		}
		if !replaced {
			st.conv.Messages = append(st.conv.Messages, confirmed)
		}
	}

	summary := msg.Clone()
	st.conv.LastMessage = &summary
	st.conv.UpdatedAt = e.clampUpdatedAtLocked(st, msg.CreatedAt)
	e.moveToFrontLocked(st)

	inbound := msg.Sender.ID != e.self.ID
	if !st.open && inbound {
		st.unread++
	}
	e.typing.Stop(st.conv.ID, msg.Sender.ID, msg.Sender.Name)

	var out []outbound
	if st.open && st.loaded && inbound && e.autoMarkSeen {
		out = e.markLatestSeenLocked(st)
	}
	e.unlockAndFlush(out)
	e.notify()
}

func (e *Engine) matchInflightLocked(msg models.Message, provisionalID string) *inflightSend {
	if provisionalID != "" {
		return e.inflight[provisionalID]
	}
	if msg.Sender.ID != e.self.ID {
		return nil
	}
	var best *inflightSend
	for _, send := range e.inflight {
		if send.conversationID != msg.ConversationID || send.content != msg.Content {
			continue
		}
		if best == nil || send.createdAt.Before(best.createdAt) {
			best = send
		}
	}
	return best
}

// ApplyMessageUpdated replaces a known message by id. Seen and delivered
// markers never shrink.
func (e *Engine) ApplyMessageUpdated(msg models.Message) {
	msg.Normalize()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	st := e.byID[msg.ConversationID]
	if st == nil {
		e.mu.Unlock()
		return
	}
	changed := false
	if i := findMessage(st.conv.Messages, msg.ID); i >= 0 {
		updated := msg.Clone()
		updated.SeenBy = st.conv.Messages[i].SeenBy.Union(msg.SeenBy)
		updated.DeliveredTo = st.conv.Messages[i].DeliveredTo.Union(msg.DeliveredTo)
		st.conv.Messages[i] = updated
		changed = true
	}
	if st.conv.LastMessage != nil && st.conv.LastMessage.ID == msg.ID {
		updated := msg.Clone()
		updated.SeenBy = st.conv.LastMessage.SeenBy.Union(msg.SeenBy)
		updated.DeliveredTo = st.conv.LastMessage.DeliveredTo.Union(msg.DeliveredTo)
		st.conv.LastMessage = &updated
		changed = true
	}
	e.mu.Unlock()

	if changed {
		e.notify()
	}
}

// ApplyTypingStart records a remote typer.
func (e *Engine) ApplyTypingStart(conversationID, userID, userName string) {
	if e.typing.Start(conversationID, userID, userName) {
		e.notify()
	}
}

// ApplyTypingStop removes a remote typer.
func (e *Engine) ApplyTypingStop(conversationID, userID, userName string) {
	if e.typing.Stop(conversationID, userID, userName) {
		e.notify()
	}
}

// ApplyPresence updates a user's status in every conversation that lists them.
func (e *Engine) ApplyPresence(userID string, status models.Status) {
	if !e.presence.Set(userID, status) {
		return
	}
	e.mu.Lock()
	for _, st := range e.order {
		for i := range st.conv.Participants {
			if st.conv.Participants[i].ID == userID {
				st.conv.Participants[i].Status = status
			}
		}
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) applyPresenceLocked(conv *models.Conversation) {
	for i := range conv.Participants {
		p := &conv.Participants[i]
		e.presence.Seed(p.ID, p.Status)
		if status, ok := e.presence.Status(p.ID); ok {
			p.Status = status
		}
	}
}

// MarkSeen marks the newest inbound message of the open thread, and every
// inbound message before it, as seen by the current user.
func (e *Engine) MarkSeen(conversationID, messageID string) error {
	e.mu.Lock()
	st := e.byID[conversationID]
	if st == nil || !st.open || e.openID != conversationID {
		e.mu.Unlock()
		return fmt.Errorf("mark seen in %q: %w", conversationID, errs.ErrNotOpen)
	}
	i := findMessage(st.conv.Messages, messageID)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("mark seen %q: %w", messageID, errs.ErrNotFound)
	}
	if newest := e.newestInboundLocked(st); newest != i {
		e.mu.Unlock()
		return fmt.Errorf("mark seen %q: %w", messageID, errs.ErrNotNewestInbound)
	}
	out := e.markSeenLocked(st, i)
	e.unlockAndFlush(out)
	e.notify()
	return nil
}

// MarkLatestSeen marks the newest inbound message of the open thread. It is
// a no-op when the thread has no inbound message.
func (e *Engine) MarkLatestSeen(conversationID string) error {
	e.mu.Lock()
	st := e.byID[conversationID]
	if st == nil || !st.open || e.openID != conversationID {
		e.mu.Unlock()
		return fmt.Errorf("mark seen in %q: %w", conversationID, errs.ErrNotOpen)
	}
	out := e.markLatestSeenLocked(st)
	e.unlockAndFlush(out)
	e.notify()
	return nil
}

func (e *Engine) markLatestSeenLocked(st *conversationState) []outbound {
	i := e.newestInboundLocked(st)
	if i < 0 {
		return nil
	}
	return e.markSeenLocked(st, i)
}

func (e *Engine) newestInboundLocked(st *conversationState) int {
	for i := len(st.conv.Messages) - 1; i >= 0; i-- {
		m := st.conv.Messages[i]
		if m.Sender.ID != e.self.ID && !m.IsPending() {
			return i
		}
	}
	return -1
}

func (e *Engine) markSeenLocked(st *conversationState, i int) []outbound {
	target := st.conv.Messages[i]
	if target.SeenBy.Contains(e.self.ID) {
		return nil
	}

	for k := 0; k <= i; k++ {
		m := &st.conv.Messages[k]
		if m.Sender.ID != e.self.ID {
			m.SeenBy = m.SeenBy.Add(e.self.ID)
		}
	}
	if st.conv.LastMessage != nil && findMessage(st.conv.Messages[:i+1], st.conv.LastMessage.ID) >= 0 && st.conv.LastMessage.Sender.ID != e.self.ID {
		st.conv.LastMessage.SeenBy = st.conv.LastMessage.SeenBy.Add(e.self.ID)
	}
	st.unread = 0

	if e.receipts != nil {
		already, err := e.receipts.HasSeenReceipt(target.ID)
		if err != nil {
			e.logger.Warn("seen receipt lookup failed", zap.String("message_id", target.ID), zap.Error(err))
		}
		if already {
			return nil
		}
		if err := e.receipts.InsertSeenReceipt(st.conv.ID, target.ID, e.now().UnixMilli()); err != nil {
			e.logger.Warn("seen receipt not recorded", zap.String("message_id", target.ID), zap.Error(err))
		}
	}

	return []outbound{{models.EventMarkMessageSeen, models.ReceiptPayload{
		MessageID:      target.ID,
		ConversationID: st.conv.ID,
		UserID:         e.self.ID,
	}}}
}

// ApplySeen records that userID saw messageID. Seen markers are cumulative
// for the earlier messages of the same thread. A receipt from the current
// user (another device) clears the unread counter when it covers the
// conversation's last message.
func (e *Engine) ApplySeen(receipt models.ReceiptPayload) {
	e.mu.Lock()
	st := e.locateLocked(receipt.ConversationID, receipt.MessageID)
	if st == nil {
		e.mu.Unlock()
		return
	}

	fromSelf := receipt.UserID == e.self.ID
	if i := findMessage(st.conv.Messages, receipt.MessageID); i >= 0 {
		for k := 0; k <= i; k++ {
			m := &st.conv.Messages[k]
			// Readers only ever see messages written by someone else.
			if m.Sender.ID != receipt.UserID {
				m.SeenBy = m.SeenBy.Add(receipt.UserID)
			}
		}
	}
	if last := st.conv.LastMessage; last != nil && last.ID == receipt.MessageID {
		if last.Sender.ID != receipt.UserID {
			last.SeenBy = last.SeenBy.Add(receipt.UserID)
		}
		if fromSelf && !st.open {
			st.unread = 0
		}
	}
	e.mu.Unlock()
	e.notify()
}

// ApplyDelivered records that userID received messageID.
func (e *Engine) ApplyDelivered(receipt models.ReceiptPayload) {
	e.mu.Lock()
	st := e.locateLocked(receipt.ConversationID, receipt.MessageID)
	if st == nil {
		e.mu.Unlock()
		return
	}
	if i := findMessage(st.conv.Messages, receipt.MessageID); i >= 0 {
		st.conv.Messages[i].DeliveredTo = st.conv.Messages[i].DeliveredTo.Add(receipt.UserID)
	}
	if last := st.conv.LastMessage; last != nil && last.ID == receipt.MessageID {
		last.DeliveredTo = last.DeliveredTo.Add(receipt.UserID)
	}
	e.mu.Unlock()
	e.notify()
}

// locateLocked finds the conversation a receipt belongs to. Receipts without
// a conversation id are matched against the open thread and last messages.
func (e *Engine) locateLocked(conversationID, messageID string) *conversationState {
	if conversationID != "" {
		return e.byID[conversationID]
	}
	if open := e.byID[e.openID]; open != nil && findMessage(open.conv.Messages, messageID) >= 0 {
		return open
	}
	for _, st := range e.order {
		if st.conv.LastMessage != nil && st.conv.LastMessage.ID == messageID {
			return st
		}
	}
	return nil
}

// ApplyLiked surfaces a like notification.
func (e *Engine) ApplyLiked(payload models.LikedPayload) {
	e.pushNotification(models.Notification{
		Kind:       models.NotificationLiked,
		FromUserID: payload.FromUserID,
		Name:       payload.Name,
	})
}

// ApplyMatch surfaces a match and adds its conversation to the list when it
// is not known yet.
func (e *Engine) ApplyMatch(payload models.MatchPayload) {
	n := models.Notification{
		Kind:       models.NotificationMatch,
		FromUserID: payload.User.ID,
		Name:       payload.Name,
	}
	if n.Name == "" {
		n.Name = payload.User.Name
	}

	if payload.Conversation != nil {
		conv := payload.Conversation.Clone()
		n.Conversation = &conv

		e.mu.Lock()
		if e.byID[conv.ID] == nil && !e.closed {
			st := &conversationState{recent: newRecentIDs(e.recentWindow)}
			st.conv = conv.Clone()
			st.conv.Messages = nil
			st.conv.UnreadCount = nil
			if st.conv.UpdatedAt.IsZero() {
				st.conv.UpdatedAt = e.now()
			}
			e.applyPresenceLocked(&st.conv)
			e.byID[conv.ID] = st
			e.order = append(e.order, st)
			e.repositionLocked(st)
		}
		e.mu.Unlock()
		e.notify()
	}

	e.pushNotification(n)
}

// LikeUser emits a like for another user.
func (e *Engine) LikeUser(ctx context.Context, userID string) error {
	payload := models.LikeUserPayload{ToUserID: userID}
	if err := models.ValidatePayload(&payload); err != nil {
		return err
	}
	if err := e.emitter.Emit(ctx, models.EventLikeUser, payload); err != nil {
		return fmt.Errorf("like user %q: %w", userID, err)
	}
	return nil
}

// NotifyTyping tells peers the current user is typing in a conversation and
// schedules stopTyping after the idle delay. Repeated calls within the
// delay only push the stop further out.
func (e *Engine) NotifyTyping(conversationID string) {
	e.mu.Lock()
	if e.closed || e.byID[conversationID] == nil {
		e.mu.Unlock()
		return
	}

	now := e.now()
	lt := e.outgoing[conversationID]
	var out []outbound
	if lt == nil {
		lt = &localTyping{}
		lt.timer = time.AfterFunc(e.typingIdle, func() { e.typingIdleElapsed(conversationID, lt) })
		e.outgoing[conversationID] = lt
	} else {
		lt.timer.Reset(e.typingIdle)
	}
	// Re-announce before the remote expiry so a long burst stays visible.
	if lt.lastSent.IsZero() || now.Sub(lt.lastSent) >= e.typing.ttl/2 {
		lt.lastSent = now
		out = append(out, outbound{models.EventTyping, e.selfTypingPayload(conversationID)})
	}
	e.unlockAndFlush(out)
}

func (e *Engine) typingIdleElapsed(conversationID string, lt *localTyping) {
	e.mu.Lock()
	if e.outgoing[conversationID] != lt {
		e.mu.Unlock()
		return
	}
	out := e.stopLocalTypingLocked(conversationID)
	e.unlockAndFlush(out)
}

// stopLocalTypingLocked cancels the idle timer and returns the stopTyping
// event when a typing announcement is outstanding.
func (e *Engine) stopLocalTypingLocked(conversationID string) []outbound {
	lt := e.outgoing[conversationID]
	if lt == nil {
		return nil
	}
	lt.timer.Stop()
	delete(e.outgoing, conversationID)
	return []outbound{{models.EventStopTyping, e.selfTypingPayload(conversationID)}}
}

func (e *Engine) selfTypingPayload(conversationID string) models.TypingPayload {
	return models.TypingPayload{ConversationID: conversationID, UserName: e.self.Name, UserID: e.self.ID}
}

// AnnouncePresence tells peers the current user is online. It is sent once
// the event channel connects and again after every reconnect.
func (e *Engine) AnnouncePresence(ctx context.Context) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if err := e.emitter.Emit(ctx, models.EventUserOnline, models.PresencePayload{UserID: e.self.ID}); err != nil {
		return fmt.Errorf("announce presence: %w", err)
	}
	return nil
}

// Resync announces presence, reloads the list and reopens the open
// conversation. It is used after the event channel reconnects, since events
// may have been missed.
func (e *Engine) Resync(ctx context.Context) error {
	if err := e.AnnouncePresence(ctx); err != nil {
		e.logger.Warn("presence not announced", zap.Error(err))
	}
	if err := e.LoadConversations(ctx); err != nil {
		return err
	}
	if open := e.OpenConversationID(); open != "" {
		if err := e.OpenConversation(ctx, open); err != nil && !errors.Is(err, ErrSuperseded) {
			return err
		}
	}
	return nil
}

// Shutdown stops timers and waits for in-flight dispatches to settle.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		for id, lt := range e.outgoing {
			lt.timer.Stop()
			delete(e.outgoing, id)
		}
		e.mu.Unlock()

		close(e.stop)
		e.typing.Close()
		e.dispatchWG.Wait()
	})
}

func (e *Engine) clampUpdatedAtLocked(st *conversationState, t time.Time) time.Time {
	if t.Before(st.conv.UpdatedAt) {
		t = st.conv.UpdatedAt
	}
	if len(e.order) > 0 && e.order[0] != st && t.Before(e.order[0].conv.UpdatedAt) {
		t = e.order[0].conv.UpdatedAt
	}
	return t
}

func (e *Engine) moveToFrontLocked(st *conversationState) {
	i := e.indexLocked(st)
	if i <= 0 {
		return
	}
	copy(e.order[1:i+1], e.order[:i])
	e.order[0] = st
}

// repositionLocked moves st to the slot its updatedAt dictates, keeping the
// relative order of every other conversation.
func (e *Engine) repositionLocked(st *conversationState) {
	i := e.indexLocked(st)
	if i < 0 {
		return
	}
	rest := append(e.order[:i:i], e.order[i+1:]...)
	pos := sort.Search(len(rest), func(k int) bool {
		return !rest[k].conv.UpdatedAt.After(st.conv.UpdatedAt)
	})
	order := make([]*conversationState, 0, len(rest)+1)
	order = append(order, rest[:pos]...)
	order = append(order, st)
	order = append(order, rest[pos:]...)
	e.order = order
}

func (e *Engine) indexLocked(st *conversationState) int {
	for i, candidate := range e.order {
		if candidate == st {
			return i
		}
	}
	return -1
}

// unlockAndFlush releases the state lock and sends out in commit order.
func (e *Engine) unlockAndFlush(out []outbound) {
	if len(out) == 0 {
		e.mu.Unlock()
		return
	}
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
	defer cancel()
	for _, o := range out {
		if err := e.emitter.Emit(ctx, o.name, o.payload); err != nil {
			e.logger.Debug("outbound event not sent", zap.String("event", o.name), zap.Error(err))
		}
	}
}

func (e *Engine) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func (e *Engine) pushNotification(n models.Notification) {
	select {
	case e.notifications <- n:
	default:
		e.logger.Warn("notification dropped", zap.String("kind", string(n.Kind)), zap.String("from_user_id", n.FromUserID))
	}
}

func findMessage(msgs []models.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func findPending(msgs []models.Message, senderID, content string) int {
	for i := range msgs {
		if msgs[i].IsPending() && msgs[i].Sender.ID == senderID && msgs[i].Content == content {
			return i
		}
	}
	return -1
}

func lastMessage(msgs []models.Message) *models.Message {
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}
