package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"swipechat/errs"
	"swipechat/models"
)

var (
	t0  = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	me  = models.User{ID: "me", Name: "Me Myself"}
	ama = models.User{ID: "u2", Name: "Ama Owusu", Status: models.StatusOffline}
	bo  = models.User{ID: "u3", Name: "Bo Li"}
)

type emitted struct {
	name    string
	payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (f *fakeEmitter) Emit(_ context.Context, name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, emitted{name: name, payload: payload})
	return nil
}

func (f *fakeEmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeEmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.name)
	}
	return out
}

func (f *fakeEmitter) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.name == name {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) last(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].name == name {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

type fakeAPI struct {
	mu            sync.Mutex
	conversations []models.Conversation
	threads       map[string]models.Conversation
	gates         map[string]chan struct{}
	postGate      chan struct{}
	listErr       error
	postErr       error
	listCalls     int
	getCalls      int
	posted        []string
}

func (f *fakeAPI) ListConversations(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *fakeAPI) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	f.getCalls++
	gate := f.gates[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.threads[id]
	if !ok {
		return nil, &errs.FetchError{Op: "get conversation", Status: 404, Err: errs.ErrNotFound}
	}
	out := conv.Clone()
	return &out, nil
}

func (f *fakeAPI) PostMessage(_ context.Context, id, content string) (*models.Message, error) {
	f.mu.Lock()
	gate := f.postGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, content)
	return &models.Message{
		ID:             fmt.Sprintf("srv-%d", len(f.posted)),
		ConversationID: id,
		Sender:         models.UserRef{ID: me.ID, Name: me.Name},
		Content:        content,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeAPI) block(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[id] = gate
	return gate
}

func (f *fakeAPI) setThread(conv models.Conversation) {
	f.mu.Lock()
	f.threads[conv.ID] = conv
	f.mu.Unlock()
}

func (f *fakeAPI) calls() (list, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.getCalls
}

type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]string
}

func (f *fakeLedger) HasSeenReceipt(messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[messageID]
	return ok, nil
}

func (f *fakeLedger) InsertSeenReceipt(conversationID, messageID string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[messageID] = conversationID
	return nil
}

func message(id, conversationID string, from models.User, content string, at time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         models.UserRef{ID: from.ID, Name: from.Name},
		Content:        content,
		CreatedAt:      at,
		State:          models.MessageStateConfirmed,
	}
}

// fixtureAPI serves three conversations: c1 (direct with Ama, two unread),
// c2 (direct with Bo) and c3 (group), listed out of order.
func fixtureAPI() *fakeAPI {
	unread := 2
	m0 := message("m0", "c1", ama, "hi", t0.Add(time.Minute))
	m1 := message("m1", "c1", ama, "hey", t0.Add(2*time.Minute))
	return &fakeAPI{
		conversations: []models.Conversation{
			{ID: "c3", IsGroup: true, Participants: []models.User{me, ama, bo}, UpdatedAt: t0},
			{ID: "c1", Participants: []models.User{me, ama}, UpdatedAt: t0.Add(2 * time.Minute), LastMessage: &m1, UnreadCount: &unread},
			{ID: "c2", Participants: []models.User{me, bo}, UpdatedAt: t0.Add(time.Minute)},
		},
		threads: map[string]models.Conversation{
			"c1": {ID: "c1", Participants: []models.User{me, ama}, UpdatedAt: t0.Add(2 * time.Minute), Messages: []models.Message{m0, m1}},
			"c2": {ID: "c2", Participants: []models.User{me, bo}, UpdatedAt: t0.Add(time.Minute)},
			"c3": {ID: "c3", IsGroup: true, Participants: []models.User{me, ama, bo}, UpdatedAt: t0},
		},
		gates: make(map[string]chan struct{}),
	}
}

func newTestEngine(t *testing.T, api *fakeAPI, tweak func(*Options)) (*Engine, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	options := Options{
		Self:        me,
		API:         api,
		Emitter:     emitter,
		Logger:      zaptest.NewLogger(t),
		SendTimeout: 5 * time.Second,
	}
	if tweak != nil {
		tweak(&options)
	}
	e, err := New(options)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	require.NoError(t, e.LoadConversations(context.Background()))
	return e, emitter
}

func failureSink(options *Options) chan *errs.SendFailure {
	failures := make(chan *errs.SendFailure, 4)
	options.OnSendFailure = func(f *errs.SendFailure) { failures <- f }
	return failures
}

func order(vm ViewModel) []string {
	out := make([]string, 0, len(vm.Conversations))
	for _, c := range vm.Conversations {
		out = append(out, c.ID)
	}
	return out
}

func row(t *testing.T, vm ViewModel, id string) ConversationView {
	t.Helper()
	for _, c := range vm.Conversations {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("conversation %q not in view model", id)
	return ConversationView{}
}
