package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a remote typing indicator survives without a
// renewed start or an explicit stop.
const DefaultTypingTTL = 5 * time.Second

// TypingOptions controls runtime behavior of TypingAggregator.
type TypingOptions struct {
	SelfID   string
	SelfName string
	TTL      time.Duration
	Now      func() time.Time
	// OnExpire is called without locks held when an entry lapses on its own.
	OnExpire func(conversationID string)
}

// TypingAggregator tracks who is typing per conversation. Entries expire
// lazily on read and through a timer that fires OnExpire.
type TypingAggregator struct {
	selfID   string
	selfName string
	ttl      time.Duration
	now      func() time.Time
	onExpire func(conversationID string)

	mu    sync.Mutex
	convs map[string][]*typingEntry
}

type typingEntry struct {
	key      string
	name     string
	deadline time.Time
	timer    *time.Timer
}

// NewTypingAggregator returns an empty aggregator.
func NewTypingAggregator(options TypingOptions) *TypingAggregator {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &TypingAggregator{
		selfID:   options.SelfID,
		selfName: options.SelfName,
		ttl:      ttl,
		now:      now,
		onExpire: options.OnExpire,
		convs:    make(map[string][]*typingEntry),
	}
}

// Start inserts or refreshes a typer. Refreshing keeps the original position.
// It reports whether the visible set changed.
func (a *TypingAggregator) Start(conversationID, userID, userName string) bool {
	if conversationID == "" || a.isSelf(userID, userName) {
		return false
	}
	key := typingKey(userID, userName)
	if key == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.evictLocked(conversationID, now)

	deadline := now.Add(a.ttl)
	for _, entry := range a.convs[conversationID] {
		if sameTyper(entry, key, userID, userName) {
			// A name-only entry learns the id once one is seen.
			if userID != "" {
				entry.key = key
			}
			entry.deadline = deadline
			if userName != "" {
				entry.name = userName
			}
			entry.timer.Reset(a.ttl)
			return false
		}
	}

	entry := &typingEntry{key: key, name: displayName(userID, userName), deadline: deadline}
	entry.timer = time.AfterFunc(a.ttl, func() { a.expire(conversationID, entry) })
	a.convs[conversationID] = append(a.convs[conversationID], entry)
	return true
}

// Stop removes a typer immediately. A stop carrying only a name or only an id
// matches entries recorded under either.
func (a *TypingAggregator) Stop(conversationID, userID, userName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.convs[conversationID]
	kept := entries[:0]
	removed := false
	for _, entry := range entries {
		if matchesTyper(entry, userID, userName) {
			entry.timer.Stop()
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	a.store(conversationID, kept)
	return removed
}

// Clear drops every typer of a conversation.
func (a *TypingAggregator) Clear(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, entry := range a.convs[conversationID] {
		entry.timer.Stop()
	}
	delete(a.convs, conversationID)
}

// Typers returns the display names of live typers in insertion order.
func (a *TypingAggregator) Typers(conversationID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.evictLocked(conversationID, a.now())
	entries := a.convs[conversationID]
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.name)
	}
	return names
}

// DisplayText returns the indicator phrase, or false when nobody is typing.
func (a *TypingAggregator) DisplayText(conversationID string) (string, bool) {
	names := a.Typers(conversationID)
	switch len(names) {
	case 0:
		return "", false
	case 1:
		return fmt.Sprintf("%s is typing…", names[0]), true
	case 2:
		return fmt.Sprintf("%s and %s are typing…", names[0], names[1]), true
	default:
		return fmt.Sprintf("%d people are typing…", len(names)), true
	}
}

// Close stops every expiry timer and forgets all typers.
func (a *TypingAggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, entries := range a.convs {
		for _, entry := range entries {
			entry.timer.Stop()
		}
		delete(a.convs, id)
	}
}

func (a *TypingAggregator) expire(conversationID string, target *typingEntry) {
	a.mu.Lock()
	entries := a.convs[conversationID]
	found := false
	for _, entry := range entries {
		if entry == target {
			found = true
			break
		}
	}
	if !found || a.now().Before(target.deadline) {
		a.mu.Unlock()
		return
	}
	a.evictLocked(conversationID, target.deadline)
	a.mu.Unlock()

	if a.onExpire != nil {
		a.onExpire(conversationID)
	}
}

func (a *TypingAggregator) evictLocked(conversationID string, now time.Time) {
	entries := a.convs[conversationID]
	kept := entries[:0]
	for _, entry := range entries {
		if now.Before(entry.deadline) {
			kept = append(kept, entry)
			continue
		}
		entry.timer.Stop()
	}
	a.store(conversationID, kept)
}

func (a *TypingAggregator) store(conversationID string, entries []*typingEntry) {
	if len(entries) == 0 {
		delete(a.convs, conversationID)
		return
	}
	a.convs[conversationID] = entries
}

func (a *TypingAggregator) isSelf(userID, userName string) bool {
	if userID != "" && userID == a.selfID {
		return true
	}
	return userName != "" && strings.EqualFold(strings.TrimSpace(userName), strings.TrimSpace(a.selfName))
}

func typingKey(userID, userName string) string {
	if userID != "" {
		return "id:" + userID
	}
	if name := strings.TrimSpace(userName); name != "" {
		return "name:" + name
	}
	return ""
}

func matchesTyper(entry *typingEntry, userID, userName string) bool {
	if userID != "" && entry.key == "id:"+userID {
		return true
	}
	return userName != "" && (entry.key == "name:"+strings.TrimSpace(userName) || entry.name == userName)
}

// sameTyper reports whether a start refers to entry. Two different ids never
// match, whatever their names.
func sameTyper(entry *typingEntry, key, userID, userName string) bool {
	if entry.key == key {
		return true
	}
	if userID != "" && strings.HasPrefix(entry.key, "id:") {
		return false
	}
	return matchesTyper(entry, userID, userName)
}

func displayName(userID, userName string) string {
	if name := strings.TrimSpace(userName); name != "" {
		return name
	}
	return userID
}
