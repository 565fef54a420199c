package engine

import (
	"sync"

	"swipechat/models"
)

// PresenceTracker keeps the last known presence per user id.
type PresenceTracker struct {
	mu       sync.RWMutex
	statuses map[string]models.Status
}

// NewPresenceTracker returns an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{statuses: make(map[string]models.Status)}
}

// Set records a status and reports whether it changed.
func (p *PresenceTracker) Set(userID string, status models.Status) bool {
	if userID == "" || (status != models.StatusOnline && status != models.StatusOffline) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statuses[userID] == status {
		return false
	}
	p.statuses[userID] = status
	return true
}

// Seed records a status only when nothing is known about the user yet.
func (p *PresenceTracker) Seed(userID string, status models.Status) {
	if userID == "" || status == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.statuses[userID]; !ok {
		p.statuses[userID] = status
	}
}

// Status returns the known status and whether one is known.
func (p *PresenceTracker) Status(userID string) (models.Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status, ok := p.statuses[userID]
	return status, ok
}

// Online returns the ids of every user currently known to be online.
func (p *PresenceTracker) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.statuses))
	for id, status := range p.statuses {
		if status == models.StatusOnline {
			out = append(out, id)
		}
	}
	return out
}
