package engine

// recentIDs remembers the last n confirmed message ids of a conversation so
// redelivered events are dropped while its thread is not loaded.
type recentIDs struct {
	ring []string
	next int
	set  map[string]struct{}
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ring: make([]string, n), set: make(map[string]struct{}, n)}
}

func (r *recentIDs) Has(id string) bool {
	_, ok := r.set[id]
	return ok
}

func (r *recentIDs) Add(id string) {
	if id == "" || r.Has(id) {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}
