package chat

import (
	"sort"
	"sync"
)

// PresenceRegistry is the authoritative online map: user id -> the single
// most-recently-admitted connection for that identity. A later connection
// silently replaces the earlier mapping; there is no multi-device fan-out.
type PresenceRegistry struct {
	mu     sync.RWMutex
	online map[string]*Client
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{online: make(map[string]*Client)}
}

// MarkOnline unconditionally overwrites any prior mapping for userID and
// returns the superseded connection, if any.
func (r *PresenceRegistry) MarkOnline(userID string, c *Client) (superseded *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.online[userID]
	r.online[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

// MarkOffline removes the mapping only if c is still the mapped handle.
// A stale disconnect from a superseded connection must not evict a newer
// mapping, so anything else is a no-op.
func (r *PresenceRegistry) MarkOffline(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.online[userID]
	if !ok || cur != c {
		return false
	}
	delete(r.online, userID)
	return true
}

// Current returns the mapped connection for userID.
func (r *PresenceRegistry) Current(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.online[userID]
	return c, ok
}

// Snapshot returns the sorted set of online user identities; used once per
// new connection to seed its view.
func (r *PresenceRegistry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.online))
	for userID := range r.online {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
