package chat

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL expires a typing flag that the client never withdraws,
// e.g. after an unclean disconnect the transport has not noticed yet.
// SetTyping(true) refreshes the deadline.
const DefaultTypingTTL = 30 * time.Second

// TypingTracker keeps one ephemeral set of currently-typing users per
// room. Each mutation is a single non-suspending step under the lock; the
// membership check happens before, never inside.
type TypingTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	rooms map[string]map[string]time.Time // roomID -> userID -> deadline
}

func NewTypingTracker(ttl time.Duration, clock func() time.Time) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TypingTracker{
		ttl:   ttl,
		clock: clock,
		rooms: make(map[string]map[string]time.Time),
	}
}

// TTL returns the configured expiry window.
func (t *TypingTracker) TTL() time.Duration { return t.ttl }

// Set flags or clears userID in roomID and returns the room's current set.
func (t *TypingTracker) Set(roomID, userID string, typing bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.rooms[roomID]
	if typing {
		if !ok {
			set = make(map[string]time.Time)
			t.rooms[roomID] = set
		}
		set[userID] = t.clock().Add(t.ttl)
	} else if ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return t.activeLocked(roomID)
}

// Active returns the room's current typing set.
func (t *TypingTracker) Active(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(roomID)
}

// ClearUser removes userID from every room's set it appears in and returns
// the affected room ids, so the caller can emit exactly one broadcast per
// room.
func (t *TypingTracker) ClearUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var affected []string
	for roomID, set := range t.rooms {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(t.rooms, roomID)
		}
		affected = append(affected, roomID)
	}
	sort.Strings(affected)
	return affected
}

// Expire drops every flag whose deadline passed and returns the cleared
// users per changed room, sorted. Runs from the sweeper loop.
func (t *TypingTracker) Expire(now time.Time) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	affected := make(map[string][]string)
	for roomID, set := range t.rooms {
		var cleared []string
		for userID, deadline := range set {
			if now.After(deadline) {
				delete(set, userID)
				cleared = append(cleared, userID)
			}
		}
		if len(set) == 0 {
			delete(t.rooms, roomID)
		}
		if len(cleared) > 0 {
			sort.Strings(cleared)
			affected[roomID] = cleared
		}
	}
	return affected
}

func (t *TypingTracker) activeLocked(roomID string) []string {
	set := t.rooms[roomID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
