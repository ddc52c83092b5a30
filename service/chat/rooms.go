package chat

import "sync"

type roomEntry struct {
	kind RoomKind
	subs map[*Client]struct{}
}

// RoomTable maps room ids to their current local subscribers. It mirrors
// durable membership only as a broadcast-group key; the membership check
// itself always goes to the store.
type RoomTable struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[string]*roomEntry)}
}

func (t *RoomTable) Subscribe(room RoomRef, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rooms[room.ID]
	if !ok {
		e = &roomEntry{kind: room.Kind, subs: make(map[*Client]struct{})}
		t.rooms[room.ID] = e
	}
	e.subs[c] = struct{}{}
}

func (t *RoomTable) Unsubscribe(roomID string, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(e.subs, c)
	if len(e.subs) == 0 {
		delete(t.rooms, roomID)
	}
}

// Drop removes c from every room it is subscribed to.
func (t *RoomTable) Drop(c *Client) {
	for _, room := range c.joinedRooms() {
		t.Unsubscribe(room.ID, c)
	}
}

// Subscribers snapshots the local subscriber set of a room.
func (t *RoomTable) Subscribers(roomID string) ([]*Client, RoomKind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.rooms[roomID]
	if !ok {
		return nil, RoomChannel, false
	}
	out := make([]*Client, 0, len(e.subs))
	for c := range e.subs {
		out = append(out, c)
	}
	return out, e.kind, true
}

// Kind reports the kind of a currently active room.
func (t *RoomTable) Kind(roomID string) (RoomKind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.rooms[roomID]
	if !ok {
		return RoomChannel, false
	}
	return e.kind, true
}
