package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"ChatWire/service/relay"
	"ChatWire/tools/errs"
)

// fakeStore backs every store interface in-memory.
type fakeStore struct {
	mu        sync.Mutex
	kinds     map[string]RoomKind        // roomID -> kind
	members   map[string]map[string]bool // roomID -> userID -> member
	appended  []StoredMessage
	appendErr error
	activity  []string
	online    map[string]bool
	lastSeen  map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kinds:    make(map[string]RoomKind),
		members:  make(map[string]map[string]bool),
		online:   make(map[string]bool),
		lastSeen: make(map[string]time.Time),
	}
}

func (f *fakeStore) addRoom(roomID string, kind RoomKind, users ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds[roomID] = kind
	set := make(map[string]bool)
	for _, u := range users {
		set[u] = true
	}
	f.members[roomID] = set
}

func (f *fakeStore) removeMember(roomID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[roomID], userID)
}

func (f *fakeStore) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = online
	return nil
}

func (f *fakeStore) SetLastSeen(_ context.Context, userID string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen[userID] = ts
	return nil
}

func (f *fakeStore) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[roomID][userID], nil
}

func (f *fakeStore) ListRoomsFor(_ context.Context, userID string) ([]RoomRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RoomRef
	for roomID, set := range f.members {
		if set[userID] {
			out = append(out, RoomRef{ID: roomID, Kind: f.kinds[roomID]})
		}
	}
	return out, nil
}

func (f *fakeStore) Resolve(_ context.Context, roomID string) (RoomRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind, ok := f.kinds[roomID]
	if !ok {
		return RoomRef{}, errs.ErrRecordNotFound.WrapMsg("room", "id", roomID)
	}
	return RoomRef{ID: roomID, Kind: kind}, nil
}

func (f *fakeStore) Append(_ context.Context, room RoomRef, senderID, content string) (StoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return StoredMessage{}, f.appendErr
	}
	msg := StoredMessage{
		ID:        "m" + strconv.Itoa(len(f.appended)+1),
		RoomID:    room.ID,
		Sender:    UserDisplay{ID: senderID},
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.appended = append(f.appended, msg)
	return msg, nil
}

func (f *fakeStore) UpdateLastActivity(_ context.Context, room RoomRef, _ StoredMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, room.ID)
	return nil
}

func (f *fakeStore) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakeRelay struct {
	mu   sync.Mutex
	envs []relay.Envelope
}

func (r *fakeRelay) Publish(env relay.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *fakeRelay) Close() error { return nil }

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func newTestServer(t *testing.T, fs *fakeStore, rel relay.Relay) *Server {
	t.Helper()
	srv := NewServer(
		Config{GatewayID: "gw-test", TypingTTL: time.Minute},
		Deps{
			Verifier: VerifierFunc(func(string) (string, error) { return "", nil }),
			Users:    fs,
			Members:  fs,
			Messages: fs,
			Relay:    rel,
		})
	t.Cleanup(srv.Close)
	return srv
}

// wireFrame decodes one outbound frame.
type wireFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func nextFrame(t *testing.T, c *Client) wireFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f wireFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return wireFrame{}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func join(t *testing.T, srv *Server, c *Client, roomID string) {
	t.Helper()
	srv.registry.Add(c)
	if err := srv.JoinRoom(context.Background(), c, roomID); err != nil {
		t.Fatalf("join %s: %v", roomID, err)
	}
	if _, ok := c.joined(roomID); !ok {
		t.Fatalf("join %s did not subscribe", roomID)
	}
}

func TestSendPipeline(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1", "u2")
	rel := &fakeRelay{}
	srv := newTestServer(t, fs, rel)

	a := newClient("c1", "u1", nil)
	b := newClient("c2", "u2", nil)
	join(t, srv, a, "r1")
	join(t, srv, b, "r1")

	if err := srv.SetTyping(context.Background(), a, "r1", true); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	drain(a)
	drain(b)

	if err := srv.Send(context.Background(), a, "r1", "  hello  "); err != nil {
		t.Fatalf("send: %v", err)
	}

	// both subscribers see the message, then the typing withdrawal
	for _, c := range []*Client{a, b} {
		msg := nextFrame(t, c)
		if msg.Type != EvtRoomMessage {
			t.Fatalf("first frame = %q", msg.Type)
		}
		inner := msg.Data["message"].(map[string]any)
		if inner["content"] != "hello" {
			t.Fatalf("content = %q, want trimmed", inner["content"])
		}
		typ := nextFrame(t, c)
		if typ.Type != EvtTypingFull {
			t.Fatalf("second frame = %q", typ.Type)
		}
		if set := typ.Data["userIds"].([]any); len(set) != 0 {
			t.Fatalf("typing set after send = %v", set)
		}
	}

	if fs.appendCount() != 1 {
		t.Fatalf("appended = %d", fs.appendCount())
	}
	if len(fs.activity) != 1 || fs.activity[0] != "r1" {
		t.Fatalf("activity = %v", fs.activity)
	}
	if rel.count() == 0 {
		t.Fatal("nothing relayed")
	}
}

func TestSendValidation(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	join(t, srv, a, "r1")

	if err := srv.Send(context.Background(), a, "r1", "   "); !errs.IsValidation(err) {
		t.Fatalf("whitespace content err = %v", err)
	}
	if fs.appendCount() != 0 {
		t.Fatal("rejected message was persisted")
	}
}

func TestSendUnsubscribedIgnored(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	srv.registry.Add(a)

	// no join: the event is dropped without error and without effects
	if err := srv.Send(context.Background(), a, "r1", "hi"); err != nil {
		t.Fatalf("unsubscribed send err = %v", err)
	}
	if fs.appendCount() != 0 {
		t.Fatal("unsubscribed send was persisted")
	}
}

func TestJoinDeniedNonMember(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1")
	srv := newTestServer(t, fs, &fakeRelay{})

	member := newClient("c1", "u1", nil)
	join(t, srv, member, "r1")

	// the denied join is dropped without error and without subscription
	outsider := newClient("c2", "u2", nil)
	srv.registry.Add(outsider)
	if err := srv.JoinRoom(context.Background(), outsider, "r1"); err != nil {
		t.Fatalf("denied join err = %v", err)
	}
	if _, ok := outsider.joined("r1"); ok {
		t.Fatal("non-member was subscribed")
	}

	if err := srv.Send(context.Background(), member, "r1", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f := nextFrame(t, member); f.Type != EvtRoomMessage {
		t.Fatalf("member frame = %q", f.Type)
	}
	select {
	case raw := <-outsider.send:
		t.Fatalf("non-member received %s", raw)
	default:
	}
}

func TestSendMembershipRevoked(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	join(t, srv, a, "r1")
	fs.removeMember("r1", "u1")

	if err := srv.Send(context.Background(), a, "r1", "hi"); !errs.IsAuthorization(err) {
		t.Fatalf("revoked member err = %v", err)
	}
	if fs.appendCount() != 0 {
		t.Fatal("unauthorized send was persisted")
	}
}

func TestSendAppendFailureIsAtomic(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1", "u2")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	b := newClient("c2", "u2", nil)
	join(t, srv, a, "r1")
	join(t, srv, b, "r1")

	srv.typing.Set("r1", "u1", true)
	fs.appendErr = errs.ErrDependency.WrapMsg("down")

	if err := srv.Send(context.Background(), a, "r1", "hi"); !errs.IsDependency(err) {
		t.Fatalf("append failure err = %v", err)
	}

	// nothing was broadcast and the typing flag survived
	select {
	case raw := <-b.send:
		t.Fatalf("frame delivered after failed append: %s", raw)
	default:
	}
	if got := srv.typing.Active("r1"); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("typing after failed append = %v", got)
	}
	if len(fs.activity) != 0 {
		t.Fatalf("activity after failed append = %v", fs.activity)
	}
}

func TestConversationTypingDelta(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("d1", RoomConversation, "u1", "u2")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	b := newClient("c2", "u2", nil)
	join(t, srv, a, "d1")
	join(t, srv, b, "d1")
	drain(a)
	drain(b)

	if err := srv.SetTyping(context.Background(), a, "d1", true); err != nil {
		t.Fatalf("set typing: %v", err)
	}

	f := nextFrame(t, b)
	if f.Type != EvtTypingDelta {
		t.Fatalf("conversation typing type = %q", f.Type)
	}
	if f.Data["userId"] != "u1" || f.Data["isTyping"] != true {
		t.Fatalf("delta = %v", f.Data)
	}
	// the sender does not hear its own delta
	select {
	case raw := <-a.send:
		t.Fatalf("sender received %s", raw)
	default:
	}
}

func TestTypingExpirySweep(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("d1", RoomConversation, "u1", "u2")
	fs.addRoom("r1", RoomChannel, "u1", "u2")

	start := time.Unix(1000, 0)
	srv := NewServer(
		Config{GatewayID: "gw-test", TypingTTL: 30 * time.Second, Clock: func() time.Time { return start }},
		Deps{Users: fs, Members: fs, Messages: fs, Relay: &fakeRelay{}})
	t.Cleanup(srv.Close)

	a := newClient("c1", "u1", nil)
	b := newClient("c2", "u2", nil)
	join(t, srv, a, "d1")
	join(t, srv, b, "d1")
	join(t, srv, a, "r1")
	join(t, srv, b, "r1")
	srv.markOnline(a)
	srv.markOnline(b)

	if err := srv.SetTyping(context.Background(), a, "d1", true); err != nil {
		t.Fatalf("set typing d1: %v", err)
	}
	if err := srv.SetTyping(context.Background(), a, "r1", true); err != nil {
		t.Fatalf("set typing r1: %v", err)
	}
	drain(a)
	drain(b)

	srv.expireTyping(start.Add(31 * time.Second))

	// the conversation expiry is a delta to the peer only, not the typer
	sawDelta, sawFull := false, false
	for i := 0; i < 2; i++ {
		f := nextFrame(t, b)
		switch f.Type {
		case EvtTypingDelta:
			if f.Data["userId"] != "u1" || f.Data["isTyping"] != false {
				t.Fatalf("expiry delta = %v", f.Data)
			}
			sawDelta = true
		case EvtTypingFull:
			if set := f.Data["userIds"].([]any); len(set) != 0 {
				t.Fatalf("expiry full set = %v", set)
			}
			sawFull = true
		default:
			t.Fatalf("unexpected frame %q", f.Type)
		}
	}
	if !sawDelta || !sawFull {
		t.Fatalf("delta=%v full=%v", sawDelta, sawFull)
	}

	// the typer only hears the channel's full-set broadcast
	f := nextFrame(t, a)
	if f.Type != EvtTypingFull {
		t.Fatalf("typer frame = %q", f.Type)
	}
	select {
	case raw := <-a.send:
		t.Fatalf("typer received %s", raw)
	default:
	}

	if got := srv.typing.Active("d1"); len(got) != 0 {
		t.Fatalf("d1 typing after expiry = %v", got)
	}
	if got := srv.typing.Active("r1"); len(got) != 0 {
		t.Fatalf("r1 typing after expiry = %v", got)
	}
}

func TestDisconnectBroadcastsAndCleansUp(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1", "u2")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	b := newClient("c2", "u2", nil)
	join(t, srv, a, "r1")
	join(t, srv, b, "r1")
	srv.markOnline(a)
	srv.markOnline(b)
	if err := srv.SetTyping(context.Background(), a, "r1", true); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	drain(a)
	drain(b)
	if n := srv.Connections(); n != 2 {
		t.Fatalf("connections = %d", n)
	}

	srv.disconnect(a)

	if n := srv.Connections(); n != 1 {
		t.Fatalf("connections after disconnect = %d", n)
	}

	typ := nextFrame(t, b)
	if typ.Type != EvtTypingFull {
		t.Fatalf("first frame after disconnect = %q", typ.Type)
	}
	if set := typ.Data["userIds"].([]any); len(set) != 0 {
		t.Fatalf("typing set after disconnect = %v", set)
	}
	pres := nextFrame(t, b)
	if pres.Type != EvtPresence || pres.Data["userId"] != "u1" || pres.Data["isOnline"] != false {
		t.Fatalf("presence frame = %+v", pres)
	}

	if _, ok := srv.presence.Current("u1"); ok {
		t.Fatal("u1 still mapped online")
	}
	if subs, _, ok := srv.rooms.Subscribers("r1"); !ok || len(subs) != 1 {
		t.Fatalf("r1 subscribers after disconnect = %v", subs)
	}
}

func TestStaleDisconnectLeavesNewConnection(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1", "u2")
	srv := newTestServer(t, fs, &fakeRelay{})

	old := newClient("c1", "u1", nil)
	fresh := newClient("c2", "u1", nil)
	observer := newClient("c3", "u2", nil)
	join(t, srv, observer, "r1")

	srv.registry.Add(old)
	srv.markOnline(old)
	srv.registry.Add(fresh)
	srv.markOnline(fresh)
	drain(observer)

	// the superseded connection's teardown must be silent
	srv.disconnect(old)
	select {
	case raw := <-observer.send:
		t.Fatalf("stale disconnect broadcast %s", raw)
	default:
	}
	if cur, ok := srv.presence.Current("u1"); !ok || cur != fresh {
		t.Fatalf("current = %v ok=%v", cur, ok)
	}
}

func TestRemoteDelivery(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "u1")
	srv := newTestServer(t, fs, &fakeRelay{})

	a := newClient("c1", "u1", nil)
	join(t, srv, a, "r1")

	frame, _ := Event{Type: EvtRoomMessage, RoomID: "r1", Data: RoomMessageData{RoomID: "r1"}}.Encode()
	srv.DeliverRemote(relay.Envelope{Gateway: "gw-other", RoomID: "r1", Frame: frame})

	got := nextFrame(t, a)
	if got.Type != EvtRoomMessage {
		t.Fatalf("remote frame = %q", got.Type)
	}
}
