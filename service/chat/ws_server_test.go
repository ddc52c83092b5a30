package chat

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// startGateway boots a real gin+websocket gateway over httptest. The
// verifier treats the token itself as the user id.
func startGateway(t *testing.T, fs *fakeStore) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := NewServer(
		Config{GatewayID: "gw-test", TypingTTL: time.Minute},
		Deps{
			Verifier: VerifierFunc(func(token string) (string, error) { return token, nil }),
			Users:    fs,
			Members:  fs,
			Messages: fs,
		})
	t.Cleanup(srv.Close)

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+user, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("bad frame %s: %v", raw, err)
	}
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, evType string, data map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"type": evType, "data": data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write %s: %v", evType, err)
	}
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	_, url := startGateway(t, newFakeStore())
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestConnectDeliversPresenceAndSnapshot(t *testing.T) {
	fs := newFakeStore()
	_, url := startGateway(t, fs)

	alice := dial(t, url, "alice")
	if f := readFrame(t, alice); f.Type != EvtPresence || f.Data["userId"] != "alice" || f.Data["isOnline"] != true {
		t.Fatalf("first frame = %+v", f)
	}
	snap := readFrame(t, alice)
	if snap.Type != EvtOnlineSnapshot {
		t.Fatalf("second frame = %+v", snap)
	}
	ids := snap.Data["userIds"].([]any)
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("snapshot = %v", ids)
	}

	bob := dial(t, url, "bob")
	// alice hears bob come online; bob's own snapshot holds both users
	if f := readFrame(t, alice); f.Type != EvtPresence || f.Data["userId"] != "bob" {
		t.Fatalf("alice frame = %+v", f)
	}
	readFrame(t, bob) // bob presence
	snap = readFrame(t, bob)
	ids = snap.Data["userIds"].([]any)
	if len(ids) != 2 {
		t.Fatalf("bob snapshot = %v", ids)
	}
}

func TestEndToEndSendAndDisconnect(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "alice", "bob")
	_, url := startGateway(t, fs)

	alice := dial(t, url, "alice")
	readFrame(t, alice) // own presence
	readFrame(t, alice) // snapshot

	bob := dial(t, url, "bob")
	readFrame(t, alice) // bob presence
	readFrame(t, bob)   // own presence
	readFrame(t, bob)   // snapshot

	// membership was seeded at connect time, no explicit join needed.
	// bob's typing round-trip also proves his subscription is live
	// before alice sends.
	writeFrame(t, bob, EvtSetTyping, map[string]any{"roomId": "r1", "isTyping": true})
	if f := readFrame(t, alice); f.Type != EvtTypingFull {
		t.Fatalf("typing frame = %+v", f)
	}
	readFrame(t, bob)
	writeFrame(t, bob, EvtSetTyping, map[string]any{"roomId": "r1", "isTyping": false})
	readFrame(t, alice)
	readFrame(t, bob)

	writeFrame(t, alice, EvtSend, map[string]any{"roomId": "r1", "content": "hi bob"})

	msg := readFrame(t, bob)
	if msg.Type != EvtRoomMessage {
		t.Fatalf("bob frame = %+v", msg)
	}
	inner := msg.Data["message"].(map[string]any)
	if inner["content"] != "hi bob" {
		t.Fatalf("content = %v", inner["content"])
	}
	if typ := readFrame(t, bob); typ.Type != EvtTypingFull {
		t.Fatalf("expected typing withdrawal, got %+v", typ)
	}

	// bad frames are dropped without killing the connection
	writeFrame(t, alice, "no_such_event", map[string]any{})
	writeFrame(t, alice, EvtSend, map[string]any{"roomId": "r1", "content": "still here"})
	readFrame(t, alice) // own copy of first message
	readFrame(t, alice) // typing withdrawal
	msg = readFrame(t, alice)
	if inner := msg.Data["message"].(map[string]any); inner["content"] != "still here" {
		t.Fatalf("after bad frame = %+v", msg)
	}

	_ = alice.Close()
	// drain bob until alice's offline presence arrives
	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no offline presence for alice")
		}
		f := readFrame(t, bob)
		if f.Type == EvtPresence && f.Data["userId"] == "alice" && f.Data["isOnline"] == false {
			break
		}
	}
}

func TestSetTypingOverWire(t *testing.T) {
	fs := newFakeStore()
	fs.addRoom("r1", RoomChannel, "alice", "bob")
	_, url := startGateway(t, fs)

	alice := dial(t, url, "alice")
	readFrame(t, alice)
	readFrame(t, alice)
	bob := dial(t, url, "bob")
	readFrame(t, alice)
	readFrame(t, bob)
	readFrame(t, bob)

	writeFrame(t, alice, EvtSetTyping, map[string]any{"roomId": "r1", "isTyping": true})
	f := readFrame(t, bob)
	if f.Type != EvtTypingFull {
		t.Fatalf("typing frame = %+v", f)
	}
	ids := f.Data["userIds"].([]any)
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("typing set = %v", ids)
	}

	writeFrame(t, alice, EvtSetTyping, map[string]any{"roomId": "r1", "isTyping": false})
	f = readFrame(t, bob)
	if set := f.Data["userIds"].([]any); len(set) != 0 {
		t.Fatalf("typing set after stop = %v", set)
	}
}
