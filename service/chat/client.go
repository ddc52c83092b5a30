package chat

import (
	"sync"
	"time"

	"ChatWire/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one live connection. The user identity is bound once at
// authentication and never changes for the connection's lifetime. The
// joined-room set is owned here and mutated only from this connection's
// event loop.
type Client struct {
	ID     string // connection handle (snowflake)
	UserID string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]RoomKind
	closed bool
}

func newClient(id, userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]RoomKind),
	}
}

func (c *Client) joined(roomID string) (RoomKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.rooms[roomID]
	return k, ok
}

func (c *Client) setJoined(room RoomRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room.ID] = room.Kind
}

func (c *Client) clearJoined(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Client) joinedRooms() []RoomRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RoomRef, 0, len(c.rooms))
	for id, kind := range c.rooms {
		out = append(out, RoomRef{ID: id, Kind: kind})
	}
	return out
}

// enqueue hands data to the write pump without blocking. A full queue
// means the peer is not draining; the caller decides whether to evict.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the send queue exactly once; the write pump drains and
// closes the socket.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump is the single writer for this connection. gorilla/websocket
// does not allow concurrent writes, so everything outbound funnels through
// the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			logger.Debugf("[client] close conn=%s err=%v", c.ID, err)
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("[client] write conn=%s err=%v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
