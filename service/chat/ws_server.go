package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ChatWire/logger"
	"ChatWire/tools/errs"
	"ChatWire/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxFrameSize = 32 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS is the gateway endpoint. The credential is verified before the
// upgrade so an unauthenticated peer never gets a socket; everything after
// the upgrade runs the admission sequence and then the read loop.
func (s *Server) HandleWS(g *gin.Context) {
	token := credentialFrom(g)
	if token == "" {
		g.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		logger.Infof("[ws] reject auth err=%v", err)
		g.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return
	}

	conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade user=%s err=%v", userID, err)
		return
	}

	c := newClient(ids.GenerateString(), userID, conn)
	logger.Infof("[ws] connected user=%s conn=%s", userID, c.ID)

	go c.writePump()
	s.admit(c)
	s.readLoop(c)
}

// credentialFrom accepts the token from the query string (browser
// WebSocket clients cannot set headers) or a bearer header.
func credentialFrom(g *gin.Context) string {
	if token := g.Query("token"); token != "" {
		return token
	}
	auth := g.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// admit runs the connect sequence: register, publish this user online,
// seed the private online snapshot, subscribe to member rooms.
func (s *Server) admit(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.registry.Add(c)
	s.markOnline(c)
	s.sendToClient(c, Event{
		Type: EvtOnlineSnapshot,
		Data: OnlineSnapshotData{UserIDs: s.presence.Snapshot()},
	})
	s.seedRooms(ctx, c)
}

// readLoop consumes frames until the connection dies. A bad frame is
// logged and dropped; only transport errors end the loop. Teardown always
// runs, and runs once.
func (s *Server) readLoop(c *Client) {
	defer func() {
		s.disconnect(c)
		c.closeSend()
		logger.Infof("[ws] disconnected user=%s conn=%s", c.UserID, c.ID)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("[ws] read user=%s conn=%s err=%v", c.UserID, c.ID, err)
			}
			return
		}

		frame, err := ParseFrame(raw)
		if err != nil {
			logger.Infof("[ws] bad frame user=%s err=%v", c.UserID, err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.disp.Dispatch(&Context{S: s, Ctx: ctx}, frame, c); err != nil {
			ce, _ := errs.CodeOf(err)
			logger.Infof("[ws] %s user=%s code=%d err=%v", frame.Type, c.UserID, ce.Code, err)
		}
		cancel()
	}
}
