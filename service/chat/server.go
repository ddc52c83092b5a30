package chat

import (
	"context"
	"sync"
	"time"

	"ChatWire/logger"
	"ChatWire/service/relay"
	"ChatWire/tools/safe"
)

// Config for one gateway instance.
type Config struct {
	GatewayID string
	TypingTTL time.Duration
	Clock     func() time.Time // injectable for tests; nil => time.Now
}

// Deps are the boundary collaborators the core calls into. Mirror and
// Relay are optional; nil disables them.
type Deps struct {
	Verifier IdentityVerifier
	Users    UserStore
	Members  MembershipStore
	Messages MessageStore
	Mirror   PresenceMirror
	Relay    relay.Relay
}

// VerifierFunc adapts a plain function to IdentityVerifier.
type VerifierFunc func(credential string) (string, error)

func (f VerifierFunc) Verify(credential string) (string, error) { return f(credential) }

// Server orchestrates presence, room subscriptions, typing state and the
// broadcast pipeline for every connection on this gateway.
type Server struct {
	conf Config

	verifier IdentityVerifier
	users    UserStore
	members  MembershipStore
	messages MessageStore
	mirror   PresenceMirror
	rel      relay.Relay

	registry *ClientRegistry
	presence *PresenceRegistry
	rooms    *RoomTable
	typing   *TypingTracker
	disp     *Dispatcher

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewServer(conf Config, deps Deps) *Server {
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if deps.Relay == nil {
		deps.Relay = relay.Noop{}
	}
	s := &Server{
		conf:     conf,
		verifier: deps.Verifier,
		users:    deps.Users,
		members:  deps.Members,
		messages: deps.Messages,
		mirror:   deps.Mirror,
		rel:      deps.Relay,
		registry: NewClientRegistry(),
		presence: NewPresenceRegistry(),
		rooms:    NewRoomTable(),
		typing:   NewTypingTracker(conf.TypingTTL, conf.Clock),
		disp:     NewDispatcher(),
		stopCh:   make(chan struct{}),
	}
	s.disp.Register(joinHandler{})
	s.disp.Register(leaveHandler{})
	s.disp.Register(sendHandler{})
	s.disp.Register(typingHandler{})
	go s.typingSweeper()
	return s
}

func (s *Server) GatewayID() string { return s.conf.GatewayID }

func (s *Server) Presence() *PresenceRegistry { return s.presence }

// Connections reports how many connections this gateway currently holds.
func (s *Server) Connections() int { return s.registry.Len() }

func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ---- presence ----

// markOnline registers c as the current connection for its user,
// broadcasts the global online event, and fires the best-effort durable
// flags. A superseded connection stays open but is no longer mapped.
func (s *Server) markOnline(c *Client) {
	superseded := s.presence.MarkOnline(c.UserID, c)
	if superseded != nil {
		logger.Infof("[presence] user=%s conn=%s supersedes conn=%s", c.UserID, c.ID, superseded.ID)
	}
	s.broadcast(presenceEvent(c.UserID, true))

	userID := c.UserID
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.users.SetOnline(ctx, userID, true); err != nil {
			logger.Warnf("[presence] set online user=%s err=%v", userID, err)
		}
		if s.mirror != nil {
			if err := s.mirror.Online(ctx, userID); err != nil {
				logger.Warnf("[presence] mirror online user=%s err=%v", userID, err)
			}
		}
	})
}

// disconnect tears one connection down: always unsubscribes it, but only
// the currently mapped connection of the user produces the offline
// broadcast, the typing purge and the durable last-seen stamp. A stale
// disconnect from a superseded connection must not touch the newer state.
func (s *Server) disconnect(c *Client) {
	s.registry.Remove(c)
	s.rooms.Drop(c)

	if !s.presence.MarkOffline(c.UserID, c) {
		logger.Infof("[presence] stale disconnect user=%s conn=%s ignored", c.UserID, c.ID)
		return
	}

	for _, roomID := range s.typing.ClearUser(c.UserID) {
		kind, ok := c.joined(roomID)
		if !ok {
			kind, _ = s.rooms.Kind(roomID)
		}
		s.broadcastTyping(RoomRef{ID: roomID, Kind: kind}, c.UserID, false, c)
	}

	s.broadcast(presenceEvent(c.UserID, false))

	userID := c.UserID
	now := s.conf.Clock()
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.users.SetOnline(ctx, userID, false); err != nil {
			logger.Warnf("[presence] set offline user=%s err=%v", userID, err)
		}
		if err := s.users.SetLastSeen(ctx, userID, now); err != nil {
			logger.Warnf("[presence] set last seen user=%s err=%v", userID, err)
		}
		if s.mirror != nil {
			if err := s.mirror.Offline(ctx, userID); err != nil {
				logger.Warnf("[presence] mirror offline user=%s err=%v", userID, err)
			}
		}
	})
}

// ---- room membership ----

// JoinRoom re-validates membership against the store at call time; a
// failed check is logged and dropped, never surfaced to the peer.
func (s *Server) JoinRoom(ctx context.Context, c *Client, roomID string) error {
	room, err := s.members.Resolve(ctx, roomID)
	if err != nil {
		return err
	}
	ok, err := s.members.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("[rooms] join denied user=%s room=%s", c.UserID, roomID)
		return nil
	}
	s.rooms.Subscribe(room, c)
	c.setJoined(room)
	logger.Infof("[rooms] user=%s joined room=%s kind=%s", c.UserID, roomID, room.Kind)
	return nil
}

// LeaveRoom unconditionally unsubscribes; leaving needs no membership.
func (s *Server) LeaveRoom(c *Client, roomID string) {
	s.rooms.Unsubscribe(roomID, c)
	c.clearJoined(roomID)
	logger.Infof("[rooms] user=%s left room=%s", c.UserID, roomID)
}

// seedRooms subscribes a fresh connection to every room its user is a
// member of. A store failure here leaves the connection usable; explicit
// joins re-validate later anyway.
func (s *Server) seedRooms(ctx context.Context, c *Client) {
	refs, err := s.members.ListRoomsFor(ctx, c.UserID)
	if err != nil {
		logger.Warnf("[rooms] seed user=%s err=%v", c.UserID, err)
		return
	}
	for _, room := range refs {
		s.rooms.Subscribe(room, c)
		c.setJoined(room)
	}
}

// ---- typing ----

// SetTyping mutates the room's typing set after the live membership
// check. Events for rooms this connection is not subscribed to are
// ignored.
func (s *Server) SetTyping(ctx context.Context, c *Client, roomID string, isTyping bool) error {
	kind, subscribed := c.joined(roomID)
	if !subscribed {
		return nil
	}
	ok, err := s.members.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("[typing] denied user=%s room=%s", c.UserID, roomID)
		return nil
	}
	s.typing.Set(roomID, c.UserID, isTyping)
	s.broadcastTyping(RoomRef{ID: roomID, Kind: kind}, c.UserID, isTyping, c)
	return nil
}

// typingSweeper expires flags that were never withdrawn.
func (s *Server) typingSweeper() {
	ticker := time.NewTicker(s.typing.TTL() / 3)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.expireTyping(now)
		}
	}
}

// expireTyping drops overdue flags and emits each affected room's normal
// typing broadcast. Conversation expiries exclude the stale typer's own
// connection, same as an explicit withdrawal would.
func (s *Server) expireTyping(now time.Time) {
	for roomID, cleared := range s.typing.Expire(now) {
		kind, ok := s.rooms.Kind(roomID)
		if !ok {
			continue
		}
		room := RoomRef{ID: roomID, Kind: kind}
		if kind == RoomConversation {
			for _, userID := range cleared {
				typer, _ := s.presence.Current(userID)
				s.broadcastTyping(room, userID, false, typer)
			}
			continue
		}
		s.broadcastTyping(room, "", false, nil)
	}
}

// broadcastTyping emits the room's convention: full current set for
// channels (sender included), delta for conversations (sender excluded).
func (s *Server) broadcastTyping(room RoomRef, userID string, isTyping bool, sender *Client) {
	ev := typingEvent(room, userID, isTyping, s.typing.Active(room.ID))
	if room.Kind == RoomConversation {
		if userID == "" {
			// deltas need a subject; expiry for conversations is
			// delivered per cleared user by the sweeper
			return
		}
		s.broadcastExcept(ev, sender)
		return
	}
	s.broadcast(ev)
}

// ---- fan-out ----

// broadcast encodes once and delivers to every targeted local connection,
// then hands the frame to the relay for the other gateways.
func (s *Server) broadcast(ev Event) {
	s.broadcastExcept(ev, nil)
}

func (s *Server) broadcastExcept(ev Event, except *Client) {
	data, err := ev.Encode()
	if err != nil {
		logger.Errorf("[broadcast] encode type=%s err=%v", ev.Type, err)
		return
	}
	s.deliverLocal(ev.Type, ev.RoomID, ev.Global, data, except)

	if err := s.rel.Publish(relay.Envelope{RoomID: ev.RoomID, Global: ev.Global, Frame: data}); err != nil {
		logger.Warnf("[broadcast] relay type=%s err=%v", ev.Type, err)
	}
}

// DeliverRemote replays an envelope published by another gateway to the
// local subscribers only; it is never re-published.
func (s *Server) DeliverRemote(env relay.Envelope) {
	s.deliverLocal("remote", env.RoomID, env.Global, env.Frame, nil)
}

func (s *Server) deliverLocal(evType, roomID string, global bool, data []byte, except *Client) {
	var targets []*Client
	if global {
		targets = s.registry.All()
	} else {
		targets, _, _ = s.rooms.Subscribers(roomID)
	}
	for _, c := range targets {
		if c == except {
			continue
		}
		if !c.enqueue(data) {
			// peer is not draining; drop the connection, the read
			// loop will run the normal teardown
			logger.Warnf("[broadcast] queue full user=%s conn=%s type=%s", c.UserID, c.ID, evType)
			c.closeSend()
		}
	}
}

// sendToClient targets a single connection (snapshot seeding).
func (s *Server) sendToClient(c *Client, ev Event) {
	data, err := ev.Encode()
	if err != nil {
		logger.Errorf("[send] encode type=%s err=%v", ev.Type, err)
		return
	}
	if !c.enqueue(data) {
		c.closeSend()
	}
}
