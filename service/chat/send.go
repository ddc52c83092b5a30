package chat

import (
	"context"
	"strings"

	"ChatWire/logger"
	"ChatWire/tools/errs"
)

// Send runs the message pipeline for one inbound frame:
//
//	validate -> authorize -> persist -> last-activity -> broadcast -> typing clear
//
// Persistence gates everything after it. If Append fails no broadcast and
// no typing change happen, so a message is never seen by peers without a
// durable copy. The last-activity stamp is best-effort; its failure only
// logs.
func (s *Server) Send(ctx context.Context, c *Client, roomID, content string) error {
	kind, subscribed := c.joined(roomID)
	if !subscribed {
		logger.Infof("[send] ignored unsubscribed user=%s room=%s", c.UserID, roomID)
		return nil
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return errs.ErrValidation.WrapMsg("empty message content")
	}

	ok, err := s.members.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		return errs.ErrDependency.WrapMsg("membership check", "room", roomID)
	}
	if !ok {
		return errs.ErrAuthorization.WrapMsg("not a member", "room", roomID)
	}

	room := RoomRef{ID: roomID, Kind: kind}
	msg, err := s.messages.Append(ctx, room, c.UserID, content)
	if err != nil {
		return errs.ErrDependency.WrapMsg("message append", "room", roomID)
	}

	if err := s.messages.UpdateLastActivity(ctx, room, msg); err != nil {
		logger.Warnf("[send] last activity room=%s err=%v", roomID, err)
	}

	s.broadcast(roomMessageEvent(msg))

	s.typing.Set(roomID, c.UserID, false)
	s.broadcastTyping(room, c.UserID, false, c)
	return nil
}
