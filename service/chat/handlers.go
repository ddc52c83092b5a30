package chat

// The inbound handlers are thin shells: decode the payload, then call the
// server operation. Policy (membership checks, pipeline ordering) lives on
// Server, not here.

type joinHandler struct{}

func (joinHandler) Type() string { return EvtJoinRoom }

func (joinHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	p, err := Payload[JoinRoomPayload](f)
	if err != nil {
		return err
	}
	return ctx.S.JoinRoom(ctx.Ctx, c, p.RoomID)
}

type leaveHandler struct{}

func (leaveHandler) Type() string { return EvtLeaveRoom }

func (leaveHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	p, err := Payload[LeaveRoomPayload](f)
	if err != nil {
		return err
	}
	ctx.S.LeaveRoom(c, p.RoomID)
	return nil
}

type sendHandler struct{}

func (sendHandler) Type() string { return EvtSend }

func (sendHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	p, err := Payload[SendPayload](f)
	if err != nil {
		return err
	}
	return ctx.S.Send(ctx.Ctx, c, p.RoomID, p.Content)
}

type typingHandler struct{}

func (typingHandler) Type() string { return EvtSetTyping }

func (typingHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	p, err := Payload[SetTypingPayload](f)
	if err != nil {
		return err
	}
	return ctx.S.SetTyping(ctx.Ctx, c, p.RoomID, p.IsTyping)
}
