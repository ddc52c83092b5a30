package chat

import (
	errs "ChatWire/tools/errs"
)

// Dispatcher routes inbound frames to the handler registered for their
// event type. Unknown types are a validation error; the caller drops the
// event and keeps the connection open.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(ctx *Context, f *Frame, c *Client) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrValidation.WrapMsg("no handler", "type", f.Type)
	}
	return h.Handle(ctx, f, c)
}
