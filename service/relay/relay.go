// Package relay fans locally produced broadcast events out to the other
// gateway nodes, so a room whose members are spread over several gateways
// still sees every event exactly once.
package relay

import "encoding/json"

// Envelope wraps one outbound event frame for transport between gateways.
// RoomID routes room events; Global marks presence-style events addressed
// to every connection.
type Envelope struct {
	Gateway string          `json:"gateway"`
	RoomID  string          `json:"roomId,omitempty"`
	Global  bool            `json:"global,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

type Relay interface {
	Publish(env Envelope) error
	Close() error
}

// Noop is the single-node relay: publishing is a no-op because every
// subscriber is local.
type Noop struct{}

func (Noop) Publish(Envelope) error { return nil }
func (Noop) Close() error           { return nil }
