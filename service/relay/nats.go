package relay

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ChatWire/logger"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "chat.events"

// Config for the NATS-backed relay.
type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
	SubjectPrefix string
}

// NATSRelay publishes local events on <prefix>.<gatewayID> and re-delivers
// foreign events received on <prefix>.*. Delivery is fire-and-forget: a
// relay failure never blocks local fan-out.
type NATSRelay struct {
	cfg     Config
	nc      *nats.Conn
	sub     *nats.Subscription
	gateway string
}

// NewNATS connects and subscribes. onRemote is invoked for every envelope
// published by another gateway.
func NewNATS(cfg Config, gatewayID string, onRemote func(Envelope)) (*NATSRelay, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}

	r := &NATSRelay{cfg: cfg, nc: nc, gateway: gatewayID}
	r.sub, err = nc.Subscribe(cfg.SubjectPrefix+".*", func(m *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Warnf("[relay] bad envelope on %s: %v", m.Subject, err)
			return
		}
		if env.Gateway == r.gateway {
			return // our own publication echoed back
		}
		onRemote(env)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

func (r *NATSRelay) Publish(env Envelope) error {
	env.Gateway = r.gateway
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.nc.Publish(r.cfg.SubjectPrefix+"."+r.gateway, data)
}

func (r *NATSRelay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	r.nc.Close()
	return nil
}
