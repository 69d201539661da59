package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second
)

// Envelope wraps a wire line with the transport sender field the line
// format itself does not carry.
type Envelope struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// NATSChannel is the production Channel: core NATS pub/sub on a per-group
// subject. Core NATS (no JetStream) is deliberate: the protocol wants
// at-most-once, unordered, best-effort delivery.
type NATSChannel struct {
	nc          *nats.Conn
	subject     string
	chatSubject string
	localID     string
	sub         *nats.Subscription
}

// ConnectNATS connects to NATS and scopes the channel to one group. Every
// peer in the group must use the same group name for the protocol to work.
func ConnectNATS(url, group, localID string) (*NATSChannel, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSChannel{
		nc:          nc,
		subject:     fmt.Sprintf("jumpboard.group.%s", group),
		chatSubject: fmt.Sprintf("jumpboard.group.%s.chat", group),
		localID:     localID,
	}, nil
}

func (c *NATSChannel) Broadcast(rawText string) error {
	data, err := json.Marshal(Envelope{Sender: c.localID, Text: rawText})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.nc.Publish(c.subject, data)
}

func (c *NATSChannel) Post(lines []string) error {
	for _, line := range lines {
		data, err := json.Marshal(Envelope{Sender: c.localID, Text: line})
		if err != nil {
			return fmt.Errorf("marshal chat envelope: %w", err)
		}
		if err := c.nc.Publish(c.chatSubject, data); err != nil {
			return fmt.Errorf("publish chat line: %w", err)
		}
	}
	return nil
}

func (c *NATSChannel) Subscribe(h Handler) error {
	sub, err := c.nc.Subscribe(c.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Debug().Err(err).Msg("dropping undecodable envelope")
			return
		}
		h(env.Sender, env.Text)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	return nil
}

func (c *NATSChannel) Close() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("unsubscribe failed during close")
		}
	}
	c.nc.Close()
	return nil
}
