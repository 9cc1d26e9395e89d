// Package nats is the JetStream client transfer events travel over.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/blockedby/relaybot/internal/logger"
)

// Stream and subject layout of relay events.
const (
	StreamName    = "RELAY"
	SubjectPrefix = "relay."
	SubjectAll    = SubjectPrefix + ">"
)

// Client wraps a nats connection and its jetstream context.
type Client struct {
	Conn *nats.Conn
	js   jetstream.JetStream
	log  *logger.Logger
}

// New connects to natsURL. The connection retries in the background after
// the first successful dial.
func New(_ context.Context, natsURL string) (*Client, error) {
	log := logger.With("nats")
	conn, err := nats.Connect(natsURL,
		nats.Name("relaybot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Client{Conn: conn, js: js, log: log}, nil
}

// EnsureStream creates or updates the relay event stream. Events older than
// maxAge are discarded.
func (c *Client) EnsureStream(ctx context.Context, maxAge time.Duration) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		MaxAge:   maxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Publish marshals data as JSON and publishes it to subject.
func (c *Client) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := c.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe consumes subject through an ephemeral consumer that starts at new
// messages. handler errors nak the message for redelivery. The returned stop
// function ends consumption.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func([]byte) error) (func(), error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("nats: handler failed, message will be redelivered")
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", subject, err)
	}
	return cc.Stop, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if err := c.Conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.Conn.Close()
	}
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	return c.Conn.IsConnected()
}
