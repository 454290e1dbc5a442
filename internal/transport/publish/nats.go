// Package publish is the outbound message-broker branch of the Dispatcher
// (spec §4.5). Grounded on the NATS usage found in the retrieval pack's
// other_examples (no top-level example repo in the pack imports NATS).
//
// Resolved per DESIGN.md's Open Question on wire protocol: core NATS
// publish, not JetStream, because JetStream's at-least-once redelivery
// would contradict the spec's "one dispatch attempt" non-goal.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ErrTransportUnavailable is returned when Publish is called without a
// configured connection (spec §4.5: "publish transport not available").
var ErrTransportUnavailable = errors.New("publish: transport not available")

// Client wraps a NATS connection as the process-wide publish transport.
// A nil *Client is valid and always fails with ErrTransportUnavailable,
// matching the spec's "absence of the transport is permitted" contract.
type Client struct {
	conn *nats.Conn
}

// Connect dials url and returns a ready-to-use Client. Call only when
// publishEnabled is true (spec §6); otherwise pass a nil *Client around.
func Connect(url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("timerd-dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends payload to subject with headers, fire-and-forget: success
// is the publish call returning without error, subscriber presence is
// never checked (spec §4.5 publish branch).
func (c *Client) Publish(subject string, headers map[string]string, payload json.RawMessage) error {
	if c == nil || c.conn == nil {
		return ErrTransportUnavailable
	}
	msg := &nats.Msg{Subject: subject, Data: payload}
	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close closes the connection without draining it. A nil receiver is a no-op, so
// callers can close unconditionally during shutdown.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

// Subject builds the NATS subject from topic and an optional routing key,
// concatenated with "." per spec §4.5.
func Subject(topic, routingKey string) string {
	if routingKey == "" {
		return topic
	}
	return topic + "." + routingKey
}
