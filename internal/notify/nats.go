package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event as JSON on subject "<prefix>.<event type>".
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to url. The connection reconnects on its own; events
// published while disconnected are buffered by the client.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("fitlib"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newNATSSink(conn, prefix), nil
}

func newNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "fitlib"
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (n *NATSSink) Subject(eventType string) string {
	return n.prefix + "." + eventType
}

// Name implements Sink.
func (n *NATSSink) Name() string { return "nats" }

// Send implements Sink.
func (n *NATSSink) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(ev.Type), err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSSink) Close() error {
	return n.conn.Drain()
}
