package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSDispatcher publishes alerts as JSON. The destination is the subject.
// Delivery means the server acknowledged the publish by answering the flush.
type NATSDispatcher struct {
	conn *nats.Conn
}

// NewNATSDispatcher connects to the NATS server at url
func NewNATSDispatcher(url string) (*NATSDispatcher, error) {
	conn, err := nats.Connect(url, nats.Name("glucose-alerts"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSDispatcher{conn: conn}, nil
}

func (d *NATSDispatcher) Send(ctx context.Context, alert Alert, destination string) (bool, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return false, fmt.Errorf("marshal alert: %w", err)
	}
	if err := d.conn.Publish(destination, payload); err != nil {
		return false, fmt.Errorf("publish to %s: %w", destination, err)
	}
	if err := d.conn.FlushWithContext(ctx); err != nil {
		return false, fmt.Errorf("flush: %w", err)
	}
	return true, nil
}

// Close drains pending messages and closes the connection
func (d *NATSDispatcher) Close() error {
	return d.conn.Drain()
}
