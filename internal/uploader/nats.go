package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const natsConnectAttempts = 5

// NATSConnection is the subset of *nats.Conn the transport needs, kept narrow
// for dependency injection in tests.
type NATSConnection interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

// NATSTransport publishes each encoded segment to a NATS subject.
type NATSTransport struct {
	conn    NATSConnection
	subject string
}

// NewNATSTransport connects to the NATS server with retry and returns a
// transport publishing to the given subject.
func NewNATSTransport(url, subject string) (*NATSTransport, error) {
	var nc *nats.Conn
	var err error
	for i := 0; i < natsConnectAttempts; i++ {
		nc, err = nats.Connect(url)
		if err == nil {
			break
		}
		slog.Warn("NATS connect failed, retrying", "attempt", i+1, "attempts", natsConnectAttempts, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	slog.Info("connected to NATS", "url", url, "subject", subject)
	return &NATSTransport{conn: nc, subject: subject}, nil
}

// NewNATSTransportWithConn wraps an existing connection. Used by tests.
func NewNATSTransportWithConn(conn NATSConnection, subject string) *NATSTransport {
	return &NATSTransport{conn: conn, subject: subject}
}

// Send publishes one segment as JSON.
func (t *NATSTransport) Send(ctx context.Context, seg Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("marshal segment: %w", err)
	}
	if err := t.conn.Publish(t.subject, payload); err != nil {
		return fmt.Errorf("publish segment: %w", err)
	}
	return t.conn.Flush()
}

// Close closes the NATS connection.
func (t *NATSTransport) Close() error {
	t.conn.Close()
	return nil
}
