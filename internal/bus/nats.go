package bus

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS publishes lifecycle events to a NATS cluster so other nodes (and
// external consumers) see them.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS dials the cluster with reconnection enabled. Publishing is
// fire-and-forget; a dropped message is acceptable, the durable record is
// the database.
func ConnectNATS(url string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(
		url,
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[Bus] NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Bus] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS at %s: %w", url, err)
	}
	return &NATS{nc: nc}, nil
}

// Publish sends one message on a subject.
func (n *NATS) Publish(subject string, data []byte) error {
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains outstanding publishes and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
