package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

var _ ledger.Notifier = (*NATSPublisher)(nil)

// NATSPublisher publishes events on <prefix>.<event>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url. The connection reconnects forever.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	log := logger.Default().WithComponent("nats")
	conn, err := nats.Connect(url,
		nats.Name("stockflow-ledger"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("disconnected", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, event string, payload any) error {
	body, err := Encode(event, payload, time.Now())
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.prefix+"."+event, body); err != nil {
		return fmt.Errorf("nats publish %s: %w", event, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
