package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clicker-quiz-service/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSubject = "clicker.sessions"

	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// Publisher broadcasts session lifecycle events on core NATS subjects of the form
// <prefix>.<event type>, e.g. clicker.sessions.session.completed.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS with infinite reconnects and logs connection state changes.
func Connect(url, prefix string) (*Publisher, error) {
	if prefix == "" {
		prefix = DefaultSubject
	}
	opts := []nats.Option{
		nats.Name("clicker-quiz-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
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
	return &Publisher{nc: nc, prefix: prefix}, nil
}

func (p *Publisher) Publish(ctx context.Context, event domain.SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, data, err := encode(p.prefix, event)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("drain NATS connection")
		p.nc.Close()
	}
}

func encode(prefix string, event domain.SessionEvent) (string, []byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("marshal event: %w", err)
	}
	return prefix + "." + string(event.Type), data, nil
}
