// Package publish fans appended interaction events out to subscribers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/model"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "mindlog.events"

// Publisher receives every event after it has been appended. Publishing is
// best effort: the event store stays the source of truth.
type Publisher interface {
	Publish(ctx context.Context, e *model.InteractionEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *model.InteractionEvent) error { return nil }
func (Nop) Close() error { return nil }

// Subject returns the subject for an event: <prefix>.turn, <prefix>.crisis
// or <prefix>.decision.
func Subject(prefix string, e *model.InteractionEvent) string {
	kind := "turn"
	switch {
	case e.IsDecision():
		kind = "decision"
	case e.Excluded():
		kind = "crisis"
	}
	return fmt.Sprintf("%s.%s", prefix, kind)
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL     string
	Subject string
	Token   string
}

// NATSPublisher publishes events as JSON on a core NATS connection.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// ConnectNATS establishes a connection to the NATS server.
func ConnectNATS(cfg NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	opts := []nats.Option{
		nats.Name("mindlog"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: nc, subject: cfg.Subject, logger: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e *model.InteractionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(Subject(p.subject, e), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
