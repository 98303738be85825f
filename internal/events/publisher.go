package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NoopPublisher drops events. It is used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *Event) error { return nil }

type JetStreamPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  Config
	log  *zap.Logger
}

func NewPublisher(lc fx.Lifecycle, cfg Config, log *zap.Logger) (Publisher, error) {
	log = log.Named("events")
	if strings.TrimSpace(cfg.URL) == "" {
		log.Info("nats url not set, settlement events disabled")
		return NoopPublisher{}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	publisher := &JetStreamPublisher{conn: conn, js: js, cfg: cfg, log: log}
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: publisher.ensureStream,
			OnStop: func(context.Context) error {
				return conn.Drain()
			},
		})
	}
	return publisher, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      p.cfg.Stream,
		Subjects:  []string{Subject("payment.>")},
		MaxAge:    p.cfg.MaxAge,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", p.cfg.Stream, err)
	}
	p.log.Info("stream ensured", zap.String("stream", p.cfg.Stream))
	return nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if p.cfg.PublishWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishWait)
		defer cancel()
	}

	subject := Subject(event.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	p.log.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("subject", subject),
	)
	return nil
}
