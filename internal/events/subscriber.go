// Package events feeds chat-platform membership events from NATS into the
// membership service.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/mclink/internal/services/membership"
)

// QueueGroup spreads events across every running instance
const QueueGroup = "mclink"

// Dispatcher accepts membership events without blocking
type Dispatcher interface {
	Dispatch(event membership.Event)
}

// Subscriber consumes membership events from a NATS subject
type Subscriber struct {
	conn       *nats.Conn
	sub        *nats.Subscription
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Subscribe connects to url and starts delivering events on subject to d
func Subscribe(url, subject string, d Dispatcher, logger *slog.Logger) (*Subscriber, error) {
	logger = logger.With(slog.String("component", "events"))
	conn, err := nats.Connect(url,
		nats.Name("mclink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	s := &Subscriber{conn: conn, dispatcher: d, logger: logger}
	s.sub, err = conn.QueueSubscribe(subject, QueueGroup, s.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}

	logger.Info("subscribed to membership events", slog.String("subject", subject))
	return s, nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var event membership.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("dropping malformed membership event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := event.Validate(); err != nil {
		s.logger.Warn("dropping invalid membership event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}
	s.dispatcher.Dispatch(event)
}

// Close drains in-flight messages and disconnects
func (s *Subscriber) Close() error {
	return s.conn.Drain()
}
