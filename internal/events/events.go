// Package events publishes domain events to a message broker.
//
// Every message is the JSON envelope {"pattern": ..., "data": ...}, the
// shape microservice consumers on the other side match on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// UserCreated is published after the directory accepts a new user.
const UserCreated = "User_Created"

// Publisher sends one event. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, pattern string, payload any) error
	Close() error
}

type envelope struct {
	Pattern string `json:"pattern"`
	Data    any    `json:"data"`
}

func encode(pattern string, payload any) ([]byte, error) {
	body, err := json.Marshal(envelope{Pattern: pattern, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("events: encoding %s: %w", pattern, err)
	}
	return body, nil
}

// New picks the broker from the URI scheme: amqp/amqps for RabbitMQ, nats
// for NATS. An empty URI yields a publisher that only logs.
func New(uri, queue string, logger *slog.Logger) (Publisher, error) {
	switch {
	case uri == "":
		logger.Warn("RABBIT_MQ_URI not set, events are disabled")
		return &logPublisher{logger: logger}, nil
	case strings.HasPrefix(uri, "amqp://"), strings.HasPrefix(uri, "amqps://"):
		return NewRabbitMQPublisher(uri, queue, logger)
	case strings.HasPrefix(uri, "nats://"), strings.HasPrefix(uri, "tls://"):
		return NewNatsPublisher(uri, queue, logger)
	default:
		return nil, fmt.Errorf("events: unsupported broker uri scheme in %q", uri)
	}
}

type logPublisher struct {
	logger *slog.Logger
}

func (p *logPublisher) Publish(_ context.Context, pattern string, _ any) error {
	p.logger.Info("event skipped, no broker", slog.String("pattern", pattern))
	return nil
}

func (p *logPublisher) Close() error { return nil }
