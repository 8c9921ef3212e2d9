package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes on a subject derived from the queue name.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

var _ Publisher = (*NatsPublisher)(nil)

func NewNatsPublisher(url, queue string, logger *slog.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("user-avatar-service"))
	if err != nil {
		return nil, fmt.Errorf("events: connecting to nats: %w", err)
	}
	return &NatsPublisher{conn: nc, subject: subjectFor(queue), logger: logger}, nil
}

// subjectFor turns "user queue" into "user.queue"; NATS subjects cannot
// contain spaces.
func subjectFor(queue string) string {
	return strings.Join(strings.Fields(queue), ".")
}

func (p *NatsPublisher) Publish(ctx context.Context, pattern string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := encode(pattern, payload)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = body

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publishing %s: %w", pattern, err)
	}

	p.logger.Debug("event published",
		slog.String("broker", "nats"),
		slog.String("subject", p.subject),
		slog.String("pattern", pattern),
	)
	return nil
}

func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}
