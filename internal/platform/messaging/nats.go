package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

const defaultSubjectPrefix = "review"

// NATSPublisher relays outbox events to a NATS server. Each envelope is sent
// as JSON on <prefix>.<event_type> with the event id in the Nats-Msg-Id
// header so JetStream streams can deduplicate redeliveries.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

func NewNATSPublisher(url string, subjectPrefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("review-consensus-worker"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected",
					"event", "nats_disconnected",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if strings.TrimSpace(subjectPrefix) == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix, logger: logger}, nil
}

// Publish waits for the server to acknowledge the flush so the relay only
// marks a row sent once the broker has it.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	msg, err := buildNATSMessage(p.subjectPrefix, topic, event)
	if err != nil {
		return err
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	p.logger.Debug("event published",
		"event", "nats_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"subject", msg.Subject,
		"event_id", event.EventID,
	)
	return nil
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func buildNATSMessage(prefix string, topic string, event ports.EventEnvelope) (*nats.Msg, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = event.EventType
	}
	if topic == "" {
		return nil, errors.New("event topic is required")
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event %q: %w", event.EventID, err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}
	msg := nats.NewMsg(prefix + "." + topic)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.EventID)
	msg.Header.Set("Partition-Key", event.PartitionKey)
	return msg, nil
}
