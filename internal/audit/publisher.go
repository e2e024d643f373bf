package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"staygate/internal/platform/kafka"
)

// Publisher emits audit events. Implementations must be safe for concurrent
// use; callers treat emission failures as non-fatal and log them.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// KafkaPublisher delivers events to the audit topic keyed by host id so a
// host's history stays ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Publisher
}

func NewKafkaPublisher(producer *kafka.Publisher) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := p.producer.Publish(ctx, []byte(event.HostID), payload); err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.Action, err)
	}
	return nil
}

// LogPublisher writes events to the structured log. Used when Kafka is not
// configured so deployments without a broker still keep an audit trail.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.logger.InfoContext(ctx, "audit event",
		"action", event.Action,
		"host_id", event.HostID,
		"guest_id", event.GuestID,
		"subject", event.Subject,
		"detail", event.Detail,
	)
	return nil
}
