package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PatternScan/internal/domain/models"
	applogger "PatternScan/pkg/logger"
)

// MessagePublisher is the subset of the Kafka producer used here.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher publishes domain events as JSON keyed by symbol, and
// error digests to the companion logs topic.
type KafkaEventPublisher struct {
	producer  MessagePublisher
	topic     string
	logsTopic string
	now       func() time.Time
}

func NewKafkaEventPublisher(producer MessagePublisher, topic, logsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, logsTopic: logsTopic, now: time.Now}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}
	key := ev.Symbol
	if key == "" {
		key = ev.Type
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(key), ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// PublishDigest implements logger.Publisher.
func (p *KafkaEventPublisher) PublishDigest(ctx context.Context, entries []applogger.DigestEntry) error {
	ev := models.Event{
		ID:         uuid.NewString(),
		Type:       models.EventErrorDigest,
		OccurredAt: p.now().UTC(),
		Payload:    entries,
	}
	return p.producer.Publish(ctx, p.logsTopic, []byte(ev.Type), ev)
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }

// NopEventPublisher drops events when no broker is configured.
type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, models.Event) error { return nil }
func (NopEventPublisher) Close() error                                { return nil }
