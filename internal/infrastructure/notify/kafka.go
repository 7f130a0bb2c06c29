package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

var _ ledger.Notifier = (*KafkaPublisher)(nil)

// KafkaPublisher writes events to one topic, keyed by event name. Writes are
// asynchronous: Publish only queues the message and delivery failures are
// logged.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher. timeout bounds every batch write.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	log := logger.Default().WithComponent("kafka")
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			Async:                  true,
			BatchTimeout:           50 * time.Millisecond,
			WriteTimeout:           timeout,
			MaxAttempts:            3,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Warnw("kafka delivery failed", "messages", len(messages), "error", err)
				}
			},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event string, payload any) error {
	body, err := Encode(event, payload, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event), Value: body}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event, err)
	}
	return nil
}

// Close flushes queued messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
