// Package notify fans transaction lifecycle events out to subscribers: the
// WebSocket hub of the API and, when brokers are configured, a Kafka topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"azuro-bet/pkg/types"
)

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt types.LifecycleEvent) error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event as a JSON message keyed by account, so all
// events of one wallet land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for topic on a comma-separated
// broker list. The writer is asynchronous: Publish only queues the message,
// so a slow or unreachable broker never holds up a transaction. Delivery
// failures are logged from the writer's completion callback.
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) *KafkaPublisher {
	logger = logger.With("component", "kafka_publisher")
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  true,
		Completion:             completionLogger(topic, logger),
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func completionLogger(topic string, logger *slog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err != nil {
			logger.Warn("failed to deliver lifecycle events", "topic", topic, "count", len(msgs), "error", err)
		}
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Account),
		Value: value,
		Time:  evt.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", p.topic, err)
	}
	p.logger.Debug("published lifecycle event", "kind", evt.Kind, "to", evt.To, "tx", evt.TxHash)
	return nil
}

// Close flushes queued messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Fanout publishes to every publisher in order. All publishers are tried;
// their errors are joined.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
