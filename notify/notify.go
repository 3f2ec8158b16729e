// Package notify dispatches absence lifecycle events.
//
// KafkaNotifier publishes each event as JSON keyed by employee id, so all
// events of one employee land on the same partition in order. LogNotifier
// only logs and is used when no broker is configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
)

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier implements absence.Notifier on a Kafka topic.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaNotifier creates a writer for topic on brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w, topic, logger)
}

func newKafkaNotifier(w messageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &KafkaNotifier{
		writer:  w,
		topic:   topic,
		timeout: 5 * time.Second,
		logger:  logger.Named("notify.kafka"),
	}
}

// Notify publishes one event. The write is bounded by the notifier timeout
// so a slow broker never stalls the absence mutation for long.
func (n *KafkaNotifier) Notify(ctx context.Context, e absence.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.EmployeeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "absence_id", Value: []byte(e.AbsenceID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", e.Type, n.topic, err)
	}
	n.logger.Debug("event published",
		zap.String("type", e.Type),
		zap.String("absence_id", e.AbsenceID),
	)
	return nil
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier implements absence.Notifier by logging.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger.Named("notify.log")}
}

func (n *LogNotifier) Notify(_ context.Context, e absence.Event) error {
	n.logger.Info("absence event",
		zap.String("type", e.Type),
		zap.String("absence_id", e.AbsenceID),
		zap.String("employee_id", e.EmployeeID),
		zap.String("estado", e.Absence.Estado),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
