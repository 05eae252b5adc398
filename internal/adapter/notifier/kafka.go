package notifier

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var _ port.EventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes inventory change events to a Kafka topic keyed by
// product id, so all changes of one product land on the same partition.
type KafkaPublisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(logger *zap.Logger, brokers []string, topic string) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		logger: logger.Named("kafka"),
		writer: writer,
		topic:  topic,
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.InventoryChanged) error {
	value, err := encodeEvent(event)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ProductID, 10)),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return err
	}

	p.logger.Info("inventory change published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.Int64("product_id", event.ProductID),
		zap.Int("new_quantity", event.NewQuantity),
	)
	return nil
}
