package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bookloop/messaging-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafkago.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// MessageSentEvent is the payload written to the message.sent topic.
type MessageSentEvent struct {
	Event           string          `json:"event"`
	ConversationKey string          `json:"conversation_key"`
	Message         *domain.Message `json:"message"`
}

// kafka-go waits a full second for a batch to fill by default; events go out
// one at a time.
const batchTimeout = 10 * time.Millisecond

type Producer struct {
	writer MessageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: batchTimeout,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

// NewProducerWithWriter is used by tests to capture writes.
func NewProducerWithWriter(w MessageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// PublishMessageSent keys the event by conversation so one pair's messages
// stay on one partition, in order.
func (p *Producer) PublishMessageSent(ctx context.Context, m *domain.Message) error {
	key := m.Key().String()
	b, err := json.Marshal(MessageSentEvent{Event: "message.sent", ConversationKey: key, Message: m})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *Producer) Close(ctx context.Context) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
