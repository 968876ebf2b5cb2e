package kafkaclient

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the part of *kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer KafkaWriter
}

func NewKafkaProducer(topic, broker string) (*KafkaProducer, error) {
	if topic == "" || broker == "" {
		return nil, errors.New("kafka producer needs a topic and broker")
	}
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}, nil
}

func NewKafkaProducerWithWriter(w KafkaWriter) *KafkaProducer {
	return &KafkaProducer{writer: w}
}

// Publish writes one keyed message. Messages with the same key keep their order.
func (p *KafkaProducer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
