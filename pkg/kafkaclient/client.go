package kafkaclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("prefix", "kafka")

// KafkaReader defines the interface for a Kafka message reader.
// This allows for easy mocking in unit tests.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer manages the Kafka consumer and its message loop.
type KafkaConsumer struct {
	reader KafkaReader
	// closed to ask the loop to stop
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	// messages handed to the caller, closed when the loop exits
	messageChan chan kafka.Message
	backoff     time.Duration
}

// NewKafkaConsumer creates a consumer that commits offsets manually.
func NewKafkaConsumer(topic, groupID, broker string) (*KafkaConsumer, error) {
	if topic == "" || groupID == "" || broker == "" {
		return nil, errors.New("kafka consumer needs a topic, group id and broker")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
		// Disable auto-commit to manually control offset committing.
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
	return newConsumer(reader), nil
}

func newConsumer(reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:      reader,
		doneChan:    make(chan struct{}),
		messageChan: make(chan kafka.Message),
		backoff:     time.Second,
	}
}

func (kc *KafkaConsumer) Messages() <-chan kafka.Message {
	return kc.messageChan
}

func (kc *KafkaConsumer) CommitOffset(ctx context.Context, msg kafka.Message) error {
	logger.WithFields(log.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}).
		Debug("committing offset")
	return kc.reader.CommitMessages(ctx, msg)
}

// StartConsuming begins the message loop in a separate goroutine.
func (kc *KafkaConsumer) StartConsuming(ctx context.Context) {
	kc.wg.Add(1)
	go func() {
		defer kc.wg.Done()
		defer close(kc.messageChan)

		logger.Info("starting consumer loop")

		for {
			select {
			case <-ctx.Done():
				logger.Info("context canceled, stopping consumer loop")
				return
			case <-kc.doneChan:
				logger.Info("shutdown signal received, stopping consumer loop")
				return
			default:
			}

			msg, err := kc.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return
				}
				logger.WithError(err).Error("reading message")
				// avoid a tight error loop
				select {
				case <-time.After(kc.backoff):
				case <-kc.doneChan:
					return
				}
				continue
			}

			select {
			case kc.messageChan <- msg:
				logger.WithFields(log.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}).
					Debug("message received")
			case <-ctx.Done():
				return
			case <-kc.doneChan:
				return
			}
		}
	}()
}

// Stop shuts the consumer down and closes the reader.
func (kc *KafkaConsumer) Stop() {
	kc.stopOnce.Do(func() {
		logger.Info("stopping consumer")
		close(kc.doneChan)
		kc.wg.Wait()
		if err := kc.reader.Close(); err != nil {
			logger.WithError(err).Error("closing reader")
		}
	})
}
