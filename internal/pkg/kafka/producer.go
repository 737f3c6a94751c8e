package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes compression statistics. Image bytes are never sent.
type Producer interface {
	Publish(ctx context.Context, event entity.CompressionEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer checks the broker and creates the topic. When the broker is
// unreachable it returns a producer that only logs.
func NewProducer(brokers []string, topic string) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logrus.WithError(err).Warn("kafka connection failed, using log-only producer")
		return NewMockProducer()
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.WithError(err).Debugf("could not create topic %s (might already exist)", topic)
	}

	logrus.WithField("brokers", brokers).Info("kafka producer connected")
	return &kafkaProducer{writer: writer, topic: topic}
}

func (p *kafkaProducer) Publish(ctx context.Context, event entity.CompressionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RequestID),
		Value: value,
		Time:  event.Time,
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"topic": p.topic, "request_id": event.RequestID}).Debug("compression event published")
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// mockProducer stands in when Kafka is disabled or unreachable.
type mockProducer struct{}

func NewMockProducer() Producer {
	return &mockProducer{}
}

func (m *mockProducer) Publish(_ context.Context, event entity.CompressionEvent) error {
	logrus.WithFields(logrus.Fields{
		"request_id": event.RequestID,
		"files":      len(event.Files),
		"ratio":      event.Ratio,
	}).Debug("MOCK: compression event")
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
