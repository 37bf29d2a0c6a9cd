package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/util"
)

type KafkaProducer struct {
	Writer *kafka.Writer
	config config.KafkaConfig
	tls    *tls.Config
}

type KafkaConsumer struct {
	Reader *kafka.Reader
}

func kafkaTLS(cfg *config.Config) *tls.Config {
	if !cfg.Kafka.EnableTLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.IsDevelopment(),
	}
}

func NewKafkaProducer(cfg *config.Config) *KafkaProducer {
	kafkaConfig := cfg.Kafka
	tlsConfig := kafkaTLS(cfg)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(kafkaConfig.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchBytes:             1048576,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: cfg.IsDevelopment(),
		Transport:              &kafka.Transport{TLS: tlsConfig},
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.Bool("tls", tlsConfig != nil))

	return &KafkaProducer{
		Writer: writer,
		config: kafkaConfig,
		tls:    tlsConfig,
	}
}

func NewKafkaConsumer(cfg *config.Config, topic, groupID string) *KafkaConsumer {
	kafkaConfig := cfg.Kafka

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kafkaConfig.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			TLS:       kafkaTLS(cfg),
		},
	})

	util.Info("Kafka consumer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID))

	return &KafkaConsumer{Reader: reader}
}

func (p *KafkaProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			util.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		util.Info("Kafka producer closed")
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			util.Error("failed to close Kafka consumer", zap.Error(err))
			return err
		}
		util.Info("Kafka consumer closed")
	}
	return nil
}

func (p *KafkaProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	util.Debug("Produced kafka message",
		zap.String("topic", topic),
		zap.Int("value_size", len(value)))

	return nil
}

// Publish writes one payload keyed for per-key ordering and tags it with an
// event id.
func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return p.ProduceMessage(ctx, topic, []byte(key), payload, map[string]string{
		"event_id":     uuid.NewString(),
		"content_type": "application/json",
	})
}

func (c *KafkaConsumer) ConsumeMessage(ctx context.Context) (*kafka.Message, error) {
	msg, err := c.Reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read kafka message: %w", err)
	}

	util.Debug("Consumed kafka message",
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Time("time", msg.Time))

	return &msg, nil
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	if len(p.config.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	dialer := &kafka.Dialer{
		TLS:       p.tls,
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read Kafka brokers: %w", err)
	}
	return nil
}
