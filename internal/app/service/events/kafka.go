package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
)

const eventTypeHeader = "event_type"

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.SugaredLogger
}

// NewKafkaProducer opens a synchronous producer that waits for all in-sync
// replicas.
func NewKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "synka-billing"
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Net.DialTimeout = 5 * time.Second
	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return p, nil
}

// NewKafkaPublisher keys messages by user id so a user's changes stay ordered
// within one partition.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.SugaredLogger) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic, log: log}
}

func (p *kafkaPublisher) Name() string { return "kafka" }

func (p *kafkaPublisher) Publish(ctx context.Context, ev *EntitlementChanged) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal entitlement event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UserID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte("entitlement." + ev.Reason)},
		},
		Timestamp: ev.OccurredAt,
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish entitlement event: %w", err)
	}
	logctx.FromCtx(ctx, p.log).Debugw("published entitlement event", "topic", p.topic, "partition", partition, "offset", offset)
	return nil
}

func (p *kafkaPublisher) Close() error { return p.producer.Close() }
