package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaAuditConfig configures the Kafka audit sink.
type KafkaAuditConfig struct {
	Brokers []string
	Topic   string
}

// KafkaAuditSink republishes completed-execution events to an external
// Kafka topic for durable audit trails. It is registered with
// EventBus.AddSink, so a broker outage degrades to dropped audit records,
// never to blocked in-process delivery.
type KafkaAuditSink struct {
	producer sarama.AsyncProducer
	topic    string
	errors   chan error
}

// NewKafkaAuditSink dials brokers and starts the async producer's error
// and success drains.
func NewKafkaAuditSink(cfg KafkaAuditConfig) (*KafkaAuditSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka audit sink: %w", err)
	}

	sink := &KafkaAuditSink{producer: producer, topic: cfg.Topic, errors: make(chan error, 100)}
	go sink.drainErrors()
	return sink, nil
}

func (k *KafkaAuditSink) drainErrors() {
	for err := range k.producer.Errors() {
		select {
		case k.errors <- err.Err:
		default:
		}
	}
}

// Sink is the func(BusEvent) value passed to EventBus.AddSink. It only
// forwards execution-completed events: node-level chatter (node-started,
// node-status-update) is progress-tracker traffic, not audit traffic.
func (k *KafkaAuditSink) Sink(ev BusEvent) {
	if ev.Type != EventExecutionCompleted {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	message := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(ev.ExecutionID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	}

	select {
	case k.producer.Input() <- message:
	default:
		// Producer backlog full: drop rather than block this event's
		// sink goroutine.
	}
}

func (k *KafkaAuditSink) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("kafka audit sink close: %w", err)
	}
	close(k.errors)
	return nil
}
