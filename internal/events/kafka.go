package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by activity id so every change of
// one activity lands on the same partition. Writers are created lazily per topic.
type KafkaPublisher struct {
	brokers []string
	topic   string

	mu        sync.Mutex
	writers   map[string]MessageWriter
	newWriter func(topic string) MessageWriter
}

// NewKafkaPublisher creates a KafkaPublisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	p := &KafkaPublisher{
		brokers: brokers,
		topic:   topic,
		writers: make(map[string]MessageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p
}

// PublishStatusChanged implements Publisher.
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, evt ActivityStatusChanged) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", TypeStatusChanged, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.ActivityID),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeStatusChanged)},
		},
	}
	return p.writerForTopic(p.topic).WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) writerForTopic(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

func (p *KafkaPublisher) kafkaWriter(topic string) MessageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
}

// Close releases all writers.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
