package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cryptomonitor/internal/models"
)

// Producer publishes quote events to Kafka. A nil Producer is valid and
// drops every publish, so callers need no broker in development.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer. Returns nil when no brokers are
// configured.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishQuoteUpdated publishes a fresh quote observation
func (p *Producer) PublishQuoteUpdated(ctx context.Context, quote *models.Quote) error {
	if p == nil {
		return nil
	}
	event := models.QuoteEvent{
		EventType: "QUOTE_UPDATED",
		Quote:     quote,
		Symbol:    quote.Symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, quote.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.QuoteEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
