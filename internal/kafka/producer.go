// Package kafka publishes fare quotes to the optional result stream consumed
// by the graph writer and other downstream sinks.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"farematrix/internal/models"
)

// QuoteWriter publishes FareQuote messages.
type QuoteWriter interface {
	WriteQuote(ctx context.Context, quote models.FareQuote) error
	Close() error
}

// QuoteProducer wraps a Kafka writer for publishing fare quotes. Messages are
// keyed by route so quotes for the same city pair land on the same partition.
type QuoteProducer struct {
	writer MessageWriter
}

// NewQuoteProducer creates a producer for the given broker and topic.
func NewQuoteProducer(broker, topic string) *QuoteProducer {
	return &QuoteProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewQuoteProducerWithWriter builds a producer using a custom writer (tests).
func NewQuoteProducerWithWriter(writer MessageWriter) *QuoteProducer {
	return &QuoteProducer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *QuoteProducer) Close() error {
	return p.writer.Close()
}

// WriteQuote publishes one fare quote.
func (p *QuoteProducer) WriteQuote(ctx context.Context, quote models.FareQuote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(quote.Route()),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	return p.writer.WriteMessages(ctx, msg)
}
