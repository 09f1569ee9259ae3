package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessageWriter abstracts kafka.Writer for tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader abstracts kafka.Reader for tests.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
