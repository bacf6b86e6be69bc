package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads domain events from a consumer group and dispatches
// them. Offsets are committed after dispatch, malformed messages included,
// so a poison message never blocks the partition.
type KafkaConsumer struct {
	reader        messageReader
	dispatcher    Dispatcher
	defaultTenant string
	logger        *slog.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, dispatcher Dispatcher, defaultTenant string, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: []string{topic},
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return &KafkaConsumer{
		reader:        reader,
		dispatcher:    dispatcher,
		defaultTenant: defaultTenant,
		logger:        logger,
	}, nil
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("kafka consumer stopping")
				return nil
			}
			return fmt.Errorf("fetching kafka message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing kafka offset: %w", err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	event, err := Decode(msg.Value, c.defaultTenant)
	if err != nil {
		c.logger.Warn("skipping malformed event",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return
	}

	n := c.dispatcher.Dispatch(ctx, event)
	c.logger.Debug("kafka event dispatched", "event_type", event.Type, "offset", msg.Offset, "deliveries", n)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
