package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/config"
	"github.com/couchcryptid/metget-build-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces status updates to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes status updates in a single WriteMessages call. Updates
// are keyed by request id so every status of one request lands on the same
// partition in order.
func (w *Writer) LoadBatch(ctx context.Context, updates []domain.StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(updates))
	for i := range updates {
		msg, err := serializeToMessage(updates[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish status updates: %w", err)
	}
	w.logger.Debug("status updates published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a StatusUpdate into a Kafka message.
func serializeToMessage(update domain.StatusUpdate) (kafkago.Message, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize status update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(update.RequestID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(update.Status)},
			{Key: "updated_at", Value: []byte(update.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
