package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/config"
	"github.com/couchcryptid/neo-radar-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes committed NEO records to a Kafka topic.
// It implements repository.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka producer for the configured update topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger, now: time.Now}
}

// Publish writes one message per record, keyed by NEO id, in a single
// WriteMessages call.
func (w *Writer) Publish(ctx context.Context, neos []domain.NearEarthObject) error {
	if len(neos) == 0 {
		return nil
	}
	publishedAt := w.now().UTC()
	msgs := make([]kafkago.Message, len(neos))
	for i := range neos {
		msg, err := serializeToMessage(neos[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("neo updates published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a NearEarthObject into a Kafka message.
func serializeToMessage(neo domain.NearEarthObject, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(neo)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize neo %s: %w", neo.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(neo.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "close_approach_date", Value: []byte(neo.CloseApproachDate)},
			{Key: "hazardous", Value: []byte(strconv.FormatBool(neo.PotentiallyHazardous))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
