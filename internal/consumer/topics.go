package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ReaderConfig names the brokers, consumer group and topics to follow.
type ReaderConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// RunTopics starts one Processor per topic and blocks until ctx is cancelled
// and every processor has returned.
func RunTopics(ctx context.Context, cfg ReaderConfig, handler Handler, logger zerolog.Logger) {
	var wg sync.WaitGroup
	for _, topic := range cfg.Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.Brokers,
			GroupID:         cfg.GroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLogger := logger.With().Str("topic", topic).Logger()
		proc := NewProcessor(reader, handler, WithLogger(topicLogger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.Info().Str("group", cfg.GroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error().Err(err).Msg("consumer stopped")
			}
		}()
	}
	wg.Wait()
}
