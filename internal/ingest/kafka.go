package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sensorfuse/internal/config"
	"sensorfuse/internal/model"
)

func StartKafka(ctx context.Context, cfg *config.Manager, dedupe *DedupeCache, out chan<- model.ReadingBatch, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			batch, err := ParseBatchBytes(m.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka batch rejected", "err", err)
				}
				continue
			}
			batch.Source = "kafka"
			ttl := cfg.Get().Ingest.DedupeWindow
			if dedupe != nil && dedupe.Seen(BatchKey(*batch), time.Now().UTC(), ttl) {
				continue
			}
			SendNonBlocking(ctx, out, *batch, logger)
		}
	}()
}
