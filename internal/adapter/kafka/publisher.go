// Package kafka publishes cycle lifecycle events so downstream consumers can
// refresh when a new HRRR cycle becomes active.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/config"
	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventCycleActivated is the event_type header of activation messages.
const EventCycleActivated = "cycle_activated"

// CycleActivatedEvent is the JSON body of an activation message.
type CycleActivatedEvent struct {
	InitTime        time.Time  `json:"init_time"`
	ActivatedAt     *time.Time `json:"activated_at"`
	ForecastHours   int        `json:"forecast_hours"`
	FailedHours     int        `json:"failed_hours"`
	SurfaceRows     int        `json:"surface_rows"`
	PressureRows    int        `json:"pressure_rows"`
	DownloadBytes   int64      `json:"download_bytes"`
	TotalDurationMS *int64     `json:"total_duration_ms"`
}

// Publisher produces cycle events to a Kafka topic.
// It implements pipeline.Notifier.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured cycle topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaCycleTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// CycleActivated publishes an activation event for c, keyed by init time.
func (p *Publisher) CycleActivated(ctx context.Context, c domain.Cycle) error {
	msg, err := serializeToMessage(c)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish cycle %s: %w", c.InitTime.Format(time.RFC3339), err)
	}
	p.logger.Info("cycle activation published", "init_time", c.InitTime, "topic", p.writer.Topic)
	return nil
}

// Close flushes pending messages and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newEvent(c domain.Cycle) CycleActivatedEvent {
	return CycleActivatedEvent{
		InitTime:        c.InitTime.UTC(),
		ActivatedAt:     c.ActivatedAt,
		ForecastHours:   c.ProcessCompleted,
		FailedHours:     c.DownloadFailed + c.ProcessFailed,
		SurfaceRows:     c.IngestSurfaceRows,
		PressureRows:    c.IngestPressureRows,
		DownloadBytes:   c.DownloadBytes,
		TotalDurationMS: c.TotalDurationMS,
	}
}

// serializeToMessage marshals an activation event into a Kafka message.
func serializeToMessage(c domain.Cycle) (kafkago.Message, error) {
	data, err := json.Marshal(newEvent(c))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cycle event: %w", err)
	}
	initTime := c.InitTime.UTC().Format(time.RFC3339)
	return kafkago.Message{
		Key:   []byte(initTime),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventCycleActivated)},
			{Key: "init_time", Value: []byte(initTime)},
		},
	}, nil
}
