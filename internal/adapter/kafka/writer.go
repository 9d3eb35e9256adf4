// Package kafka publishes completed estimate summaries to a topic so
// downstream consumers (CRM sync, analytics) can pick them up. The export is
// feature-flagged; the service runs fine without any brokers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/helioscope/solar-potential/internal/config"
	"github.com/helioscope/solar-potential/internal/observability"
	"github.com/helioscope/solar-potential/internal/report"
)

// EstimateEvent is the wire form of one exported estimate.
type EstimateEvent struct {
	Address            string    `json:"address"`
	BuildingName       string    `json:"building_name"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	ImageryQuality     string    `json:"imagery_quality"`
	PanelsCount        int       `json:"panels_count"`
	InstallationSizeKw float64   `json:"installation_size_kw"`
	Savings            float64   `json:"savings"`
	BreakEvenYear      int       `json:"break_even_year"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// Writer produces estimate events to the export topic.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured export topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishEstimate serializes one report and writes it to the export topic.
func (w *Writer) PublishEstimate(ctx context.Context, r report.Report) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish estimate: %w", err)
	}
	w.metrics.EstimatesSent.Inc()
	w.logger.Info("estimate published", "building", r.BuildingName, "panels", r.PanelsCount)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a report into a Kafka message keyed by the
// building name, so re-estimates for one building land in one partition.
func serializeToMessage(r report.Report) (kafkago.Message, error) {
	event := EstimateEvent{
		Address:            r.Address,
		BuildingName:       r.BuildingName,
		Latitude:           r.Location.Lat,
		Longitude:          r.Location.Lng,
		ImageryQuality:     r.ImageryQuality,
		PanelsCount:        r.PanelsCount,
		InstallationSizeKw: r.Projection.InstallationSizeKw,
		Savings:            r.Projection.Savings,
		BreakEvenYear:      r.Projection.BreakEvenYear,
		GeneratedAt:        r.Projection.ComputedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize estimate: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.BuildingName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "imagery_quality", Value: []byte(r.ImageryQuality)},
			{Key: "generated_at", Value: []byte(event.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
