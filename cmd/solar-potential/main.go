package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/helioscope/solar-potential/internal/adapter/geocode"
	"github.com/helioscope/solar-potential/internal/adapter/httpapi"
	kafkaadapter "github.com/helioscope/solar-potential/internal/adapter/kafka"
	"github.com/helioscope/solar-potential/internal/adapter/solarapi"
	"github.com/helioscope/solar-potential/internal/config"
	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/observability"
	"github.com/helioscope/solar-potential/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := geocode.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = geocode.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("address geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("address geocoding disabled; coordinate input only")
	}

	solar := solarapi.NewCachedClient(
		solarapi.NewClient(cfg, logger, metrics),
		cfg.InsightsCacheSize,
		cfg.RasterCacheSize,
		metrics,
	)

	params := domain.DefaultParams(
		cfg.DefaultMonthlyBill,
		cfg.DefaultEnergyCostPerKwh,
		cfg.DefaultPanelCapacityWatts,
	)
	store := session.NewStore(params, logger, metrics)

	// Estimate export is feature-flagged; the service runs without brokers.
	var publisher httpapi.EstimatePublisher
	var writer *kafkaadapter.Writer
	if cfg.ExportEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		publisher = writer
		metrics.ExportEnabled.Set(1)
		logger.Info("estimate export enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("estimate export disabled")
	}

	srv := httpapi.NewServer(cfg, solar, geocoder, store, publisher, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
