package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ilievs/plugpanel/config"
	"github.com/ilievs/plugpanel/metrics"
	"github.com/ilievs/plugpanel/mqtt"
	"github.com/ilievs/plugpanel/ui"
)

// RunApplication serves panel pages until ctx is cancelled.
func RunApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	if cfg.Broker.Enabled {
		broker := mqtt.NewBroker(cfg.Broker, logger.With("component", "broker"))
		err := broker.Start(
			[]mochi.Hook{new(mqtt.PresenceHook)},
			[]any{&mqtt.HookOptions{Counter: collector, Logger: logger.With("component", "broker")}})
		if err != nil {
			return fmt.Errorf("start embedded broker: %w", err)
		}
		defer broker.Close()
		logger.Info("embedded broker started", "tcp", cfg.Broker.TCPAddress, "websocket", cfg.Broker.WebsocketAddress)
	}

	newLink := func() ui.Link {
		return mqtt.NewClient(cfg.MQTT, logger.With("component", "mqtt"))
	}
	server := ui.NewServer(newLink, collector, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	errs := make(chan error, 1)
	go func() {
		logger.Info("panel server listening", "address", cfg.HTTPAddress, "mqtt", cfg.MQTT.BrokerURL)
		errs <- server.Start(cfg.HTTPAddress)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("panel server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server", "error", err)
	}
	return nil
}
