package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ilievs/plugpanel/config"
	"github.com/ilievs/plugpanel/system"
)

func main() {
	var (
		configFile = pflag.StringP("config", "c", "", "Configuration file (YAML)")
		httpAddr   = pflag.String("http", "", "Address the panel server listens on")
		brokerURL  = pflag.StringP("broker", "b", "", "MQTT broker URL (mqtt://, tls://, ws://, wss://)")
		embedded   = pflag.Bool("embedded-broker", false, "Run an embedded MQTT broker")
		logLevel   = pflag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *httpAddr != "" {
		cfg.HTTPAddress = *httpAddr
	}
	if *brokerURL != "" {
		cfg.MQTT.BrokerURL = *brokerURL
	}
	if *embedded {
		cfg.Broker.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := system.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := system.SignalContext(context.Background())
	defer stop()

	if err := RunApplication(ctx, cfg, logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}
