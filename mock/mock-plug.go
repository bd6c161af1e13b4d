// Command mock-plug simulates a smart plug hub: it applies commands from
// smart/plug/command and publishes a reading for its plug every second.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/spf13/pflag"

	"github.com/ilievs/plugpanel/core"
	"github.com/ilievs/plugpanel/sim"
)

func main() {
	var (
		brokerURL = pflag.StringP("broker", "b", "mqtt://localhost:1883", "MQTT broker URL")
		plugID    = pflag.IntP("plug", "p", 1, "Plug number to simulate")
		username  = pflag.StringP("user", "u", "", "MQTT username")
		password  = pflag.StringP("password", "w", "", "MQTT password")
		interval  = pflag.Duration("interval", time.Second, "Telemetry interval")
	)
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// App will run until cancelled by user (e.g. ctrl-c)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u, err := url.Parse(*brokerURL)
	if err != nil {
		logger.Error("invalid broker url", "error", err)
		os.Exit(1)
	}

	plug := sim.NewPlug(core.PlugId(*plugID), uint64(time.Now().UnixNano()))
	stateTopic := plug.Id().TelemetryTopic()

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			logger.Info("mqtt connection up")
			// Subscribing in OnConnectionUp re-establishes the subscription
			// after the connection drops
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: core.CommandTopic, QoS: 1},
				},
			}); err != nil {
				logger.Error("failed to subscribe", "error", err)
				return
			}
			logger.Info("mqtt subscription made", "topic", core.CommandTopic)
		},
		OnConnectError: func(err error) {
			logger.Warn("error whilst attempting connection", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "mock-plug-" + plug.Id().String(),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					cmd, err := core.DecodeCommand(pr.Packet.Payload)
					if err != nil {
						logger.Warn("ignoring command", "payload", string(pr.Packet.Payload), "error", err)
						return true, nil
					}
					if plug.Apply(cmd) {
						logger.Info("command applied", "cmd", cmd.Kind, "seconds", cmd.Seconds)
					}
					return true, nil
				}},
			OnClientError: func(err error) { logger.Error("client error", "error", err) },
		},
	}
	if *username != "" {
		cliCfg.ConnectUsername = *username
		cliCfg.ConnectPassword = []byte(*password)
	}

	c, err := autopaho.NewConnection(ctx, cliCfg) // reconnects until ctx is cancelled
	if err != nil {
		logger.Error("failed to start connection", "error", err)
		os.Exit(1)
	}
	if err = c.AwaitConnection(ctx); err != nil {
		logger.Info("stopped before connecting", "error", err)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			payload, err := json.Marshal(plug.Tick())
			if err != nil {
				logger.Error("failed to encode reading", "error", err)
				continue
			}

			if _, err = c.Publish(ctx, &paho.Publish{
				QoS:     0,
				Topic:   stateTopic,
				Payload: payload,
			}); err != nil {
				if ctx.Err() == nil {
					logger.Warn("publish failed", "error", err)
				}
				continue
			}
			logger.Debug("published reading", "payload", string(payload))
		case <-ctx.Done():
			<-c.Done()
			return
		}
	}
}
