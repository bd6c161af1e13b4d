package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/ilievs/plugpanel/config"
	"github.com/ilievs/plugpanel/core"
)

var ErrNotConnected = errors.New("mqtt connection is not up")

// Client is one autopaho connection serving a single panel session.
type Client struct {
	cfg    config.MQTTConfig
	logger *slog.Logger

	mu      sync.RWMutex
	cm      *autopaho.ConnectionManager
	handler core.Handler
}

func NewClient(cfg config.MQTTConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Start dials the broker and keeps reconnecting until ctx is cancelled.
// h.OnConnected runs after every successful (re)connection.
func (c *Client) Start(ctx context.Context, h core.Handler) error {
	u, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}

	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	clientID := c.cfg.ClientIDPrefix + "-" + uuid.NewString()
	logger := c.logger.With("client", clientID, "broker", u.Redacted())

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     c.cfg.KeepAlive,
		ConnectTimeout:                c.cfg.ConnectTimeout,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			logger.Info("mqtt connection up")
			c.mu.Lock()
			c.cm = cm
			c.mu.Unlock()
			// subscriptions do not survive a reconnect, the handler re-issues them
			h.OnConnected(ctx)
		},
		OnConnectError: func(err error) {
			logger.Warn("error whilst attempting connection", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				logger.Error("client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					logger.Warn("server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					logger.Warn("server requested disconnect", "reason_code", d.ReasonCode)
				}
			},
		},
	}
	if c.cfg.ReconnectDelay > 0 {
		cliCfg.ReconnectBackoff = autopaho.NewConstantBackoff(c.cfg.ReconnectDelay)
	}
	if c.cfg.Username != "" {
		cliCfg.ConnectUsername = c.cfg.Username
		cliCfg.ConnectPassword = []byte(c.cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("start mqtt connection: %w", err)
	}

	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()

	logger.Info("mqtt connecting")
	return nil
}

func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil || pr.Packet == nil {
		return false, nil
	}
	h.HandleTelemetry(pr.Packet.Topic, pr.Packet.Payload)
	return true, nil
}

func (c *Client) connection() (*autopaho.ConnectionManager, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cm == nil {
		return nil, ErrNotConnected
	}
	return c.cm, nil
}

func (c *Client) Subscribe(ctx context.Context, topic string) error {
	cm, err := c.connection()
	if err != nil {
		return err
	}

	_, err = cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: c.cfg.QoS},
		},
	})
	return err
}

// Publish is fire-and-forget: nothing is queued or retried on failure.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	cm, err := c.connection()
	if err != nil {
		return err
	}

	_, err = cm.Publish(ctx, &paho.Publish{
		QoS:     c.cfg.QoS,
		Topic:   topic,
		Payload: payload,
	})
	return err
}

// Close disconnects and waits for the connection manager to stop.
func (c *Client) Close(ctx context.Context) error {
	cm, err := c.connection()
	if err != nil {
		return nil
	}

	err = cm.Disconnect(ctx)
	if err != nil && !errors.Is(err, autopaho.ConnectionDownError) {
		return err
	}

	select {
	case <-cm.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
