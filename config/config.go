package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultBrokerURL = "wss://broker.hivemq.com:8884/mqtt"

// Config represents the panel server configuration
type Config struct {
	HTTPAddress string       `yaml:"http_address"`
	Log         LogConfig    `yaml:"log"`
	MQTT        MQTTConfig   `yaml:"mqtt"`
	Broker      BrokerConfig `yaml:"broker"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MQTTConfig is the connection every panel session opens to the hub broker
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientIDPrefix string        `yaml:"client_id_prefix"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      uint16        `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// ReconnectDelay between connection attempts; zero keeps the client default
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// BrokerConfig configures the optional embedded development broker
type BrokerConfig struct {
	Enabled          bool         `yaml:"enabled"`
	TCPAddress       string       `yaml:"tcp_address"`
	WebsocketAddress string       `yaml:"websocket_address"`
	Users            []BrokerUser `yaml:"users"`
}

type BrokerUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func Default() *Config {
	return &Config{
		HTTPAddress: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			BrokerURL:      DefaultBrokerURL,
			ClientIDPrefix: "plugpanel",
			KeepAlive:      20,
			ConnectTimeout: 10 * time.Second,
		},
		Broker: BrokerConfig{
			TCPAddress:       ":1883",
			WebsocketAddress: ":1882",
		},
	}
}

// Load reads a YAML file over the defaults. An empty filename yields the
// defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPAddress == "" {
		return errors.New("http_address is required")
	}

	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt broker_url is required")
	}
	u, err := url.Parse(c.MQTT.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqtt broker_url: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("mqtt broker_url: unsupported scheme %q", u.Scheme)
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.ClientIDPrefix == "" {
		c.MQTT.ClientIDPrefix = "plugpanel"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}

	if c.Broker.Enabled && c.Broker.TCPAddress == "" && c.Broker.WebsocketAddress == "" {
		return errors.New("embedded broker needs a tcp_address or a websocket_address")
	}
	for i, u := range c.Broker.Users {
		if u.Username == "" {
			return fmt.Errorf("broker user %d: username is required", i)
		}
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
