package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Transport is the messaging client a controller talks to the hub through.
type Transport interface {
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler receives connection and message events from a Transport.
type Handler interface {
	OnConnected(ctx context.Context)
	HandleTelemetry(topic string, payload []byte)
}

// Panel is the render target of a panel session.
type Panel interface {
	RenderCard(card Card)
	SetRelay(on bool, status string)
	SetTimerText(text string)
}

// Observer is told about readings and commands, e.g. to export metrics.
type Observer interface {
	ReadingAccepted(id PlugId, r Reading)
	ReadingRejected(id PlugId)
	CommandPublished(id PlugId, kind CommandKind)
}

type PlugController struct {
	id        PlugId
	transport Transport
	panel     Panel
	observer  Observer
	logger    *slog.Logger

	// serialises panel writes between transport callbacks and UI actions
	mu sync.Mutex
}

type ControllerOption func(c *PlugController)

func WithObserver(o Observer) ControllerOption {
	return func(c *PlugController) {
		c.observer = o
	}
}

func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *PlugController) {
		c.logger = l
	}
}

func NewPlugController(id PlugId, transport Transport, panel Panel, opts ...ControllerOption) *PlugController {
	c := &PlugController{
		id:        id,
		transport: transport,
		panel:     panel,
		observer:  nopObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("plug", int(id))
	return c
}

func (c *PlugController) Id() PlugId {
	return c.id
}

// OnConnected must be called on every connection, reconnects included.
// Subscriptions are not assumed to survive a reconnect.
func (c *PlugController) OnConnected(ctx context.Context) {
	topic := c.id.TelemetryTopic()
	if err := c.transport.Subscribe(ctx, topic); err != nil {
		c.logger.Error("failed to subscribe", "topic", topic, "error", err)
		return
	}
	c.logger.Info("subscribed", "topic", topic)
}

// HandleTelemetry renders one reading. A payload that does not decode is
// logged and dropped, leaving the panel as it was.
func (c *PlugController) HandleTelemetry(topic string, payload []byte) {
	c.logger.Debug("telemetry received", "topic", topic, "payload", string(payload))

	reading, err := DecodeReading(payload)
	if err != nil {
		c.logger.Error("invalid telemetry", "topic", topic, "payload", string(payload), "error", err)
		c.observer.ReadingRejected(c.id)
		return
	}

	c.mu.Lock()
	c.panel.RenderCard(RenderCard(c.id, reading))
	on := reading.Relay.On()
	c.panel.SetRelay(on, StatusText(on))
	c.panel.SetTimerText(TimerRunningText(reading.Timer))
	c.mu.Unlock()

	c.observer.ReadingAccepted(c.id, reading)
}

// Toggle publishes the relay position the user just set and shows it
// without waiting for the hub to echo it back.
func (c *PlugController) Toggle(ctx context.Context, on bool) error {
	err := c.publish(ctx, PowerCommand(c.id, on))

	c.mu.Lock()
	c.panel.SetRelay(on, StatusText(on))
	c.mu.Unlock()

	return err
}

// StartTimer sends a countdown of hours:minutes:seconds. A total of zero or
// less sends nothing and leaves the panel alone, as does a total that is too
// long, which is returned as an error. The relay is shown OFF right away
// since the plug switches off while the countdown runs.
func (c *PlugController) StartTimer(ctx context.Context, hours, minutes, seconds int) (bool, error) {
	total, err := TimerSeconds(hours, minutes, seconds)
	if err != nil {
		c.logger.Warn("timer not started", "error", err)
		return false, err
	}
	if total <= 0 {
		return false, nil
	}

	err = c.publish(ctx, TimerCommand(c.id, total))

	c.mu.Lock()
	c.panel.SetTimerText(TimerStartedText(total))
	c.panel.SetRelay(false, StatusText(false))
	c.mu.Unlock()

	return true, err
}

func (c *PlugController) publish(ctx context.Context, cmd Command) error {
	payload, err := cmd.Payload()
	if err != nil {
		return err
	}

	if err := c.transport.Publish(ctx, CommandTopic, payload); err != nil {
		c.logger.Error("failed to publish command", "cmd", cmd.Kind, "error", err)
		return fmt.Errorf("publish %s command: %w", cmd.Kind, err)
	}

	c.logger.Info("command published", "cmd", cmd.Kind, "payload", string(payload))
	c.observer.CommandPublished(c.id, cmd.Kind)
	return nil
}

type nopObserver struct{}

func (nopObserver) ReadingAccepted(PlugId, Reading)       {}
func (nopObserver) ReadingRejected(PlugId)                {}
func (nopObserver) CommandPublished(PlugId, CommandKind) {}
